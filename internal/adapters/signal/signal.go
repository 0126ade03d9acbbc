package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/VoiceRouter/internal/app/orch"
	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Options struct {
	RTC        webrtc.Configuration
	ReadLimit  int64
	PingPeriod time.Duration
	// JoinLimit caps join attempts per client within JoinWindow.
	JoinLimit  int
	JoinWindow time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *JoinRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.JoinLimit <= 0 {
		opts.JoinLimit = 5
	}
	if opts.JoinWindow <= 0 {
		opts.JoinWindow = 10 * time.Second
	}
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewJoinRateLimiter(opts.JoinLimit, opts.JoinWindow),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Payload

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Payload) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// BroadcastFrom sends v to every joined member except sid.
func (ctl *SignalWSController) BroadcastFrom(sid core.SessionID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.Orch.Broadcast(sid, b)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Payload, 32),
	}

	// a reconnect replaces the previous socket of the same client
	if old, ok := ctl.Orch.Registry.GetSession(sid); ok {
		ctl.Orch.Registry.Cancel(sid)
		ctl.disconnect(sid, old)
	}

	p := ctl.Orch.Registry.GetOrCreateParticipant(sid)
	sess := core.NewMemberSession(&p).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, sess, conn)
}

// disconnect leaves the session and unbinds it unless a newer socket took over.
func (ctl *SignalWSController) disconnect(sid core.SessionID, sess core.MemberSession) {
	if cur, ok := ctl.Orch.Registry.GetSession(sid); !ok || cur != sess {
		return
	}
	ctl.leave(sid)
	ctl.Orch.Registry.Unbind(sid, sess)
	if sig := sess.Signal(); sig != nil {
		sig.Close()
	}
}
