package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// Hub fans queued events out to websocket subscribers. A subscriber that
// cannot keep up is disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run drains events until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context, events <-chan Event) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			b, err := json.Marshal(e)
			if err != nil {
				log.Error().Err(err).Str("module", "events").Msg("marshal event")
				continue
			}
			h.Publish(b)
		}
	}
}

func (h *Hub) Publish(b []byte) {
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		log.Warn().Str("module", "events").Msg("dropping slow event subscriber")
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and streams events until the peer leaves.
func (h *Hub) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "events").Msg("ws upgrade")
		return
	}
	cl := &client{conn: ws, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	log.Info().Str("module", "events").Str("sid", c.GetString("client_token")).Msg("event subscriber connected")

	go h.writePump(cl)
	go h.readPump(cl)
}

func (h *Hub) writePump(c *client) {
	defer h.remove(c)
	for b := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Str("module", "events").Msg("event write")
			return
		}
	}
}

// readPump only watches for the peer closing the socket.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
