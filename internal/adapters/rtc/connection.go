// Package rtc wraps pion peer connections that carry one participant's
// microphone to the router. Only Opus audio is negotiated.
package rtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultSTUN     = "stun:stun.l.google.com:19302"
	opusPayloadType = 111
)

// Config builds a peer configuration; empty stunURLs selects a public server.
func Config(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{defaultSTUN}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

func audioOnlyAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: opusPayloadType,
	}, webrtc.RTPCodecTypeAudio)
	if err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m)), nil
}

type trackHandler func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

// WebRTCConnection implements core.MediaConnection.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger
	cancel context.CancelFunc
	closed atomic.Bool

	mu       sync.RWMutex
	onICE    func(webrtc.ICECandidateInit)
	onTrack  trackHandler
	onClosed func()
	once     sync.Once
}

func NewWebRTCConnection(cfg webrtc.Configuration, sid core.SessionID) (*WebRTCConnection, error) {
	api, err := audioOnlyAPI()
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &WebRTCConnection{
		pc:     pc,
		logger: log.With().Str("module", "webrtc").Str("sid", string(sid)).Logger(),
	}, nil
}

// Start wires pion callbacks. Tracks get a context that ends when ICE drops.
func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		switch s {
		case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			c.cancel()
		}
	})
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.fireClosed()
		}
	})
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if fn := c.handlers().ice; fn != nil {
			fn(cand.ToJSON())
		}
	})
	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Uint32("ssrc", uint32(track.SSRC())).Msg("remote track")
		if fn := c.handlers().track; fn != nil {
			fn(ctx, track, receiver)
		}
	})
	return nil
}

type handlerSet struct {
	ice    func(webrtc.ICECandidateInit)
	track  trackHandler
	closed func()
}

func (c *WebRTCConnection) handlers() handlerSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return handlerSet{ice: c.onICE, track: c.onTrack, closed: c.onClosed}
}

// ApplyOfferAndCreateAnswer answers with all candidates gathered, so the
// client needs no trickle from us to connect.
func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gathered
	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Msg("closed")
	}
	c.fireClosed()
}

// fireClosed runs the close callback at most once.
func (c *WebRTCConnection) fireClosed() {
	if fn := c.handlers().closed; fn != nil {
		c.once.Do(fn)
	}
}

func (c *WebRTCConnection) IsClosed() bool { return c.closed.Load() }

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}
