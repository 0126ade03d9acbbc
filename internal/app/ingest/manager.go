// Package ingest turns remote RTP audio tracks into decoded frames for
// the routing engine, one feed per participant.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

type Stats struct {
	Feeds        int    `json:"feeds"`
	Packets      uint64 `json:"packets"`
	DecodeErrors uint64 `json:"decode_errors"`
}

type Manager struct {
	mu    sync.RWMutex
	feeds map[domain.ParticipantID]*Feed
	out   FrameSink
	rate  atomic.Int64

	// totals of stopped feeds
	packets      atomic.Uint64
	decodeErrors atomic.Uint64
}

func NewManager(out FrameSink, sampleRate int) *Manager {
	m := &Manager{
		feeds: make(map[domain.ParticipantID]*Feed),
		out:   out,
	}
	m.rate.Store(int64(sampleRate))
	return m
}

// ApplyProfile switches the output rate of every feed.
func (m *Manager) ApplyProfile(p domain.PlatformProfile) {
	m.rate.Store(int64(p.SampleRateHz))
}

// Start creates a feed for id and starts its loop, replacing any previous one.
func (m *Manager) Start(ctx context.Context, id domain.ParticipantID, read ReadFunc, dec core.Decoder) *Feed {
	logger := log.With().
		Str("module", "ingest").
		Uint64("peer", uint64(id)).
		Logger()

	feedCtx, cancel := context.WithCancel(ctx)
	feed := newFeed(id, read, dec, m.out, &m.rate, cancel)

	m.mu.Lock()
	if old, ok := m.feeds[id]; ok {
		logger.Info().Msg("replacing existing feed")
		m.retire(old)
	}
	m.feeds[id] = feed
	m.mu.Unlock()

	logger.Info().Msg("starting feed loop")
	go feed.loop(feedCtx, &logger)
	return feed
}

// Stop stops and forgets the feed of id.
func (m *Manager) Stop(id domain.ParticipantID) {
	m.mu.Lock()
	feed, ok := m.feeds[id]
	if ok {
		delete(m.feeds, id)
		m.retire(feed)
	}
	m.mu.Unlock()
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, feed := range m.feeds {
		m.retire(feed)
		delete(m.feeds, id)
	}
}

func (m *Manager) retire(feed *Feed) {
	feed.Stop()
	m.packets.Add(feed.packets.Load())
	m.decodeErrors.Add(feed.decodeErrors.Load())
}

func (m *Manager) Has(id domain.ParticipantID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.feeds[id]
	return ok
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{
		Feeds:        len(m.feeds),
		Packets:      m.packets.Load(),
		DecodeErrors: m.decodeErrors.Load(),
	}
	for _, f := range m.feeds {
		st.Packets += f.packets.Load()
		st.DecodeErrors += f.decodeErrors.Load()
	}
	return st
}
