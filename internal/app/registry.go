package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

const guestName = "guest"

type sessionEntry struct {
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry remembers which participant a client token belongs to, so a
// reconnecting client keeps its id, and which live session it runs.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[core.SessionID]*sessionEntry
	participants map[core.SessionID]domain.Participant
	nextID       atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[core.SessionID]*sessionEntry),
		participants: make(map[core.SessionID]domain.Participant),
	}
}

func (r *Registry) GetOrCreateParticipant(sid core.SessionID) domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[sid]; ok {
		return p
	}
	p := domain.Participant{ID: domain.ParticipantID(r.nextID.Add(1)), DisplayName: guestName}
	r.participants[sid] = p
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Uint64("peer", uint64(p.ID)).Msg("created new participant")
	return p
}

// UpdateDisplayName validates and stores name for later reconnects.
func (r *Registry) UpdateDisplayName(sid core.SessionID, name string) error {
	if err := domain.ValidateDisplayName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[sid]
	if !ok {
		return nil
	}
	p.DisplayName = name
	r.participants[sid] = p
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("name", name).Msg("updated display name")
	return nil
}

func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind drops the session only if it is still sess; a newer connection
// for the same token stays bound.
func (r *Registry) Unbind(sid core.SessionID, sess core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || (sess != nil && e.Session != sess) {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
