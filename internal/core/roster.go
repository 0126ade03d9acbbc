package core

import (
	"sync"

	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID          domain.ParticipantID `json:"id"`
	DisplayName string               `json:"display_name"`
}

// Roster is the threadsafe membership set of the signaling session.
// It never closes adapter-owned resources.
type Roster struct {
	room   domain.Room
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	byPeer map[domain.ParticipantID]SessionID
}

func NewRoster(room domain.Room) *Roster {
	return &Roster{
		room:   room,
		bySID:  make(map[SessionID]MemberSession),
		byPeer: make(map[domain.ParticipantID]SessionID),
	}
}

func (r *Roster) Room() domain.Room { return r.room }

func (r *Roster) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *Roster) AddMember(sid SessionID, ms MemberSession) {
	id := ms.Participant().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = ms
	r.byPeer[id] = sid
	log.Info().Str("module", "core.roster").Str("sid", string(sid)).Uint64("peer", uint64(id)).Msg("member added")
}

// RemoveMember reports whether sid was a member.
func (r *Roster) RemoveMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return false
	}
	delete(r.byPeer, ms.Participant().ID)
	delete(r.bySID, sid)
	log.Info().Str("module", "core.roster").Str("sid", string(sid)).Msg("member removed")
	return true
}

func (r *Roster) Has(sid SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySID[sid]
	return ok
}

func (r *Roster) SessionOf(id domain.ParticipantID) (SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byPeer[id]
	return sid, ok
}

// Broadcast sends data to every member except from. A nil signal
// connection counts as dropped.
func (r *Roster) Broadcast(from SessionID, data Payload) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		sig := m.Signal()
		if sig == nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.roster").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Roster) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.bySID))
	for _, ms := range r.bySID {
		p := ms.Participant()
		out = append(out, MemberDTO{ID: p.ID, DisplayName: p.DisplayName})
	}
	return out
}
