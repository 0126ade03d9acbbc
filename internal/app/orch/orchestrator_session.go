package orch

import (
	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/rs/zerolog/log"
)

// Join adds the session to the roster and routes its audio. Joining twice
// is harmless.
func (o *Orchestrator) Join(sid core.SessionID) bool {
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return false
	}
	if o.Roster.Has(sid) {
		return true
	}
	p := session.Participant()
	o.Roster.AddMember(sid, session)
	o.OnParticipantJoined(p.ID, p.DisplayName)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Uint64("peer", uint64(p.ID)).Msg("joined")
	return true
}

// Rename updates the display name everywhere except an existing sink pair,
// whose label is fixed at creation.
func (o *Orchestrator) Rename(sid core.SessionID, name string) error {
	if err := o.Registry.UpdateDisplayName(sid, name); err != nil {
		return err
	}
	if session, ok := o.Registry.GetSession(sid); ok {
		return session.Rename(name)
	}
	return nil
}

// KickBySID tears down media and membership; the signal socket stays open.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.cleanupMedia(sid)
	o.cleanupMembership(sid)
}

func (o *Orchestrator) cleanupMembership(sid core.SessionID) {
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	if !o.Roster.RemoveMember(sid) {
		return
	}
	id := session.Participant().ID
	o.OnParticipantLeft(id)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Uint64("peer", uint64(id)).Msg("left")
}
