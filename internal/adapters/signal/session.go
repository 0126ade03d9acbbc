package signal

import (
	"encoding/json"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn core.SignalConnection,
	data []byte,
) {
	type joinPayload struct {
		Type string `json:"type"`
		Name string `json:"name,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	if p.Name != "" {
		if err := ctl.Orch.Rename(sid, p.Name); err != nil {
			ctl.sendError(conn, "invalid_name")
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename on join")
	}

	already := ctl.Orch.Roster.Has(sid)
	if !ctl.Orch.Join(sid) {
		ctl.sendError(conn, "no_session")
		return
	}
	sess, _ := ctl.Orch.Registry.GetSession(sid)
	me := *sess.Participant()

	room := ctl.Orch.Roster.Room()
	clientResp := struct {
		Type     string             `json:"type"`
		Room     domain.RoomID      `json:"room"`
		RoomName domain.RoomName    `json:"room_name"`
		Self     domain.Participant `json:"self"`
		Members  []core.MemberDTO   `json:"members"`
		Count    int                `json:"count"`
	}{
		Type:     "room_state",
		Room:     room.ID,
		RoomName: room.Name,
		Self:     me,
		Members:  ctl.Orch.Roster.MembersSnapshot(),
		Count:    ctl.Orch.Roster.MemberCount(),
	}
	ctl.sendJSON(conn, clientResp)

	if already {
		return
	}
	ctl.BroadcastFrom(sid, memberEvent{Type: "member_joined", Member: me})
}

type memberEvent struct {
	Type   string             `json:"type"`
	Member domain.Participant `json:"member"`
}

// handleLeave leaves the session; the socket stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn core.SignalConnection,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.leave(sid)
	ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})
}

func (ctl *SignalWSController) leave(sid core.SessionID) {
	if !ctl.Orch.Roster.Has(sid) {
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	me := *sess.Participant()
	ctl.Orch.KickBySID(sid)
	ctl.BroadcastFrom(sid, memberEvent{Type: "member_left", Member: me})
}
