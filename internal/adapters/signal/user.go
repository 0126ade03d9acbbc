package signal

import (
	"encoding/json"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRename(
	sid core.SessionID,
	conn core.SignalConnection,
	data []byte,
) {
	type renamePayload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	if err := ctl.Orch.Rename(sid, p.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}
	ctl.handleWhoAmI(sid, conn)

	if !ctl.Orch.Roster.Has(sid) {
		return
	}
	sess, _ := ctl.Orch.Registry.GetSession(sid)
	ctl.BroadcastFrom(sid, memberEvent{Type: "member_updated", Member: *sess.Participant()})
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn core.SignalConnection,
) {
	resp := struct {
		Type        string               `json:"type"`
		ID          domain.ParticipantID `json:"id"`
		DisplayName string               `json:"display_name"`
		Joined      bool                 `json:"joined"`
	}{
		Type:   "whoami",
		Joined: ctl.Orch.Roster.Has(sid),
	}
	if sess, ok := ctl.Orch.Registry.GetSession(sid); ok {
		p := sess.Participant()
		resp.ID = p.ID
		resp.DisplayName = p.DisplayName
	}
	ctl.sendJSON(conn, resp)
}
