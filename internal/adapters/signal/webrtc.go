package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/VoiceRouter/internal/adapters/rtc"
	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// iceCandidate is the wire form of a candidate in both directions.
type iceCandidate struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (c iceCandidate) init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

func fromInit(ci webrtc.ICECandidateInit) iceCandidate {
	return iceCandidate{
		Type:          "candidate",
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}

// handleOffer answers a client offer with a fresh peer connection whose
// audio track feeds the participant's decoder. A renegotiation replaces
// the previous connection.
func (ctl *SignalWSController) handleOffer(sid core.SessionID, conn core.SignalConnection, data []byte) {
	var req struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.SDP == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}

	wc, err := rtc.NewWebRTCConnection(ctl.opts.RTC, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		ctl.sendError(conn, "webrtc_failed")
		return
	}
	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendJSON(conn, fromInit(ci))
	})
	ctl.Orch.BindMediaHandlers(wc, sid)
	if err := wc.Start(context.Background()); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		ctl.sendError(conn, "webrtc_failed")
		return
	}

	answer, err := wc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc apply offer")
		wc.Close()
		ctl.sendError(conn, "bad_offer")
		return
	}

	// closing fires the old connection's OnClosed, which stops its feed
	if old := sess.Media(); old != nil {
		old.Close()
	}
	sess.UpdateMedia(wc)

	ctl.sendJSON(conn, map[string]string{
		"type": "answer",
		"sdp":  answer.SDP,
	})
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, conn core.SignalConnection, data []byte) {
	var cand iceCandidate
	if err := json.Unmarshal(data, &cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	mc := sess.Media()
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate before offer")
		return
	}
	if err := mc.AddICECandidate(cand.init()); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("add ice candidate")
	}
}
