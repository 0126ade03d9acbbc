// Package orch connects the session layer to the routing engine.
package orch

import (
	"slices"

	"github.com/dkeye/VoiceRouter/internal/app"
	"github.com/dkeye/VoiceRouter/internal/app/ingest"
	"github.com/dkeye/VoiceRouter/internal/app/routing"
	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

// FramePusher is the inbox of the audio pump.
type FramePusher interface {
	Push(f core.AudioFrame) bool
	Forget(id domain.ParticipantID)
	Admit(id domain.ParticipantID)
}

type Orchestrator struct {
	Registry *app.Registry
	Roster   *core.Roster
	Engine   *routing.Engine
	Pump     FramePusher
	Policy   app.Policy
	Feeds    *ingest.Manager
	Decoders core.DecoderFactory
}

// OnParticipantJoined gives the participant a sink pair and lets its
// frames into the pump again.
func (o *Orchestrator) OnParticipantJoined(id domain.ParticipantID, displayName string) {
	o.Engine.Table.Create(id, displayName)
	if o.Pump != nil {
		o.Pump.Admit(id)
	}
}

// OnParticipantLeft drops the sink pair and anything still buffered for it.
func (o *Orchestrator) OnParticipantLeft(id domain.ParticipantID) {
	o.Engine.Table.Remove(id)
	if o.Pump != nil {
		o.Pump.Forget(id)
	}
}

// OnFrameDecoded hands a copy of pcm to the audio pump.
func (o *Orchestrator) OnFrameDecoded(id domain.ParticipantID, pcm []float32, sampleCount, channels int) {
	if o.Pump == nil || sampleCount <= 0 || channels <= 0 {
		return
	}
	n := min(sampleCount*channels, len(pcm))
	o.Pump.Push(core.AudioFrame{
		Participant: id,
		Samples:     slices.Clone(pcm[:n]),
		SampleCount: n / channels,
		Channels:    channels,
	})
}

// Broadcast sends a signaling payload to every member but from and applies
// the backpressure policy to members that could not keep up.
func (o *Orchestrator) Broadcast(from core.SessionID, data core.Payload) {
	res := o.Roster.Broadcast(from, data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(slow) {
		case app.KickMember:
			if sid, ok := o.Roster.SessionOf(slow.Participant().ID); ok {
				log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking slow member")
				o.KickBySID(sid)
			}
		case app.NoAction:
		}
	}
}
