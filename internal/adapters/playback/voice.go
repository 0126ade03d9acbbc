package playback

import (
	"math"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
)

const maxEchoDelayMs = 1000

// voice holds the per-participant filter state. params is written by the
// control thread; the rest belongs to the audio thread.
type voice struct {
	params atomic.Pointer[core.SinkParams]

	lp    []float32
	delay []float32
	pos   int
}

func newVoice(id domain.ParticipantID, slot int) *voice {
	v := &voice{}
	v.params.Store(&core.SinkParams{Participant: id, Slot: slot, MonitorGain: 1, BroadcastGain: 1})
	return v
}

// process applies the low-pass and echo filters in place.
func (v *voice) process(samples []float32, channels, rate int) {
	p := v.params.Load()
	if p.LowPassEnabled && p.LowPassCutoffHz > 0 && rate > 0 {
		v.lowPass(samples, channels, onePoleAlpha(p.LowPassCutoffHz, rate))
	}
	if p.EchoEnabled && p.EchoDelayMs > 0 && p.EchoDecay > 0 && rate > 0 {
		v.echo(samples, channels, rate, p.EchoDelayMs, p.EchoDecay)
	} else if v.delay != nil {
		v.delay, v.pos = nil, 0
	}
}

func onePoleAlpha(cutoffHz float32, rate int) float32 {
	dt := 1 / float32(rate)
	rc := 1 / (2 * math.Pi * cutoffHz)
	return dt / (rc + dt)
}

func (v *voice) lowPass(samples []float32, channels int, alpha float32) {
	if len(v.lp) != channels {
		v.lp = make([]float32, channels)
	}
	for i, s := range samples {
		c := i % channels
		v.lp[c] += alpha * (s - v.lp[c])
		samples[i] = v.lp[c]
	}
}

// echo mixes in the signal delayed by delayMs, scaled by decay.
func (v *voice) echo(samples []float32, channels, rate int, delayMs, decay float32) {
	d := int(min(delayMs, maxEchoDelayMs)*float32(rate)/1000) * channels
	if d <= 0 {
		return
	}
	if len(v.delay) != d {
		v.delay, v.pos = make([]float32, d), 0
	}
	for i, s := range samples {
		out := s + v.delay[v.pos]*decay
		v.delay[v.pos] = s
		v.pos = (v.pos + 1) % d
		samples[i] = out
	}
}
