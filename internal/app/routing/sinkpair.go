package routing

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
)

const (
	DefaultLowPassCutoffHz float32 = 5000
	DefaultEchoDelayMs     float32 = 500
	DefaultEchoDecay       float32 = 0.5

	minLowPassCutoffHz float32 = 10
	maxLowPassCutoffHz float32 = 22000
	minEchoDelayMs     float32 = 10
	maxEchoDelayMs     float32 = 5000
)

// sinkParams is an immutable snapshot; setters publish a modified copy.
type sinkParams struct {
	monitorVolume   float32
	broadcastVolume float32
	muted           bool
	spatial         bool
	position        domain.Vec3
	lowPass         bool
	lowPassCutoffHz float32
	echo            bool
	echoDelayMs     float32
	echoDecay       float32
}

// SinkPair owns one participant's monitor and broadcast paths.
// Setters may be called from any control goroutine; the audio thread
// only ever loads the latest snapshot.
type SinkPair struct {
	participant domain.Participant
	slot        int
	overBudget  bool

	monitor   core.Sink
	broadcast core.Sink

	bus     *BusController
	backend *backendRef

	mu      sync.Mutex // serialises writers only
	params  atomic.Pointer[sinkParams]
	removed atomic.Bool

	vad voiceActivity
}

func newSinkPair(p domain.Participant, slot int, spatial bool, bus *BusController, backend *backendRef) *SinkPair {
	sp := &SinkPair{
		participant: p,
		slot:        slot,
		monitor:     core.DiscardSink{},
		broadcast:   core.DiscardSink{},
		bus:         bus,
		backend:     backend,
	}
	sp.params.Store(&sinkParams{
		monitorVolume:   1,
		broadcastVolume: 1,
		spatial:         spatial,
		lowPassCutoffHz: DefaultLowPassCutoffHz,
		echoDelayMs:     DefaultEchoDelayMs,
		echoDecay:       DefaultEchoDecay,
	})
	return sp
}

func (sp *SinkPair) Participant() domain.Participant { return sp.participant }
func (sp *SinkPair) ID() domain.ParticipantID        { return sp.participant.ID }
func (sp *SinkPair) Slot() int                       { return sp.slot }

// OverBudget reports whether the pair was created past the voice budget.
// The backend may cull it; the core keeps routing it.
func (sp *SinkPair) OverBudget() bool { return sp.overBudget }

// Removed reports whether the routing table has dropped this pair.
// Setters on a removed pair update nothing.
func (sp *SinkPair) Removed() bool { return sp.removed.Load() }

func (sp *SinkPair) update(fn func(p *sinkParams)) {
	if sp.removed.Load() {
		return
	}
	sp.mu.Lock()
	next := *sp.params.Load()
	fn(&next)
	sp.params.Store(&next)
	sp.mu.Unlock()
	sp.push()
}

// push sends the current effective state to the backend voice.
func (sp *SinkPair) push() {
	if sp.removed.Load() {
		return
	}
	sp.backend.applySink(sp.sinkParams(sp.bus.State()))
}

func (sp *SinkPair) sinkParams(bus domain.BusState) core.SinkParams {
	p := sp.params.Load()
	return core.SinkParams{
		Participant:     sp.participant.ID,
		Slot:            sp.slot,
		MonitorGain:     monitorGain(p, bus),
		BroadcastGain:   broadcastGain(p, bus),
		SpatialBlend:    spatialBlend(p),
		Position:        p.position,
		LowPassEnabled:  p.lowPass,
		LowPassCutoffHz: p.lowPassCutoffHz,
		EchoEnabled:     p.echo,
		EchoDelayMs:     p.echoDelayMs,
		EchoDecay:       p.echoDecay,
	}
}

// SetVolume sets both sink volumes.
func (sp *SinkPair) SetVolume(v float32) {
	v = clamp01(v)
	sp.update(func(p *sinkParams) {
		p.monitorVolume = v
		p.broadcastVolume = v
	})
}

func (sp *SinkPair) SetMonitorVolume(v float32) {
	v = clamp01(v)
	sp.update(func(p *sinkParams) { p.monitorVolume = v })
}

func (sp *SinkPair) SetBroadcastVolume(v float32) {
	v = clamp01(v)
	sp.update(func(p *sinkParams) { p.broadcastVolume = v })
}

// SetMuted silences both sinks without touching the stored volumes.
func (sp *SinkPair) SetMuted(muted bool) {
	sp.update(func(p *sinkParams) { p.muted = muted })
}

func (sp *SinkPair) EnableSpatialAudio() {
	sp.update(func(p *sinkParams) { p.spatial = true })
}

func (sp *SinkPair) DisableSpatialAudio() {
	sp.update(func(p *sinkParams) { p.spatial = false })
}

// SetPosition is ignored while spatial audio is disabled.
func (sp *SinkPair) SetPosition(pos domain.Vec3) {
	if sp.removed.Load() {
		return
	}
	sp.mu.Lock()
	cur := sp.params.Load()
	if !cur.spatial {
		sp.mu.Unlock()
		return
	}
	next := *cur
	next.position = pos
	sp.params.Store(&next)
	sp.mu.Unlock()
	sp.push()
}

// SetLowPassFilter stores the filter parameters; cutoffHz <= 0 selects the default.
func (sp *SinkPair) SetLowPassFilter(enabled bool, cutoffHz float32) {
	if cutoffHz <= 0 {
		cutoffHz = DefaultLowPassCutoffHz
	}
	cutoffHz = clampRange(cutoffHz, minLowPassCutoffHz, maxLowPassCutoffHz)
	sp.update(func(p *sinkParams) {
		p.lowPass = enabled
		p.lowPassCutoffHz = cutoffHz
	})
}

// SetEchoFilter stores the echo parameters; delayMs <= 0 selects the default.
func (sp *SinkPair) SetEchoFilter(enabled bool, delayMs, decay float32) {
	if delayMs <= 0 {
		delayMs = DefaultEchoDelayMs
	}
	delayMs = clampRange(delayMs, minEchoDelayMs, maxEchoDelayMs)
	decay = clamp01(decay)
	sp.update(func(p *sinkParams) {
		p.echo = enabled
		p.echoDelayMs = delayMs
		p.echoDecay = decay
	})
}

func (sp *SinkPair) MonitorVolume() float32   { return sp.params.Load().monitorVolume }
func (sp *SinkPair) BroadcastVolume() float32 { return sp.params.Load().broadcastVolume }
func (sp *SinkPair) Muted() bool              { return sp.params.Load().muted }
func (sp *SinkPair) SpatialEnabled() bool     { return sp.params.Load().spatial }
func (sp *SinkPair) SpatialBlend() float32    { return spatialBlend(sp.params.Load()) }
func (sp *SinkPair) Position() domain.Vec3    { return sp.params.Load().position }

func (sp *SinkPair) LowPassFilter() (enabled bool, cutoffHz float32) {
	p := sp.params.Load()
	return p.lowPass, p.lowPassCutoffHz
}

func (sp *SinkPair) EchoFilter() (enabled bool, delayMs, decay float32) {
	p := sp.params.Load()
	return p.echo, p.echoDelayMs, p.echoDecay
}

// EffectiveMonitorGain is derived from the latest sink and bus snapshots.
func (sp *SinkPair) EffectiveMonitorGain() float32 {
	return monitorGain(sp.params.Load(), sp.bus.State())
}

func (sp *SinkPair) EffectiveBroadcastGain() float32 {
	return broadcastGain(sp.params.Load(), sp.bus.State())
}

func (sp *SinkPair) VoiceActivityLevel() float32 { return sp.vad.Level() }
func (sp *SinkPair) Speaking() bool              { return sp.vad.Speaking() }

func monitorGain(p *sinkParams, bus domain.BusState) float32 {
	return effectiveGain(p.monitorVolume, bus.MonitorBusVolume, bus.MonitorBusMuted, p.muted)
}

func broadcastGain(p *sinkParams, bus domain.BusState) float32 {
	return effectiveGain(p.broadcastVolume, bus.BroadcastBusVolume, bus.BroadcastBusMuted, p.muted)
}

// spatialBlend only ever applies to the monitor sink.
func spatialBlend(p *sinkParams) float32 {
	if p.spatial {
		return 1
	}
	return 0
}

// View is a read-only copy for APIs.
type View struct {
	ID                     domain.ParticipantID `json:"id"`
	DisplayName            string               `json:"display_name"`
	Slot                   int                  `json:"slot"`
	OverBudget             bool                 `json:"over_budget"`
	MonitorVolume          float32              `json:"monitor_volume"`
	BroadcastVolume        float32              `json:"broadcast_volume"`
	Muted                  bool                 `json:"muted"`
	SpatialEnabled         bool                 `json:"spatial_enabled"`
	Position               domain.Vec3          `json:"position"`
	LowPassEnabled         bool                 `json:"low_pass_enabled"`
	LowPassCutoffHz        float32              `json:"low_pass_cutoff_hz"`
	EchoEnabled            bool                 `json:"echo_enabled"`
	EchoDelayMs            float32              `json:"echo_delay_ms"`
	EchoDecay              float32              `json:"echo_decay"`
	EffectiveMonitorGain   float32              `json:"effective_monitor_gain"`
	EffectiveBroadcastGain float32              `json:"effective_broadcast_gain"`
	Speaking               bool                 `json:"speaking"`
	VoiceActivityLevel     float32              `json:"voice_activity_level"`
}

func (sp *SinkPair) View() View {
	p := sp.params.Load()
	bus := sp.bus.State()
	return View{
		ID:                     sp.participant.ID,
		DisplayName:            sp.participant.DisplayName,
		Slot:                   sp.slot,
		OverBudget:             sp.overBudget,
		MonitorVolume:          p.monitorVolume,
		BroadcastVolume:        p.broadcastVolume,
		Muted:                  p.muted,
		SpatialEnabled:         p.spatial,
		Position:               p.position,
		LowPassEnabled:         p.lowPass,
		LowPassCutoffHz:        p.lowPassCutoffHz,
		EchoEnabled:            p.echo,
		EchoDelayMs:            p.echoDelayMs,
		EchoDecay:              p.echoDecay,
		EffectiveMonitorGain:   monitorGain(p, bus),
		EffectiveBroadcastGain: broadcastGain(p, bus),
		Speaking:               sp.vad.Speaking(),
		VoiceActivityLevel:     sp.vad.Level(),
	}
}
