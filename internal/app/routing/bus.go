package routing

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

// BusController owns the bus-wide mix state. Writers copy the current
// snapshot, modify it and publish it; FrameRouter reads it every frame.
type BusController struct {
	mu      sync.Mutex
	state   atomic.Pointer[domain.BusState]
	table   *Table
	backend *backendRef
	notify  *notifier
}

func newBusController(initial domain.BusState, backend *backendRef, n *notifier) *BusController {
	initial.MonitorBusVolume = clamp01(initial.MonitorBusVolume)
	initial.BroadcastBusVolume = clamp01(initial.BroadcastBusVolume)
	initial.ReverbAmount = clamp01(initial.ReverbAmount)
	b := &BusController{backend: backend, notify: n}
	b.state.Store(&initial)
	return b
}

// State returns the latest published snapshot.
func (b *BusController) State() domain.BusState { return *b.state.Load() }

// mutate publishes a modified copy and reports whether anything changed.
func (b *BusController) mutate(fn func(s *domain.BusState)) (domain.BusState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.state.Load()
	next := *cur
	fn(&next)
	if next == *cur {
		return next, false
	}
	b.state.Store(&next)
	return next, true
}

func (b *BusController) SetMonitorBusVolume(v float32) {
	v = clamp01(v)
	s, changed := b.mutate(func(s *domain.BusState) { s.MonitorBusVolume = v })
	if !changed {
		return
	}
	b.volumeChanged(s)
}

func (b *BusController) SetBroadcastBusVolume(v float32) {
	v = clamp01(v)
	s, changed := b.mutate(func(s *domain.BusState) { s.BroadcastBusVolume = v })
	if !changed {
		return
	}
	b.volumeChanged(s)
}

func (b *BusController) volumeChanged(s domain.BusState) {
	log.Info().Str("module", "routing.bus").
		Float32("monitor", s.MonitorBusVolume).
		Float32("broadcast", s.BroadcastBusVolume).
		Msg("bus volume changed")
	b.apply(s)
	b.fanOut()
	b.notify.volumeChanged(s.MonitorBusVolume, s.BroadcastBusVolume)
}

// MuteMonitorBus forces every monitor gain to zero regardless of sink settings.
func (b *BusController) MuteMonitorBus(muted bool) {
	if s, changed := b.mutate(func(s *domain.BusState) { s.MonitorBusMuted = muted }); changed {
		log.Info().Str("module", "routing.bus").Bool("muted", muted).Msg("monitor bus mute")
		b.apply(s)
		b.fanOut()
	}
}

func (b *BusController) MuteBroadcastBus(muted bool) {
	if s, changed := b.mutate(func(s *domain.BusState) { s.BroadcastBusMuted = muted }); changed {
		log.Info().Str("module", "routing.bus").Bool("muted", muted).Msg("broadcast bus mute")
		b.apply(s)
		b.fanOut()
	}
}

// SetDualRouting toggles whether frames also reach the broadcast sinks.
func (b *BusController) SetDualRouting(enabled bool) {
	if _, changed := b.mutate(func(s *domain.BusState) { s.DualRoutingEnabled = enabled }); changed {
		log.Info().Str("module", "routing.bus").Bool("enabled", enabled).Msg("dual routing")
	}
}

func (b *BusController) SetCompression(enabled bool) {
	if s, changed := b.mutate(func(s *domain.BusState) { s.CompressionEnabled = enabled }); changed {
		b.apply(s)
	}
}

func (b *BusController) SetEQ(enabled bool) {
	if s, changed := b.mutate(func(s *domain.BusState) { s.EQEnabled = enabled }); changed {
		b.apply(s)
	}
}

func (b *BusController) SetReverb(enabled bool, amount float32) {
	amount = clamp01(amount)
	s, changed := b.mutate(func(s *domain.BusState) {
		s.ReverbEnabled = enabled
		s.ReverbAmount = amount
	})
	if changed {
		b.apply(s)
	}
}

// fanOut pushes recomputed effective gains to every active sink pair.
func (b *BusController) fanOut() {
	if b.table == nil {
		return
	}
	for _, sp := range b.table.pairs() {
		sp.push()
	}
}

func (b *BusController) apply(s domain.BusState) {
	b.backend.applyBus(busParams(s))
}

// reapply brings a freshly attached backend up to date.
func (b *BusController) reapply() {
	b.apply(b.State())
}

func busParams(s domain.BusState) core.BusParams {
	p := core.BusParams{
		MonitorVolumeDB:    volumeToDB(s.MonitorBusVolume, s.MonitorBusMuted),
		BroadcastVolumeDB:  volumeToDB(s.BroadcastBusVolume, s.BroadcastBusMuted),
		CompressionEnabled: s.CompressionEnabled,
		EQEnabled:          s.EQEnabled,
		ReverbEnabled:      s.ReverbEnabled,
	}
	if s.CompressionEnabled {
		p.CompressorThreshDB = compressorThresholdDB
		p.CompressorRatio = compressorRatio
	}
	if s.ReverbEnabled {
		p.ReverbRoomMB = reverbRoomMB(s.ReverbAmount)
		p.ReverbDryLevelMB = 0
	}
	return p
}
