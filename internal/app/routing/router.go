package routing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

// Stats are diagnostic counters; every field is monotonic except Active.
type Stats struct {
	Cycles         uint64 `json:"cycles"`
	Frames         uint64 `json:"frames"`
	UnknownDrops   uint64 `json:"unknown_drops"`
	Reallocations  uint64 `json:"reallocations"`
	SinkFaults     uint64 `json:"sink_faults"`
	ObserverFaults uint64 `json:"observer_faults"`
	Active         int    `json:"active"`
}

// Router delivers decoded frames to sink pairs. BeginCycle, Dispatch and
// EndCycle must be called from a single goroutine (the audio thread);
// every other method is safe from anywhere.
type Router struct {
	table   *Table
	bus     *BusController
	notify  *notifier
	flusher core.CycleFlusher

	builtinSpatial bool
	listener       atomic.Pointer[domain.Vec3]
	format         atomic.Uint64 // frames<<32 | channels
	sampleRate     atomic.Uint32

	// audio thread only
	snap         *tableSnapshot
	inCycle      bool
	monitorBuf   []float32
	broadcastBuf []float32
	mix          []float32
	mixChannels  int
	mixed        bool

	tapMu       sync.Mutex
	tap         []float32
	tapChannels int

	cycles     atomic.Uint64
	frames     atomic.Uint64
	unknown    atomic.Uint64
	reallocs   atomic.Uint64
	sinkFaults atomic.Uint64
}

func newRouter(table *Table, bus *BusController, n *notifier, flusher core.CycleFlusher, builtinSpatial bool) *Router {
	r := &Router{
		table:          table,
		bus:            bus,
		notify:         n,
		flusher:        flusher,
		builtinSpatial: builtinSpatial,
	}
	r.listener.Store(&domain.Vec3{})
	return r
}

// SetFrameFormat sets the expected frames per cycle and channel count.
func (r *Router) SetFrameFormat(frames, channels int) {
	frames = max(frames, 1)
	channels = max(channels, 1)
	r.format.Store(uint64(frames)<<32 | uint64(uint32(channels)))
}

func (r *Router) FrameFormat() (frames, channels int) {
	f := r.format.Load()
	return int(f >> 32), int(uint32(f))
}

func (r *Router) SetSampleRate(hz int) {
	r.sampleRate.Store(uint32(max(hz, 1)))
}

// SetListenerPosition moves the listener used by the built-in rolloff.
func (r *Router) SetListenerPosition(pos domain.Vec3) {
	r.listener.Store(&pos)
}

func (r *Router) ListenerPosition() domain.Vec3 { return *r.listener.Load() }

// BuiltinSpatial reports whether the router attenuates spatial monitor
// paths itself rather than leaving it to an external spatializer.
func (r *Router) BuiltinSpatial() bool { return r.builtinSpatial }

// BeginCycle pins the current routing table and clears the broadcast mix.
func (r *Router) BeginCycle() {
	if r.inCycle {
		r.EndCycle()
	}
	r.snap = r.table.enterCycle()
	r.inCycle = true

	frames, channels := r.FrameFormat()
	n := frames * channels
	if len(r.mix) != n {
		r.mix = make([]float32, n)
		r.reallocs.Add(1)
	} else {
		clear(r.mix)
	}
	r.mixChannels = channels
	r.mixed = false
}

// Dispatch routes one frame. Outside a cycle the frame is routed on its own
// and nothing is mixed into the broadcast tap.
func (r *Router) Dispatch(frame core.AudioFrame) {
	if !r.inCycle {
		snap := r.table.enterCycle()
		r.dispatch(snap, frame, false)
		r.table.exitCycle()
		return
	}
	r.dispatch(r.snap, frame, true)
}

func (r *Router) dispatch(snap *tableSnapshot, frame core.AudioFrame, mix bool) {
	sp, ok := snap.pairs[frame.Participant]
	if !ok {
		if c := r.unknown.Add(1); shouldLog(c) {
			log.Debug().Str("module", "routing.router").Uint64("peer", uint64(frame.Participant)).Uint64("drops", c).Msg("frame for unknown participant dropped")
		}
		return
	}
	channels := max(frame.Channels, 1)
	n := min(frame.SampleCount*channels, len(frame.Samples))
	samples := frame.Samples[:max(n, 0)]
	r.ensureScratch(len(samples))

	if sp.vad.update(samples, r.frameDuration(len(samples)/channels)) {
		r.notify.speakingChanged(sp.ID(), sp.vad.Speaking())
	}

	bus := r.bus.State()
	p := sp.params.Load()

	g := monitorGain(p, bus)
	if r.builtinSpatial && p.spatial && g > 0 {
		g *= spatialGain(spatialBlend(p), linearRolloff(*r.listener.Load(), p.position))
	}
	scaleInto(r.monitorBuf, samples, g)
	r.write(sp.monitor, core.AudioFrame{
		Participant: sp.ID(),
		Samples:     r.monitorBuf,
		SampleCount: len(samples) / channels,
		Channels:    channels,
	})

	if bus.DualRoutingEnabled {
		scaleInto(r.broadcastBuf, samples, broadcastGain(p, bus))
		r.write(sp.broadcast, core.AudioFrame{
			Participant: sp.ID(),
			Samples:     r.broadcastBuf,
			SampleCount: len(samples) / channels,
			Channels:    channels,
		})
		if mix {
			r.accumulate(r.broadcastBuf, channels)
		}
	}
	r.frames.Add(1)
}

// ensureScratch resizes the per-sink scratch buffers when the frame size changes.
func (r *Router) ensureScratch(n int) {
	if len(r.monitorBuf) == n && len(r.broadcastBuf) == n {
		return
	}
	r.monitorBuf = make([]float32, n)
	r.broadcastBuf = make([]float32, n)
	r.reallocs.Add(1)
}

// accumulate adds a broadcast-bound frame into the cycle mix. The first
// frame of a cycle decides the mix shape when it differs from the format.
func (r *Router) accumulate(buf []float32, channels int) {
	if !r.mixed && (len(buf) != len(r.mix) || channels != r.mixChannels) {
		r.mix = make([]float32, len(buf))
		r.mixChannels = channels
		r.reallocs.Add(1)
	}
	r.mixed = true
	if channels != r.mixChannels {
		return
	}
	for i := range min(len(buf), len(r.mix)) {
		r.mix[i] += buf[i]
	}
}

func (r *Router) frameDuration(frames int) time.Duration {
	rate := r.sampleRate.Load()
	if rate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

// write keeps a faulty sink from stopping the cycle.
func (r *Router) write(s core.Sink, frame core.AudioFrame) {
	defer func() {
		if rec := recover(); rec != nil {
			if c := r.sinkFaults.Add(1); shouldLog(c) {
				log.Error().Str("module", "routing.router").Uint64("peer", uint64(frame.Participant)).Interface("panic", rec).Uint64("faults", c).Msg("sink panicked")
			}
		}
	}()
	s.Write(frame)
}

// EndCycle publishes the broadcast mix and releases the table snapshot.
// The buffer-ready notification fires every cycle while dual routing is
// on, carrying silence when nothing was mixed.
func (r *Router) EndCycle() {
	if !r.inCycle {
		return
	}
	for i, s := range r.mix {
		r.mix[i] = clampRange(s, -1, 1)
	}
	if r.bus.State().DualRoutingEnabled {
		r.refreshTap()
		r.notify.bufferReady(r.mix, r.mixChannels)
	}
	if r.flusher != nil {
		frames, channels := r.FrameFormat()
		r.flush(frames, channels)
	}
	r.cycles.Add(1)
	r.snap = nil
	r.inCycle = false
	r.table.exitCycle()
}

func (r *Router) flush(frames, channels int) {
	defer func() {
		if rec := recover(); rec != nil {
			if c := r.sinkFaults.Add(1); shouldLog(c) {
				log.Error().Str("module", "routing.router").Interface("panic", rec).Msg("cycle flush panicked")
			}
		}
	}()
	r.flusher.FlushCycle(frames, channels)
}

// refreshTap copies the mix unless a reader holds the tap; the reader then
// sees the previous cycle.
func (r *Router) refreshTap() {
	if !r.tapMu.TryLock() {
		return
	}
	r.tap = append(r.tap[:0], r.mix...)
	r.tapChannels = r.mixChannels
	r.tapMu.Unlock()
}

// BroadcastTap copies the last mixed broadcast buffer into dst.
func (r *Router) BroadcastTap(dst []float32) ([]float32, int) {
	r.tapMu.Lock()
	defer r.tapMu.Unlock()
	return append(dst[:0], r.tap...), r.tapChannels
}

func (r *Router) Stats() Stats {
	return Stats{
		Cycles:         r.cycles.Load(),
		Frames:         r.frames.Load(),
		UnknownDrops:   r.unknown.Load(),
		Reallocations:  r.reallocs.Load(),
		SinkFaults:     r.sinkFaults.Load(),
		ObserverFaults: r.notify.faults.Load(),
		Active:         r.table.Len(),
	}
}
