// Package clock drives the audio thread: it buffers decoded frames per
// participant and runs one routing cycle per buffer period.
package clock

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

// Dispatcher is the cycle API of the frame router.
type Dispatcher interface {
	BeginCycle()
	Dispatch(frame core.AudioFrame)
	EndCycle()
}

type Options struct {
	InboxSize int
	Channels  int
	// MaxQueuedCycles bounds how far a participant may run ahead, and how
	// many cycles a partial buffer may wait for the rest of its audio.
	MaxQueuedCycles int
}

type Stats struct {
	Cycles    uint64 `json:"cycles"`
	Queued    uint64 `json:"queued"`
	Dropped   uint64 `json:"dropped"`
	Overflow  uint64 `json:"overflow"`
	Underruns uint64 `json:"underruns"`
	Stale     uint64 `json:"stale"`
}

// pending is a frame stamped with the epoch it was pushed in.
type pending struct {
	frame core.AudioFrame
	epoch uint64
}

type queue struct {
	buf   []float32
	epoch uint64 // oldest frame in buf
	idle  int
}

// tombstone marks a participant that left at epoch at.
type tombstone struct {
	at       uint64
	admitted bool
}

// Pump owns the audio goroutine. Push never blocks; Forget and Admit are
// control-side calls that the audio goroutine never waits for.
type Pump struct {
	d         Dispatcher
	inbox     chan pending
	reset     chan struct{}
	channels  int
	maxCycles int

	frames atomic.Int64
	period atomic.Int64

	// Audio pushed before a participant's last Forget is stale even when
	// it reaches the pump after a rejoin.
	epoch  atomic.Uint64
	tombMu sync.Mutex
	tombs  atomic.Pointer[map[domain.ParticipantID]tombstone]

	// pump goroutine only
	queues map[domain.ParticipantID]*queue
	out    []float32

	cycles    atomic.Uint64
	queued    atomic.Uint64
	dropped   atomic.Uint64
	overflow  atomic.Uint64
	underruns atomic.Uint64
	stale     atomic.Uint64
}

func NewPump(d Dispatcher, p domain.PlatformProfile, opts Options) *Pump {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.MaxQueuedCycles <= 0 {
		opts.MaxQueuedCycles = 8
	}
	pump := &Pump{
		d:         d,
		inbox:     make(chan pending, opts.InboxSize),
		reset:     make(chan struct{}, 1),
		channels:  max(opts.Channels, 1),
		maxCycles: opts.MaxQueuedCycles,
		queues:    make(map[domain.ParticipantID]*queue),
	}
	pump.tombs.Store(&map[domain.ParticipantID]tombstone{})
	pump.ApplyProfile(p)
	return pump
}

// ApplyProfile changes the cycle size and period; a running pump picks it
// up on its next tick.
func (p *Pump) ApplyProfile(pp domain.PlatformProfile) {
	frames := max(pp.BufferSizeFrames, 1)
	rate := max(pp.SampleRateHz, 1)
	p.frames.Store(int64(frames))
	p.period.Store(int64(time.Duration(frames) * time.Second / time.Duration(rate)))
	select {
	case p.reset <- struct{}{}:
	default:
	}
}

func (p *Pump) Period() time.Duration { return time.Duration(p.period.Load()) }

// Push queues a decoded frame and takes ownership of its samples.
// It reports false when the frame was dropped, either because the inbox is
// full or because the participant was forgotten and not admitted again.
func (p *Pump) Push(f core.AudioFrame) bool {
	epoch := p.epoch.Load()
	if t, ok := (*p.tombs.Load())[f.Participant]; ok && !t.admitted {
		p.stale.Add(1)
		return false
	}
	select {
	case p.inbox <- pending{frame: f, epoch: epoch}:
		p.queued.Add(1)
		return true
	default:
		if c := p.dropped.Add(1); c == 1 || c%500 == 0 {
			log.Warn().Str("module", "clock").Uint64("dropped", c).Msg("inbox full, frame dropped")
		}
		return false
	}
}

// Forget discards whatever is buffered or in flight for id and refuses its
// frames until Admit.
func (p *Pump) Forget(id domain.ParticipantID) {
	p.tombMu.Lock()
	defer p.tombMu.Unlock()
	next := maps.Clone(*p.tombs.Load())
	next[id] = tombstone{at: p.epoch.Add(1)}
	p.tombs.Store(&next)
}

// Admit accepts frames for id again. Audio pushed before the last Forget
// stays discarded.
func (p *Pump) Admit(id domain.ParticipantID) {
	p.tombMu.Lock()
	defer p.tombMu.Unlock()
	t, ok := (*p.tombs.Load())[id]
	if !ok || t.admitted {
		return
	}
	next := maps.Clone(*p.tombs.Load())
	t.admitted = true
	next[id] = t
	p.tombs.Store(&next)
}

// Run ticks until ctx is done.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Period())
	defer ticker.Stop()
	log.Info().Str("module", "clock").Dur("period", p.Period()).Msg("audio pump started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "clock").Uint64("cycles", p.cycles.Load()).Msg("audio pump stopped")
			return
		case <-p.reset:
			ticker.Reset(p.Period())
		case <-ticker.C:
			p.Step()
		}
	}
}

// Step runs a single cycle; Run calls it on every tick.
func (p *Pump) Step() {
	p.drain()

	need := int(p.frames.Load()) * p.channels
	if cap(p.out) < need {
		p.out = make([]float32, need)
	}
	out := p.out[:need]

	ids := make([]domain.ParticipantID, 0, len(p.queues))
	for id := range p.queues {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	p.d.BeginCycle()
	for _, id := range ids {
		q := p.queues[id]
		if len(q.buf) < need {
			p.underruns.Add(1)
			// a fragment that never completes a cycle is dropped
			if q.idle++; q.idle > p.maxCycles {
				delete(p.queues, id)
				p.stale.Add(1)
			}
			continue
		}
		copy(out, q.buf)
		if rest := copy(q.buf, q.buf[need:]); rest > 0 {
			q.buf = q.buf[:rest]
		} else {
			delete(p.queues, id)
		}
		p.d.Dispatch(core.AudioFrame{
			Participant: id,
			Samples:     out,
			SampleCount: need / p.channels,
			Channels:    p.channels,
		})
	}
	p.d.EndCycle()
	p.cycles.Add(1)
}

func (p *Pump) drain() {
	tombs := *p.tombs.Load()
	for id, q := range p.queues {
		if t, ok := tombs[id]; ok && q.epoch < t.at {
			delete(p.queues, id)
		}
	}

	limit := int(p.frames.Load()) * p.channels * p.maxCycles
	for {
		select {
		case in := <-p.inbox:
			id := in.frame.Participant
			if t, ok := tombs[id]; ok && (in.epoch < t.at || !t.admitted) {
				p.stale.Add(1)
				continue
			}
			q, ok := p.queues[id]
			if !ok {
				q = &queue{epoch: in.epoch}
				p.queues[id] = q
			}
			q.buf = append(q.buf, remix(in.frame, p.channels)...)
			q.idle = 0
			if extra := len(q.buf) - limit; extra > 0 {
				// keep the newest audio
				q.buf = q.buf[:copy(q.buf, q.buf[extra:])]
				p.overflow.Add(1)
			}
		default:
			return
		}
	}
}

// remix converts interleaved samples to the pump's channel count.
func remix(f core.AudioFrame, to int) []float32 {
	from := max(f.Channels, 1)
	n := min(f.SampleCount*from, len(f.Samples))
	src := f.Samples[:max(n, 0)]
	if from == to {
		return src
	}
	frames := len(src) / from
	out := make([]float32, frames*to)
	for i := range frames {
		var sum float32
		for c := range from {
			sum += src[i*from+c]
		}
		mono := sum / float32(from)
		for c := range to {
			if from > 1 && c < from && to > 1 {
				out[i*to+c] = src[i*from+c]
				continue
			}
			out[i*to+c] = mono
		}
	}
	return out
}

func (p *Pump) Stats() Stats {
	return Stats{
		Cycles:    p.cycles.Load(),
		Queued:    p.queued.Load(),
		Dropped:   p.dropped.Load(),
		Overflow:  p.overflow.Load(),
		Underruns: p.underruns.Load(),
		Stale:     p.stale.Load(),
	}
}
