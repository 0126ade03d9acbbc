// Package playback renders the monitor paths locally. Mixer is both the
// sink factory and the mixing backend of the routing engine; its output is
// a float32 little-endian stream that a device player pulls from.
package playback

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

const defaultBufferCycles = 8

type Options struct {
	// MasterGain scales the flushed mix; zero means unity.
	MasterGain float32
	// Channels is the output layout until the first flush says otherwise.
	Channels int
	// BufferCycles is how many flushed cycles the output ring holds.
	BufferCycles int
}

type Stats struct {
	MonitorWrites   uint64 `json:"monitor_writes"`
	BroadcastWrites uint64 `json:"broadcast_writes"`
	Cycles          uint64 `json:"cycles"`
	Overruns        uint64 `json:"overruns"`
	Underruns       uint64 `json:"underruns"`
	Voices          int    `json:"voices"`
}

type compressor struct {
	enabled   bool
	threshold float32 // linear
	ratio     float32
}

type Mixer struct {
	mu      sync.Mutex
	bus     core.BusParams
	voices  map[domain.ParticipantID]*voice
	profile domain.PlatformProfile

	comp       atomic.Pointer[compressor]
	sampleRate atomic.Int64
	masterGain float32

	// audio thread
	acc      []float32
	channels int

	out *ring

	monitorWrites   atomic.Uint64
	broadcastWrites atomic.Uint64
	cycles          atomic.Uint64
	underruns       atomic.Uint64
}

func NewMixer(opts Options) *Mixer {
	if opts.MasterGain <= 0 {
		opts.MasterGain = 1
	}
	if opts.BufferCycles <= 0 {
		opts.BufferCycles = defaultBufferCycles
	}
	m := &Mixer{
		voices:     make(map[domain.ParticipantID]*voice),
		masterGain: opts.MasterGain,
		out:        newRing(opts.BufferCycles),
		channels:   max(opts.Channels, 1),
	}
	m.comp.Store(&compressor{})
	m.sampleRate.Store(48000)
	return m
}

// NewSinks implements core.SinkFactory.
func (m *Mixer) NewSinks(p domain.Participant, slot int) (core.Sink, core.Sink) {
	v := newVoice(p.ID, slot)
	m.mu.Lock()
	m.voices[p.ID] = v
	m.mu.Unlock()
	return &monitorSink{m: m, v: v}, &broadcastSink{m: m}
}

func (m *Mixer) ApplyBus(p core.BusParams) error {
	m.mu.Lock()
	m.bus = p
	m.mu.Unlock()
	m.comp.Store(&compressor{
		enabled:   p.CompressionEnabled,
		threshold: dbToLinear(p.CompressorThreshDB),
		ratio:     max(p.CompressorRatio, 1),
	})
	return nil
}

func (m *Mixer) ApplySink(p core.SinkParams) error {
	m.mu.Lock()
	v, ok := m.voices[p.Participant]
	m.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "playback").Uint64("peer", uint64(p.Participant)).Msg("params for unknown voice")
		return nil
	}
	v.params.Store(&p)
	return nil
}

func (m *Mixer) RemoveSink(id domain.ParticipantID) error {
	m.mu.Lock()
	delete(m.voices, id)
	m.mu.Unlock()
	return nil
}

func (m *Mixer) ApplyProfile(p domain.PlatformProfile) error {
	m.mu.Lock()
	m.profile = p
	m.mu.Unlock()
	m.sampleRate.Store(int64(p.SampleRateHz))
	log.Info().Str("module", "playback").Str("class", string(p.Class)).Int("rate", p.SampleRateHz).Msg("profile applied")
	return nil
}

// Bus returns the last bus parameters received.
func (m *Mixer) Bus() core.BusParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bus
}

// SinkParams returns the last parameters received for id.
func (m *Mixer) SinkParams(id domain.ParticipantID) (core.SinkParams, bool) {
	m.mu.Lock()
	v, ok := m.voices[id]
	m.mu.Unlock()
	if !ok {
		return core.SinkParams{}, false
	}
	return *v.params.Load(), true
}

// mixMonitor adds a processed monitor frame into the cycle accumulator,
// converting its channel layout to the output layout.
func (m *Mixer) mixMonitor(v *voice, f core.AudioFrame) {
	m.monitorWrites.Add(1)
	ch := max(f.Channels, 1)
	v.process(f.Samples, ch, int(m.sampleRate.Load()))

	need := f.SampleCount * m.channels
	if len(m.acc) < need {
		m.acc = append(m.acc, make([]float32, need-len(m.acc))...)
	}
	for i := range f.SampleCount {
		in := f.Samples[i*ch : i*ch+ch]
		out := m.acc[i*m.channels : i*m.channels+m.channels]
		switch {
		case ch == m.channels:
			for c := range out {
				out[c] += in[c]
			}
		case ch == 1:
			for c := range out {
				out[c] += in[0]
			}
		default:
			var sum float32
			for _, s := range in {
				sum += s
			}
			sum /= float32(ch)
			for c := range out {
				out[c] += sum
			}
		}
	}
}

// FlushCycle implements core.CycleFlusher.
func (m *Mixer) FlushCycle(frames, channels int) {
	channels = max(channels, 1)
	n := frames * channels
	if channels != m.channels {
		// layout change, drop what was mixed in the old layout
		m.channels = channels
		m.acc = m.acc[:0]
	}
	if len(m.acc) < n {
		m.acc = append(m.acc, make([]float32, n-len(m.acc))...)
	}
	block := m.acc[:n]

	comp := m.comp.Load()
	for i, s := range block {
		if comp.enabled {
			s = compress(s, comp.threshold, comp.ratio)
		}
		s *= m.masterGain
		block[i] = min(max(s, -1), 1)
	}
	m.out.push(block)
	clear(m.acc)
	m.cycles.Add(1)
}

func compress(s, threshold, ratio float32) float32 {
	a := float32(math.Abs(float64(s)))
	if a <= threshold {
		return s
	}
	a = threshold + (a-threshold)/ratio
	if s < 0 {
		return -a
	}
	return a
}

func dbToLinear(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}

// Read implements io.Reader for a device player: float32 little-endian
// interleaved samples. Missing audio is rendered as silence so the device
// never blocks on the mixer.
func (m *Mixer) Read(p []byte) (int, error) {
	n := len(p) / 4
	got := 0
	m.out.pop(n, func(s float32) {
		binary.LittleEndian.PutUint32(p[got*4:], math.Float32bits(s))
		got++
	})
	if got < n {
		m.underruns.Add(1)
		clear(p[got*4 : n*4])
	}
	return n * 4, nil
}

func (m *Mixer) Stats() Stats {
	m.mu.Lock()
	voices := len(m.voices)
	m.mu.Unlock()
	return Stats{
		MonitorWrites:   m.monitorWrites.Load(),
		BroadcastWrites: m.broadcastWrites.Load(),
		Cycles:          m.cycles.Load(),
		Overruns:        m.out.overruns.Load(),
		Underruns:       m.underruns.Load(),
		Voices:          voices,
	}
}

type monitorSink struct {
	m *Mixer
	v *voice
}

func (s *monitorSink) Write(f core.AudioFrame) { s.m.mixMonitor(s.v, f) }

// broadcastSink only counts; the broadcast mix leaves through the router tap.
type broadcastSink struct{ m *Mixer }

func (s *broadcastSink) Write(core.AudioFrame) { s.m.broadcastWrites.Add(1) }
