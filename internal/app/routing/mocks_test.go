package routing

import (
	"slices"
	"sync"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
)

// recordSink keeps a copy of every frame written to it.
type recordSink struct {
	mu     sync.Mutex
	frames [][]float32
	closed bool
}

func (s *recordSink) Write(f core.AudioFrame) {
	s.mu.Lock()
	s.frames = append(s.frames, slices.Clone(f.Samples))
	s.mu.Unlock()
}

func (s *recordSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordSink) last() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *recordSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type sinkPairMock struct {
	monitor   *recordSink
	broadcast *recordSink
}

type mockFactory struct {
	mu    sync.Mutex
	pairs map[domain.ParticipantID]sinkPairMock
	flush int
}

func newMockFactory() *mockFactory {
	return &mockFactory{pairs: map[domain.ParticipantID]sinkPairMock{}}
}

func (f *mockFactory) NewSinks(p domain.Participant, _ int) (core.Sink, core.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := sinkPairMock{monitor: &recordSink{}, broadcast: &recordSink{}}
	f.pairs[p.ID] = m
	return m.monitor, m.broadcast
}

func (f *mockFactory) FlushCycle(int, int) {
	f.mu.Lock()
	f.flush++
	f.mu.Unlock()
}

func (f *mockFactory) get(id domain.ParticipantID) sinkPairMock {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pairs[id]
}

type panicSink struct{}

func (panicSink) Write(core.AudioFrame) { panic("boom") }

type panicFactory struct{}

func (panicFactory) NewSinks(domain.Participant, int) (core.Sink, core.Sink) {
	return panicSink{}, panicSink{}
}

// mockBackend remembers the last parameters it received.
type mockBackend struct {
	mu       sync.Mutex
	bus      []core.BusParams
	sinks    map[domain.ParticipantID]core.SinkParams
	removed  []domain.ParticipantID
	profiles []domain.PlatformProfile
}

func newMockBackend() *mockBackend {
	return &mockBackend{sinks: map[domain.ParticipantID]core.SinkParams{}}
}

func (b *mockBackend) ApplyBus(p core.BusParams) error {
	b.mu.Lock()
	b.bus = append(b.bus, p)
	b.mu.Unlock()
	return nil
}

func (b *mockBackend) ApplySink(p core.SinkParams) error {
	b.mu.Lock()
	b.sinks[p.Participant] = p
	b.mu.Unlock()
	return nil
}

func (b *mockBackend) RemoveSink(id domain.ParticipantID) error {
	b.mu.Lock()
	delete(b.sinks, id)
	b.removed = append(b.removed, id)
	b.mu.Unlock()
	return nil
}

func (b *mockBackend) ApplyProfile(p domain.PlatformProfile) error {
	b.mu.Lock()
	b.profiles = append(b.profiles, p)
	b.mu.Unlock()
	return nil
}

func (b *mockBackend) lastBus() core.BusParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus[len(b.bus)-1]
}

func (b *mockBackend) sink(id domain.ParticipantID) (core.SinkParams, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.sinks[id]
	return p, ok
}

type fixedPolicy core.BudgetAction

func (p fixedPolicy) OnOverBudget(domain.Participant, int, int) core.BudgetAction {
	return core.BudgetAction(p)
}

// frame builds a mono frame for id.
func frame(id domain.ParticipantID, samples ...float32) core.AudioFrame {
	return core.AudioFrame{Participant: id, Samples: samples, SampleCount: len(samples), Channels: 1}
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
