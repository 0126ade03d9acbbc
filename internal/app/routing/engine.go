// Package routing is the multi-sink voice routing core. Every participant
// gets a monitor and a broadcast path with their own gain; bus state
// scales and mutes them globally. Control goroutines mutate state through
// setters; the audio goroutine reads published snapshots lock-free.
package routing

import (
	"sync"

	"github.com/dkeye/VoiceRouter/internal/app/profile"
	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// Profile sizes the voice budget and the cycle; zero selects desktop.
	Profile  domain.PlatformProfile
	Channels int
	// Bus is the initial bus state; nil selects domain.DefaultBusState.
	Bus            *domain.BusState
	SpatialDefault bool
	// ExternalSpatializer disables the built-in distance rolloff.
	ExternalSpatializer bool
	Sinks               core.SinkFactory
	Backend             core.MixBackend
	Policy              core.BudgetPolicy
}

// Engine wires the routing table, bus controller and frame router that
// share one backend and one observer list.
type Engine struct {
	Table  *Table
	Bus    *BusController
	Router *Router

	notify  *notifier
	backend *backendRef

	mu       sync.Mutex
	profile  domain.PlatformProfile
	channels int
	closed   bool
}

func New(opts Options) *Engine {
	p := opts.Profile
	if !profile.Valid(p) {
		p = profile.Select(domain.DeviceDesktop)
	}
	bus := domain.DefaultBusState()
	if opts.Bus != nil {
		bus = *opts.Bus
	}
	channels := max(opts.Channels, 1)

	n := newNotifier()
	backend := &backendRef{}
	bc := newBusController(bus, backend, n)
	table := newTable(p.MaxRealVoices, opts.Sinks, opts.Policy, opts.SpatialDefault, bc, backend, n)
	bc.table = table

	flusher, _ := opts.Sinks.(core.CycleFlusher)
	router := newRouter(table, bc, n, flusher, !opts.ExternalSpatializer)
	router.SetFrameFormat(p.BufferSizeFrames, channels)
	router.SetSampleRate(p.SampleRateHz)

	e := &Engine{
		Table:    table,
		Bus:      bc,
		Router:   router,
		notify:   n,
		backend:  backend,
		profile:  p,
		channels: channels,
	}
	if opts.Backend != nil {
		e.AttachBackend(opts.Backend)
	}
	log.Info().Str("module", "routing").
		Str("class", string(p.Class)).
		Int("budget", p.MaxRealVoices).
		Int("channels", channels).
		Bool("builtin_spatial", router.BuiltinSpatial()).
		Msg("routing engine ready")
	return e
}

// Subscribe registers o for notifications until the returned func is called.
func (e *Engine) Subscribe(o core.Observer) (unsubscribe func()) {
	return e.notify.subscribe(o)
}

// AttachBackend replaces the mixing backend and replays the last known
// profile, bus and sink state into it.
func (e *Engine) AttachBackend(b core.MixBackend) {
	e.backend.set(b)
	if b == nil {
		return
	}
	e.backend.applyProfile(e.Profile())
	e.Bus.reapply()
	for _, sp := range e.Table.pairs() {
		sp.push()
	}
	log.Info().Str("module", "routing").Int("sinks", e.Table.Len()).Msg("mix backend attached")
}

func (e *Engine) DetachBackend() {
	e.backend.set(nil)
}

// ApplyProfile resizes the voice budget and the expected cycle format.
func (e *Engine) ApplyProfile(p domain.PlatformProfile) {
	e.mu.Lock()
	e.profile = p
	channels := e.channels
	e.mu.Unlock()

	e.Table.SetBudget(p.MaxRealVoices)
	e.Router.SetFrameFormat(p.BufferSizeFrames, channels)
	e.Router.SetSampleRate(p.SampleRateHz)
	e.backend.applyProfile(p)
}

func (e *Engine) Profile() domain.PlatformProfile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

func (e *Engine) Channels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channels
}

func (e *Engine) SetListenerPosition(pos domain.Vec3) {
	e.Router.SetListenerPosition(pos)
}

func (e *Engine) Stats() Stats { return e.Router.Stats() }

// Close removes every sink pair, closing sinks that implement io.Closer.
// The audio goroutine must be stopped first.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.Table.clearAll()
	log.Info().Str("module", "routing").Msg("routing engine closed")
}
