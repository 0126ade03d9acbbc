package routing

import (
	"sync"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

// backendRef holds the optional mixing backend. A missing backend turns
// every apply into a no-op; the logical state stays in the core.
type backendRef struct {
	mu sync.RWMutex
	b  core.MixBackend
}

func (r *backendRef) set(b core.MixBackend) {
	r.mu.Lock()
	r.b = b
	r.mu.Unlock()
}

func (r *backendRef) get() core.MixBackend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.b
}

func (r *backendRef) applyBus(p core.BusParams) {
	if b := r.get(); b != nil {
		if err := b.ApplyBus(p); err != nil {
			log.Warn().Err(err).Str("module", "routing.backend").Msg("apply bus")
		}
	}
}

func (r *backendRef) applySink(p core.SinkParams) {
	if b := r.get(); b != nil {
		if err := b.ApplySink(p); err != nil {
			log.Warn().Err(err).Str("module", "routing.backend").Uint64("peer", uint64(p.Participant)).Msg("apply sink")
		}
	}
}

func (r *backendRef) removeSink(id domain.ParticipantID) {
	if b := r.get(); b != nil {
		if err := b.RemoveSink(id); err != nil {
			log.Warn().Err(err).Str("module", "routing.backend").Uint64("peer", uint64(id)).Msg("remove sink")
		}
	}
}

func (r *backendRef) applyProfile(p domain.PlatformProfile) {
	if b := r.get(); b != nil {
		if err := b.ApplyProfile(p); err != nil {
			log.Warn().Err(err).Str("module", "routing.backend").Str("class", string(p.Class)).Msg("apply profile")
		}
	}
}
