package profile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidProfile = errors.New("invalid platform profile")
	// ErrRateLocked is returned by checkers bound to a fixed sample rate.
	ErrRateLocked = errors.New("sample rate locked")
)

// Target receives profiles that differ from the last applied one.
type Target interface {
	ApplyProfile(p domain.PlatformProfile)
}

// Checker can refuse a profile before any target sees it.
type Checker interface {
	CheckProfile(p domain.PlatformProfile) error
}

// Manager tracks the active profile and forwards changes to its targets.
type Manager struct {
	mu         sync.Mutex
	current    domain.PlatformProfile
	applied    bool
	overridden bool
	targets    []Target
	checkers   []Checker
}

func NewManager(targets ...Target) *Manager {
	return &Manager{targets: targets}
}

// Apply pushes p to every target. Re-applying the current profile is a
// no-op and reports false. An override pins the profile until cleared.
func (m *Manager) Apply(p domain.PlatformProfile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overridden {
		log.Debug().Str("module", "profile").Str("class", string(p.Class)).Msg("profile overridden, apply skipped")
		return false, nil
	}
	return m.applyLocked(p)
}

// ApplyClass selects and applies the profile for class.
func (m *Manager) ApplyClass(class domain.DeviceClass) (bool, error) {
	return m.Apply(Select(class))
}

// Override applies p and ignores later Apply calls until ClearOverride.
func (m *Manager) Override(p domain.PlatformProfile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed, err := m.applyLocked(p)
	if err != nil {
		return false, err
	}
	m.overridden = true
	return changed, nil
}

// Guard adds a checker consulted on every later profile change.
func (m *Manager) Guard(c Checker) {
	m.mu.Lock()
	m.checkers = append(m.checkers, c)
	m.mu.Unlock()
}

func (m *Manager) ClearOverride() {
	m.mu.Lock()
	m.overridden = false
	m.mu.Unlock()
}

func (m *Manager) applyLocked(p domain.PlatformProfile) (bool, error) {
	if !Valid(p) {
		return false, fmt.Errorf("%w: %+v", ErrInvalidProfile, p)
	}
	if m.applied && m.current == p {
		return false, nil
	}
	for _, c := range m.checkers {
		if err := c.CheckProfile(p); err != nil {
			return false, fmt.Errorf("profile %s refused: %w", p.Class, err)
		}
	}
	m.current = p
	m.applied = true
	for _, t := range m.targets {
		t.ApplyProfile(p)
	}
	log.Info().Str("module", "profile").
		Str("class", string(p.Class)).
		Int("sample_rate", p.SampleRateHz).
		Int("buffer", p.BufferSizeFrames).
		Int("real_voices", p.MaxRealVoices).
		Int("virtual_voices", p.MaxVirtualVoices).
		Msg("platform profile applied")
	return true, nil
}

// Current returns the last applied profile and whether one was applied.
func (m *Manager) Current() (domain.PlatformProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.applied
}

func (m *Manager) Overridden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overridden
}
