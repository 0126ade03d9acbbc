package core

import (
	"sync"

	"github.com/dkeye/VoiceRouter/internal/domain"
)

// memberSession implements MemberSession by pairing a participant with
// its transports. Transports are swapped as the peer renegotiates.
type memberSession struct {
	mu          sync.RWMutex
	participant *domain.Participant
	signal      SignalConnection
	media       MediaConnection
}

func NewMemberSession(p *domain.Participant) MemberSession {
	return &memberSession{participant: p}
}

func (m *memberSession) Participant() *domain.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.participant
}

// Rename swaps in a copy so readers holding the old pointer stay consistent.
func (m *memberSession) Rename(name string) error {
	if err := domain.ValidateDisplayName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *m.participant
	p.DisplayName = name
	m.participant = &p
	return nil
}

func (m *memberSession) Signal() SignalConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signal
}

func (m *memberSession) Media() MediaConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.media
}

func (m *memberSession) UpdateSignal(s SignalConnection) MemberSession {
	m.mu.Lock()
	m.signal = s
	m.mu.Unlock()
	return m
}

func (m *memberSession) UpdateMedia(mc MediaConnection) MemberSession {
	m.mu.Lock()
	m.media = mc
	m.mu.Unlock()
	return m
}
