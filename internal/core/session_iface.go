package core

import "github.com/dkeye/VoiceRouter/internal/domain"

type SessionID string

// MemberSession binds a participant and its transport endpoints.
// This is what the roster stores and fans out to.
type MemberSession interface {
	Participant() *domain.Participant
	Rename(name string) error
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) MemberSession
	UpdateMedia(MediaConnection) MemberSession
}
