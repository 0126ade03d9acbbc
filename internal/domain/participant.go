// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strconv"
)

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

// ParticipantID is the peer id handed out by the session layer.
// The routing core never assigns one itself.
type ParticipantID uint64

func (id ParticipantID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseParticipantID parses the decimal form produced by String.
func ParseParticipantID(s string) (ParticipantID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ParticipantID(v), nil
}

type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id ParticipantID, displayName string) (*Participant, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return nil, err
	}
	return &Participant{ID: id, DisplayName: displayName}, nil
}

func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
