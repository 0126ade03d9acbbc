//go:build !oto

package playback

import (
	"errors"
	"time"

	"github.com/dkeye/VoiceRouter/internal/domain"
)

var ErrNoDevice = errors.New("playback: built without device support (tag oto)")

type Player struct{}

func NewPlayer(*Mixer, int, int, time.Duration) (*Player, error) {
	return nil, ErrNoDevice
}

func (*Player) CheckProfile(domain.PlatformProfile) error { return nil }

func (*Player) Close() error { return nil }
