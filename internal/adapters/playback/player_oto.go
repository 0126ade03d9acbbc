//go:build oto

package playback

import (
	"fmt"
	"time"

	"github.com/dkeye/VoiceRouter/internal/app/profile"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"
)

// Player plays the mixer output on the default audio device.
type Player struct {
	ctx    *oto.Context
	player *oto.Player
	rate   int
}

// NewPlayer opens the audio device. Only one player may exist per process.
func NewPlayer(m *Mixer, sampleRate, channels int, latency time.Duration) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	p := &Player{ctx: ctx, player: ctx.NewPlayer(m), rate: sampleRate}
	p.player.Play()
	log.Info().Str("module", "playback").Int("rate", sampleRate).Int("channels", channels).Msg("device playback started")
	return p, nil
}

// CheckProfile refuses profiles at another rate; the device cannot be
// reopened within the process.
func (p *Player) CheckProfile(pp domain.PlatformProfile) error {
	if pp.SampleRateHz != p.rate {
		return fmt.Errorf("%w: device opened at %d Hz", profile.ErrRateLocked, p.rate)
	}
	return nil
}

func (p *Player) Close() error {
	return p.player.Close()
}
