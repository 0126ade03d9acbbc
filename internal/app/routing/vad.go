package routing

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	vadSmoothing     = 100 * time.Millisecond
	vadSpeakingLevel = 0.01
)

// voiceActivity tracks the smoothed mean absolute level of a participant.
// update runs on the audio thread only; level is readable from anywhere.
type voiceActivity struct {
	smoothed float32
	speaking bool
	level    atomic.Uint32
	talking  atomic.Bool
}

// update reports whether the speaking state flipped.
func (v *voiceActivity) update(samples []float32, frame time.Duration) bool {
	var current float32
	if len(samples) > 0 {
		var sum float32
		for _, s := range samples {
			if s < 0 {
				s = -s
			}
			sum += s
		}
		current = sum / float32(len(samples))
	}
	alpha := float32(frame) / float32(vadSmoothing)
	if alpha > 1 {
		alpha = 1
	}
	v.smoothed += (current - v.smoothed) * alpha
	v.level.Store(math.Float32bits(v.smoothed))

	was := v.speaking
	v.speaking = v.smoothed > vadSpeakingLevel
	v.talking.Store(v.speaking)
	return was != v.speaking
}

func (v *voiceActivity) Level() float32 { return math.Float32frombits(v.level.Load()) }

func (v *voiceActivity) Speaking() bool { return v.talking.Load() }
