// Package events turns routing notifications into a stream for the UI.
// Observers run on the audio and control threads, so Queue only ever does
// a non-blocking send; a separate goroutine fans events out to websockets.
package events

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceRouter/internal/domain"
)

const (
	TypeVolumeChanged   = "volume_changed"
	TypeSpeakingChanged = "speaking_changed"
	TypeBusLevel        = "bus_level"
)

type Event struct {
	Type        string               `json:"type"`
	At          time.Time            `json:"at"`
	Monitor     float32              `json:"monitor,omitempty"`
	Broadcast   float32              `json:"broadcast,omitempty"`
	Participant domain.ParticipantID `json:"participant,omitempty"`
	Speaking    bool                 `json:"speaking,omitempty"`
	Peak        float32              `json:"peak,omitempty"`
}

// Queue is a core.Observer backed by a bounded channel.
type Queue struct {
	ch         chan Event
	meterEvery uint64
	now        func() time.Time

	// audio thread
	cycles uint64
	peak   float32

	dropped atomic.Uint64
}

// NewQueue buffers up to size events. meterEvery > 0 emits a bus_level
// event with the peak of the last meterEvery broadcast buffers.
func NewQueue(size, meterEvery int) *Queue {
	return &Queue{
		ch:         make(chan Event, max(size, 1)),
		meterEvery: uint64(max(meterEvery, 0)),
		now:        time.Now,
	}
}

func (q *Queue) Events() <-chan Event { return q.ch }

func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

func (q *Queue) push(e Event) {
	e.At = q.now()
	select {
	case q.ch <- e:
	default:
		q.dropped.Add(1)
	}
}

func (q *Queue) OnVolumeChanged(monitor, broadcast float32) {
	q.push(Event{Type: TypeVolumeChanged, Monitor: monitor, Broadcast: broadcast})
}

func (q *Queue) OnSpeakingChanged(id domain.ParticipantID, speaking bool) {
	q.push(Event{Type: TypeSpeakingChanged, Participant: id, Speaking: speaking})
}

func (q *Queue) OnBufferReady(buf []float32, _ int) {
	if q.meterEvery == 0 {
		return
	}
	for _, s := range buf {
		q.peak = max(q.peak, float32(math.Abs(float64(s))))
	}
	q.cycles++
	if q.cycles%q.meterEvery != 0 {
		return
	}
	q.push(Event{Type: TypeBusLevel, Peak: q.peak})
	q.peak = 0
}
