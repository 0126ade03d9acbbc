package core

import "github.com/dkeye/VoiceRouter/internal/domain"

// AudioFrame is one block of decoded PCM for a participant.
// Samples are interleaved float32 in [-1, 1]; len(Samples) == SampleCount*Channels.
type AudioFrame struct {
	Participant domain.ParticipantID
	Samples     []float32
	SampleCount int
	Channels    int
}

// Sink is one output path of a sink pair (monitor or broadcast).
// Write is called on the audio thread with a scratch buffer that is
// reused on the next call; implementations must copy what they keep
// and must never block.
type Sink interface {
	Write(frame AudioFrame)
}

// SinkFactory builds the two output paths for a participant when its
// sink pair is created. slot is the arena index the pair occupies.
type SinkFactory interface {
	NewSinks(p domain.Participant, slot int) (monitor, broadcast Sink)
}

// CycleFlusher is implemented by sink factories that mix per cycle.
// FlushCycle runs on the audio thread after the last dispatch of a cycle.
type CycleFlusher interface {
	FlushCycle(frames, channels int)
}

// DiscardSink drops everything written to it.
type DiscardSink struct{}

func (DiscardSink) Write(AudioFrame) {}

type discardFactory struct{}

func (discardFactory) NewSinks(domain.Participant, int) (Sink, Sink) {
	return DiscardSink{}, DiscardSink{}
}

// DiscardSinks is the factory used when no output backend is wired.
var DiscardSinks SinkFactory = discardFactory{}
