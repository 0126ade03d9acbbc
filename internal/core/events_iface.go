package core

import "github.com/dkeye/VoiceRouter/internal/domain"

// Observer receives routing notifications. Calls are synchronous on the
// thread that caused them: control thread for OnVolumeChanged, audio
// thread for OnBufferReady and OnSpeakingChanged. Handlers must not block.
type Observer interface {
	OnVolumeChanged(monitor, broadcast float32)
	// buf is only valid for the duration of the call.
	OnBufferReady(buf []float32, channels int)
	OnSpeakingChanged(id domain.ParticipantID, speaking bool)
}

// ObserverFuncs adapts optional funcs to Observer; nil fields are skipped.
type ObserverFuncs struct {
	VolumeChanged   func(monitor, broadcast float32)
	BufferReady     func(buf []float32, channels int)
	SpeakingChanged func(id domain.ParticipantID, speaking bool)
}

func (o ObserverFuncs) OnVolumeChanged(monitor, broadcast float32) {
	if o.VolumeChanged != nil {
		o.VolumeChanged(monitor, broadcast)
	}
}

func (o ObserverFuncs) OnBufferReady(buf []float32, channels int) {
	if o.BufferReady != nil {
		o.BufferReady(buf, channels)
	}
}

func (o ObserverFuncs) OnSpeakingChanged(id domain.ParticipantID, speaking bool) {
	if o.SpeakingChanged != nil {
		o.SpeakingChanged(id, speaking)
	}
}
