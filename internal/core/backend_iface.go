package core

import "github.com/dkeye/VoiceRouter/internal/domain"

// BusParams is what the mixing backend receives when bus state changes.
// Levels are already converted to the backend's units.
type BusParams struct {
	MonitorVolumeDB    float32
	BroadcastVolumeDB  float32
	CompressionEnabled bool
	CompressorThreshDB float32
	CompressorRatio    float32
	EQEnabled          bool
	ReverbEnabled      bool
	ReverbRoomMB       float32
	ReverbDryLevelMB   float32
}

// SinkParams is the per-participant state pushed to the backend voice.
type SinkParams struct {
	Participant     domain.ParticipantID
	Slot            int
	MonitorGain     float32
	BroadcastGain   float32
	SpatialBlend    float32
	Position        domain.Vec3
	LowPassEnabled  bool
	LowPassCutoffHz float32
	EchoEnabled     bool
	EchoDelayMs     float32
	EchoDecay       float32
}

// MixBackend is the external mixer / spatializer. Every method is
// called from the control thread; errors are logged and never
// propagated to callers of the routing core.
type MixBackend interface {
	ApplyBus(p BusParams) error
	ApplySink(p SinkParams) error
	RemoveSink(id domain.ParticipantID) error
	ApplyProfile(p domain.PlatformProfile) error
}
