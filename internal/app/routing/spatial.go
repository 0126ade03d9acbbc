package routing

import "github.com/dkeye/VoiceRouter/internal/domain"

const (
	SpatialMinDistance float32 = 1
	SpatialMaxDistance float32 = 10
)

// linearRolloff returns the distance attenuation used for the monitor path
// when no external spatializer is attached.
func linearRolloff(listener, source domain.Vec3) float32 {
	d := listener.Distance(source)
	switch {
	case d <= SpatialMinDistance:
		return 1
	case d >= SpatialMaxDistance:
		return 0
	}
	return 1 - (d-SpatialMinDistance)/(SpatialMaxDistance-SpatialMinDistance)
}

// spatialGain blends 2D (blend=0) and fully attenuated 3D (blend=1) gain.
func spatialGain(blend, attenuation float32) float32 {
	return 1 - blend + blend*attenuation
}
