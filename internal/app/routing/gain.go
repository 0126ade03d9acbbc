package routing

import "math"

const (
	// SilenceDB is what the mixer receives for a muted or zero-volume bus.
	SilenceDB float32 = -80

	compressorThresholdDB float32 = -10
	compressorRatio       float32 = 4
)

func clamp01(v float32) float32 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func clampRange(v, lo, hi float32) float32 {
	switch {
	case v != v:
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// effectiveGain applies the precedence bus mute > sink mute > volume product.
func effectiveGain(sinkVolume, busVolume float32, busMuted, sinkMuted bool) float32 {
	if busMuted || sinkMuted {
		return 0
	}
	return sinkVolume * busVolume
}

// volumeToDB maps a linear volume in [0,1] to mixer decibels.
func volumeToDB(v float32, muted bool) float32 {
	if muted || v <= 0 {
		return SilenceDB
	}
	db := float32(20 * math.Log10(float64(v)))
	if db < SilenceDB {
		return SilenceDB
	}
	return db
}

// reverbRoomMB maps reverb amount onto the mixer's room level in millibels.
func reverbRoomMB(amount float32) float32 {
	return -1000 + amount*2000
}

// scaleInto writes src*gain into dst; a zero gain yields silence.
func scaleInto(dst, src []float32, gain float32) {
	if gain == 0 {
		clear(dst)
		return
	}
	if gain == 1 {
		copy(dst, src)
		return
	}
	for i, s := range src {
		dst[i] = s * gain
	}
}
