package domain

import "math"

// Vec3 is a world-space position in meters.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (v Vec3) Distance(o Vec3) float32 {
	dx := float64(v.X - o.X)
	dy := float64(v.Y - o.Y)
	dz := float64(v.Z - o.Z)
	return float32(math.Sqrt(dx*dx + dy*dy + dz*dz))
}
