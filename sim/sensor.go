// SensorCaster computes normalized ray distances for every running car each
// tick. Rays are pure queries against the track; no state is shared across
// cars, so casting fans out over the worker pool.

package sim

import "math"

// SensorCaster casts a fixed fan of rays, configured once per generation
// from the car config.
type SensorCaster struct {
	Angles []float64 // offsets relative to car heading, radians
	MaxLen float64   // pixels
}

// NewSensorCaster builds a caster from the config's ray layout.
func NewSensorCaster(cfg *CarConfig) *SensorCaster {
	angles := make([]float64, len(cfg.RayAngles))
	copy(angles, cfg.RayAngles)
	return &SensorCaster{Angles: angles, MaxLen: cfg.RayLength}
}

// CastAll fills out with normalized distances in [0, 1] for every running
// car: out[i*R+r] is ray r of car i, 1 = no obstruction within range,
// 0 = touching the edge. Dead cars are skipped and their slots left as-is.
// out must have length Count*len(Angles).
func (sc *SensorCaster) CastAll(b *CarBatch, t *Track, out []float64) {
	rayCount := len(sc.Angles)
	parallelFor(b.Count, func(start, end int) {
		for i := start; i < end; i++ {
			if !b.Alive[i] {
				continue
			}
			for r, offset := range sc.Angles {
				d := t.Raycast(b.PosX[i], b.PosY[i], b.Heading[i]+offset, sc.MaxLen)
				out[i*rayCount+r] = d / sc.MaxLen
			}
		}
	})
}

// RaySegment is the presentation artifact for one ray: its endpoints on the
// track and the normalized distance.
type RaySegment struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	Dist float64 `json:"d"`
}

// Segments converts car i's slice of the CastAll buffer into ray segments
// for snapshots.
func (sc *SensorCaster) Segments(b *CarBatch, rays []float64, i int) []RaySegment {
	rayCount := len(sc.Angles)
	segs := make([]RaySegment, rayCount)
	for r, offset := range sc.Angles {
		norm := rays[i*rayCount+r]
		angle := b.Heading[i] + offset
		px := norm * sc.MaxLen
		segs[r] = RaySegment{
			X1:   b.PosX[i],
			Y1:   b.PosY[i],
			X2:   b.PosX[i] + math.Cos(angle)*px,
			Y2:   b.PosY[i] + math.Sin(angle)*px,
			Dist: norm,
		}
	}
	return segs
}
