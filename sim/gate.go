// Defines Gate, a checkpoint line segment cars must cross in order.

package sim

import "math"

// Gate is a checkpoint defined by two endpoints. Cars cross gates in index
// order; crossing any gate other than the expected one has no effect.
type Gate struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Crossed reports whether the movement segment (px,py)->(qx,qy) intersects
// the gate segment.
func (g Gate) Crossed(px, py, qx, qy float64) bool {
	return segmentsIntersect(g.X1, g.Y1, g.X2, g.Y2, px, py, qx, qy)
}

// Midpoint returns the center of the gate, used for distance-to-next-gate
// telemetry.
func (g Gate) Midpoint() (float64, float64) {
	return (g.X1 + g.X2) / 2, (g.Y1 + g.Y2) / 2
}

// segmentsIntersect reports whether segment A (ax1,ay1)-(ax2,ay2) intersects
// segment B (bx1,by1)-(bx2,by2). Parallel segments never intersect here,
// which matches the editor's gate semantics: a car sliding exactly along a
// gate line has not crossed it.
func segmentsIntersect(ax1, ay1, ax2, ay2, bx1, by1, bx2, by2 float64) bool {
	dxA := ax2 - ax1
	dyA := ay2 - ay1
	dxB := bx2 - bx1
	dyB := by2 - by1

	denom := dxA*dyB - dyA*dxB
	if math.Abs(denom) < 1e-10 {
		return false
	}

	dxAB := bx1 - ax1
	dyAB := by1 - ay1

	t := (dxAB*dyB - dyAB*dxB) / denom
	u := (dxAB*dyA - dyAB*dxA) / denom

	return t >= 0 && t <= 1 && u >= 0 && u <= 1
}
