// CarBatch holds the state of every car in a generation as structure-of-arrays
// and advances all of them by one fixed time step per call. No allocation
// happens on the per-tick path; all arrays are sized at Reset.

package sim

import (
	"math"
	"time"
)

// Fixed timestep. With dt applied to both acceleration and movement,
// max_speed is in speed units per second. The scale maps speed units to
// pixels: config speed 10 moves at ~200 px/sec on the mask.
const (
	TickDt       = 1.0 / 60.0 // 60 ticks per second
	SpeedScalePx = 20.0       // pixels per second per speed unit

	// TickInterval is one tick of wall-clock time for real-time pacing.
	TickInterval = time.Second / 60

	maxSubstepPx   = 8.0  // movement subdivision to prevent tunneling
	wallHitPx      = 5.0  // shortest-ray distance that counts as grazing a wall
	driftActiveRad = 0.05 // heading/velocity-heading divergence that counts as drifting
)

// Outcome is the life-cycle state of a single car. Terminal outcomes are
// never re-evaluated; a terminal car's state is frozen.
type Outcome uint8

const (
	OutcomeRunning Outcome = iota
	OutcomeCrashed
	OutcomeTimedOut
	OutcomeFinished
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeCrashed:
		return "crashed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFinished:
		return "finished"
	}
	return "unknown"
}

// Terminal reports whether the outcome halts further updates for the car.
func (o Outcome) Terminal() bool { return o != OutcomeRunning }

// CarBatch is the arena-indexed state of all cars in one generation.
// Index i across every slice refers to the same car. Mutated only by Step
// and the Update* methods; SensorCaster and snapshots read it.
type CarBatch struct {
	Count int

	PosX       []float64
	PosY       []float64
	Heading    []float64
	VelHeading []float64 // movement direction; lags Heading under drift
	Speed      []float64
	PrevSpeed  []float64
	Alive      []bool
	Outcome    []Outcome

	GateIndex  []int32 // next expected gate
	TotalGates []int32 // gates crossed across all laps
	Laps       []int32

	TicksAlive  []int32
	StallTicks  []int32 // ticks since last gate crossing
	Distance    []float64
	TopSpeed    []float64
	SpeedSum    []float64
	DriftTicks  []int32
	WallHits    []int32
	MinWallDist []float64
	WallDistSum []float64
	DistToGate  []float64
}

// NewCarBatch returns an empty batch; call Reset before stepping.
func NewCarBatch() *CarBatch {
	return &CarBatch{}
}

// Reset sizes the batch for count cars and places every car at the track
// start pose with cleared counters. Reallocates only when the count changes.
func (b *CarBatch) Reset(count int, t *Track) {
	if b.Count != count {
		b.alloc(count)
	}
	for i := 0; i < count; i++ {
		b.PosX[i] = t.StartX
		b.PosY[i] = t.StartY
		b.Heading[i] = t.StartAngle
		b.VelHeading[i] = t.StartAngle
		b.Speed[i] = 0
		b.PrevSpeed[i] = 0
		b.Alive[i] = true
		b.Outcome[i] = OutcomeRunning
		b.GateIndex[i] = 0
		b.TotalGates[i] = 0
		b.Laps[i] = 0
		b.TicksAlive[i] = 0
		b.StallTicks[i] = 0
		b.Distance[i] = 0
		b.TopSpeed[i] = 0
		b.SpeedSum[i] = 0
		b.DriftTicks[i] = 0
		b.WallHits[i] = 0
		b.MinWallDist[i] = math.Inf(1)
		b.WallDistSum[i] = 0
		b.DistToGate[i] = 0
	}
}

func (b *CarBatch) alloc(count int) {
	b.Count = count
	b.PosX = make([]float64, count)
	b.PosY = make([]float64, count)
	b.Heading = make([]float64, count)
	b.VelHeading = make([]float64, count)
	b.Speed = make([]float64, count)
	b.PrevSpeed = make([]float64, count)
	b.Alive = make([]bool, count)
	b.Outcome = make([]Outcome, count)
	b.GateIndex = make([]int32, count)
	b.TotalGates = make([]int32, count)
	b.Laps = make([]int32, count)
	b.TicksAlive = make([]int32, count)
	b.StallTicks = make([]int32, count)
	b.Distance = make([]float64, count)
	b.TopSpeed = make([]float64, count)
	b.SpeedSum = make([]float64, count)
	b.DriftTicks = make([]int32, count)
	b.WallHits = make([]int32, count)
	b.MinWallDist = make([]float64, count)
	b.WallDistSum = make([]float64, count)
	b.DistToGate = make([]float64, count)
}

// AliveCount returns the number of cars still running.
func (b *CarBatch) AliveCount() int {
	n := 0
	for i := 0; i < b.Count; i++ {
		if b.Alive[i] {
			n++
		}
	}
	return n
}

// AllTerminal reports whether every car has reached a terminal outcome.
func (b *CarBatch) AllTerminal() bool {
	for i := 0; i < b.Count; i++ {
		if b.Alive[i] {
			return false
		}
	}
	return true
}

// Step advances every running car by one tick given its controller outputs.
// steering and throttle are clamped to [-1, 1]. Requires at least two gates
// on the track; that is a start precondition, not a per-tick check.
//
// Per car, in fixed order: physics integration (sub-stepped so a fast car
// cannot tunnel through the mask), crash detection against the road mask,
// gate crossing against the expected gate only, telemetry accumulation, then
// the stall timeout. Terminal cars are skipped entirely.
func (b *CarBatch) Step(steering, throttle []float64, cfg *CarConfig, t *Track) {
	parallelFor(b.Count, func(start, end int) {
		for i := start; i < end; i++ {
			if !b.Alive[i] {
				continue
			}
			b.stepCar(i, clamp1(steering[i]), clamp1(throttle[i]), cfg, t)
		}
	})
}

func (b *CarBatch) stepCar(i int, steer, throttle float64, cfg *CarConfig, t *Track) {
	b.PrevSpeed[i] = b.Speed[i]

	b.Heading[i] += steer * cfg.RotationSpeed * TickDt

	if throttle > 0 {
		b.Speed[i] += throttle * cfg.Acceleration * TickDt
	} else if throttle < 0 {
		b.Speed[i] += throttle * cfg.BrakeForce * TickDt
	}
	if b.Speed[i] < 0 {
		b.Speed[i] = 0
	} else if b.Speed[i] > cfg.MaxSpeed {
		b.Speed[i] = cfg.MaxSpeed
	}

	var moveAngle float64
	if cfg.DriftEnabled {
		diff := b.Heading[i] - b.VelHeading[i]
		b.VelHeading[i] += diff * cfg.Grip
		moveAngle = b.VelHeading[i]
		if math.Abs(diff) > driftActiveRad {
			b.DriftTicks[i]++
		}
	} else {
		b.VelHeading[i] = b.Heading[i]
		moveAngle = b.Heading[i]
	}

	pxPerTick := b.Speed[i] * SpeedScalePx * TickDt
	dirX := math.Cos(moveAngle)
	dirY := math.Sin(moveAngle)

	oldX, oldY := b.PosX[i], b.PosY[i]

	substeps := 1
	if pxPerTick > maxSubstepPx {
		substeps = int(math.Ceil(pxPerTick / maxSubstepPx))
	}
	stepX := dirX * pxPerTick / float64(substeps)
	stepY := dirY * pxPerTick / float64(substeps)

	for s := 0; s < substeps; s++ {
		b.PosX[i] += stepX
		b.PosY[i] += stepY
		if !t.OnRoad(b.PosX[i], b.PosY[i]) {
			b.Alive[i] = false
			b.Outcome[i] = OutcomeCrashed
			break
		}
	}

	b.Distance[i] += math.Hypot(b.PosX[i]-oldX, b.PosY[i]-oldY)
	if b.Speed[i] > b.TopSpeed[i] {
		b.TopSpeed[i] = b.Speed[i]
	}
	b.SpeedSum[i] += b.Speed[i]
	b.TicksAlive[i]++
	b.StallTicks[i]++

	// Gate crossing uses the full tick segment so a sub-stepped car cannot
	// cross a gate without detection. Only the expected gate counts, and a
	// car that crashed mid-substep registers nothing on its crash tick.
	if b.Alive[i] && t.GateCrossed(oldX, oldY, b.PosX[i], b.PosY[i], int(b.GateIndex[i])) {
		b.TotalGates[i]++
		b.GateIndex[i] = (b.GateIndex[i] + 1) % int32(len(t.Gates))
		if b.GateIndex[i] == 0 {
			b.Laps[i]++
		}
		b.StallTicks[i] = 0
	}

	if b.Alive[i] && int(b.StallTicks[i]) > cfg.StallTimeout {
		b.Alive[i] = false
		b.Outcome[i] = OutcomeTimedOut
	}
}

// FinishRemaining marks every still-running car as finished. Called by the
// generation loop when the tick count reaches max_ticks.
func (b *CarBatch) FinishRemaining() {
	for i := 0; i < b.Count; i++ {
		if b.Alive[i] {
			b.Alive[i] = false
			b.Outcome[i] = OutcomeFinished
		}
	}
}

// UpdateWallStats folds the tick's sensor readings into the wall-proximity
// accumulators. rays is the flat Count×R normalized distance buffer produced
// by SensorCaster.CastAll; the shortest ray is the wall-distance proxy.
func (b *CarBatch) UpdateWallStats(rays []float64, rayCount int, rayLength float64) {
	if rayCount == 0 {
		return
	}
	for i := 0; i < b.Count; i++ {
		if !b.Alive[i] {
			continue
		}
		minNorm := rays[i*rayCount]
		for r := 1; r < rayCount; r++ {
			if d := rays[i*rayCount+r]; d < minNorm {
				minNorm = d
			}
		}
		px := minNorm * rayLength
		if px < wallHitPx {
			b.WallHits[i]++
		}
		if px < b.MinWallDist[i] {
			b.MinWallDist[i] = px
		}
		b.WallDistSum[i] += px
	}
}

// UpdateGateDistances refreshes each running car's distance to the midpoint
// of its next expected gate.
func (b *CarBatch) UpdateGateDistances(t *Track) {
	if len(t.Gates) == 0 {
		return
	}
	for i := 0; i < b.Count; i++ {
		if !b.Alive[i] {
			continue
		}
		mx, my := t.Gates[b.GateIndex[i]].Midpoint()
		b.DistToGate[i] = math.Hypot(b.PosX[i]-mx, b.PosY[i]-my)
	}
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
