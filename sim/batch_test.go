package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepN advances the batch n ticks with constant steering and throttle for
// every car.
func stepN(b *CarBatch, n int, steer, throttle float64, cfg *CarConfig, tr *Track) {
	steerBuf := make([]float64, b.Count)
	throttleBuf := make([]float64, b.Count)
	for i := range steerBuf {
		steerBuf[i] = steer
		throttleBuf[i] = throttle
	}
	for tick := 0; tick < n; tick++ {
		b.Step(steerBuf, throttleBuf, cfg, tr)
	}
}

func TestStep_FullThrottle_AcceleratesAndClamps(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	// Saturates in a few ticks, well before the corridor ends
	cfg.Acceleration = 50
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 1, 0, 1, &cfg, tr)
	assert.InDelta(t, cfg.Acceleration*TickDt, b.Speed[0], 1e-12)

	stepN(b, 30, 0, 1, &cfg, tr)
	require.True(t, b.Alive[0])
	assert.Equal(t, cfg.MaxSpeed, b.Speed[0])
	assert.Equal(t, cfg.MaxSpeed, b.TopSpeed[0])
}

func TestStep_Braking_NeverReverses(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 10, 0, 1, &cfg, tr)
	require.Greater(t, b.Speed[0], 0.0)

	stepN(b, 600, 0, -1, &cfg, tr)
	assert.Equal(t, 0.0, b.Speed[0])
}

func TestStep_IdleCar_NeverMoves(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	cfg.StallTimeout = 10000
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 100, 0, 0, &cfg, tr)
	assert.Equal(t, tr.StartX, b.PosX[0])
	assert.Equal(t, tr.StartY, b.PosY[0])
	assert.Equal(t, 0.0, b.Distance[0])
}

func TestStep_LeavingRoad_Crashes(t *testing.T) {
	// All-road strip: driving right eventually runs off the map edge
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 60*60, 0, 1, &cfg, tr)
	assert.False(t, b.Alive[0])
	assert.Equal(t, OutcomeCrashed, b.Outcome[0])
	assert.True(t, b.Outcome[0].Terminal())
}

func TestStep_TerminalCar_StateFrozen(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 60*60, 0, 1, &cfg, tr)
	require.False(t, b.Alive[0])

	x, y := b.PosX[0], b.PosY[0]
	ticks := b.TicksAlive[0]
	gates := b.TotalGates[0]
	outcome := b.Outcome[0]

	stepN(b, 100, 1, 1, &cfg, tr)

	assert.Equal(t, x, b.PosX[0])
	assert.Equal(t, y, b.PosY[0])
	assert.Equal(t, ticks, b.TicksAlive[0])
	assert.Equal(t, gates, b.TotalGates[0])
	assert.Equal(t, outcome, b.Outcome[0])
}

func TestStep_GateProgressAndLapCounting(t *testing.T) {
	// Two gates at x=100 and x=200; crossing both in order is one lap
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	cfg.StallTimeout = 100000
	b := NewCarBatch()
	b.Reset(1, tr)

	prevTotal := int32(0)
	sawLap := false
	for tick := 0; tick < 60*60 && b.Alive[0]; tick++ {
		stepN(b, 1, 0, 1, &cfg, tr)

		// Total gate count never decreases
		require.GreaterOrEqual(t, b.TotalGates[0], prevTotal)
		prevTotal = b.TotalGates[0]

		if b.Laps[0] > 0 {
			sawLap = true
		}
	}

	// The car drives right through both gates before running off the edge
	assert.True(t, sawLap)
	assert.Equal(t, int32(2), b.TotalGates[0])
	assert.Equal(t, int32(1), b.Laps[0])
	assert.Equal(t, int32(0), b.GateIndex[0])
}

func TestStep_GateCrossing_ResetsStallTimer(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	cfg.StallTimeout = 100000
	b := NewCarBatch()
	b.Reset(1, tr)

	for tick := 0; tick < 60*60 && b.TotalGates[0] == 0; tick++ {
		stepN(b, 1, 0, 1, &cfg, tr)
	}
	require.Equal(t, int32(1), b.TotalGates[0])
	assert.Equal(t, int32(0), b.StallTicks[0])
}

func TestStep_SkippedGateDoesNotCount(t *testing.T) {
	// Car placed between the gates only ever crosses gate 1, but gate 0 is
	// expected; no progress is recorded
	tr := corridorTrack()
	tr.StartX = 150
	cfg := DefaultCarConfig()
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 60*60, 0, 1, &cfg, tr)
	assert.Equal(t, int32(0), b.TotalGates[0])
	assert.Equal(t, int32(0), b.GateIndex[0])
}

func TestStep_CrashTick_RegistersNoGateCrossing(t *testing.T) {
	// Road ends at x=98 and the expected gate sits at x=102, just beyond
	// it. A fast car's tick segment sweeps past the gate line, but it
	// crashes mid-substep first; the crash tick must record nothing.
	tr := NewTrack(400, 100)
	for y := 0; y < 100; y++ {
		for x := 0; x < 98; x++ {
			tr.SetRoad(x, y)
		}
	}
	tr.StartX = 90
	tr.StartY = 50
	tr.StartAngle = 0
	tr.Gates = []Gate{{X1: 102, Y1: 0, X2: 102, Y2: 100}}

	cfg := DefaultCarConfig()
	cfg.MaxSpeed = 60
	cfg.Acceleration = 36000 // 20px in the first tick
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 1, 0, 1, &cfg, tr)
	require.False(t, b.Alive[0])
	assert.Equal(t, OutcomeCrashed, b.Outcome[0])
	assert.Equal(t, int32(0), b.TotalGates[0])
	assert.Equal(t, int32(0), b.GateIndex[0])
	assert.Equal(t, int32(1), b.StallTicks[0])
}

func TestStep_StallTimeout_StrictlyExceeds(t *testing.T) {
	// With stall_timeout=200 an idle car survives tick 200 and times out on
	// tick 201
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	cfg.StallTimeout = 200
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 200, 0, 0, &cfg, tr)
	assert.True(t, b.Alive[0], "car must survive tick 200")
	assert.Equal(t, OutcomeRunning, b.Outcome[0])

	stepN(b, 1, 0, 0, &cfg, tr)
	assert.False(t, b.Alive[0], "car must time out on tick 201")
	assert.Equal(t, OutcomeTimedOut, b.Outcome[0])
	assert.Equal(t, int32(201), b.TicksAlive[0])
}

func TestStep_HighSpeed_CannotTunnelThroughGrass(t *testing.T) {
	// A 9px grass strip across the path; per-tick travel of 20px would step
	// over it without movement subdivision
	tr := openTrack(400, 100)
	for y := 0; y < 100; y++ {
		for x := 96; x < 105; x++ {
			tr.offroad[y*tr.Width+x] = true
		}
	}
	tr.StartX = 50
	tr.StartY = 50
	tr.StartAngle = 0

	cfg := DefaultCarConfig()
	cfg.MaxSpeed = 60 // 20 px per tick
	cfg.Acceleration = 10000
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 20, 0, 1, &cfg, tr)
	assert.False(t, b.Alive[0])
	assert.Equal(t, OutcomeCrashed, b.Outcome[0])
	// The crash point is inside or at the strip, not beyond it
	assert.Less(t, b.PosX[0], 105.0)
}

func TestStep_SteeringRotatesHeading(t *testing.T) {
	tr := openTrack(400, 400)
	tr.StartX = 200
	tr.StartY = 200
	cfg := DefaultCarConfig()
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 1, 1, 0, &cfg, tr)
	assert.InDelta(t, cfg.RotationSpeed*TickDt, b.Heading[0], 1e-12)

	stepN(b, 2, -1, 0, &cfg, tr)
	assert.InDelta(t, -cfg.RotationSpeed*TickDt, b.Heading[0], 1e-12)
}

func TestStep_DriftDisabled_VelocityFollowsHeading(t *testing.T) {
	tr := openTrack(400, 400)
	tr.StartX = 200
	tr.StartY = 200
	cfg := DefaultCarConfig()
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 30, 0.5, 1, &cfg, tr)
	assert.Equal(t, b.Heading[0], b.VelHeading[0])
	assert.Equal(t, int32(0), b.DriftTicks[0])
}

func TestStep_DriftEnabled_VelocityHeadingLags(t *testing.T) {
	tr := openTrack(400, 400)
	tr.StartX = 200
	tr.StartY = 200
	cfg := DefaultCarConfig()
	cfg.DriftEnabled = true
	cfg.Grip = 0.1
	cfg.RotationSpeed = 8
	b := NewCarBatch()
	b.Reset(1, tr)

	stepN(b, 20, 1, 1, &cfg, tr)
	assert.Less(t, b.VelHeading[0], b.Heading[0])
	assert.Greater(t, b.DriftTicks[0], int32(0))
}

func TestFinishRemaining_OnlyRunningCarsFinish(t *testing.T) {
	tr := corridorTrack()
	b := NewCarBatch()
	b.Reset(3, tr)

	// Crash car 1 by marking it terminal directly
	b.Alive[1] = false
	b.Outcome[1] = OutcomeCrashed

	b.FinishRemaining()
	assert.Equal(t, OutcomeFinished, b.Outcome[0])
	assert.Equal(t, OutcomeCrashed, b.Outcome[1])
	assert.Equal(t, OutcomeFinished, b.Outcome[2])
	assert.True(t, b.AllTerminal())
	assert.Equal(t, 0, b.AliveCount())
}

func TestReset_ClearsAllState(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	b := NewCarBatch()
	b.Reset(2, tr)

	stepN(b, 300, 0.3, 1, &cfg, tr)
	b.Reset(2, tr)

	for i := 0; i < 2; i++ {
		assert.Equal(t, tr.StartX, b.PosX[i])
		assert.Equal(t, tr.StartY, b.PosY[i])
		assert.Equal(t, 0.0, b.Speed[i])
		assert.True(t, b.Alive[i])
		assert.Equal(t, OutcomeRunning, b.Outcome[i])
		assert.Equal(t, int32(0), b.TotalGates[i])
		assert.Equal(t, int32(0), b.TicksAlive[i])
	}
}

func TestUpdateWallStats_GrazingCountsAsWallHit(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	b := NewCarBatch()
	b.Reset(1, tr)

	// One ray reporting 4px of clearance: below the 5px grazing threshold
	rays := []float64{4.0 / cfg.RayLength}
	b.UpdateWallStats(rays, 1, cfg.RayLength)
	assert.Equal(t, int32(1), b.WallHits[0])
	assert.InDelta(t, 4.0, b.MinWallDist[0], 1e-9)

	// A clear reading is not a hit but still folds into the average
	rays[0] = 100.0 / cfg.RayLength
	b.UpdateWallStats(rays, 1, cfg.RayLength)
	assert.Equal(t, int32(1), b.WallHits[0])
	assert.InDelta(t, 4.0, b.MinWallDist[0], 1e-9)
	assert.InDelta(t, 104.0, b.WallDistSum[0], 1e-9)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "running", OutcomeRunning.String())
	assert.Equal(t, "crashed", OutcomeCrashed.String())
	assert.Equal(t, "timed_out", OutcomeTimedOut.String())
	assert.Equal(t, "finished", OutcomeFinished.String())
}
