package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCastAll_OpenSpace_AllRaysMax(t *testing.T) {
	tr := openTrack(1000, 1000)
	tr.StartX = 500
	tr.StartY = 500
	cfg := DefaultCarConfig()
	sc := NewSensorCaster(&cfg)

	b := NewCarBatch()
	b.Reset(2, tr)

	out := make([]float64, 2*len(sc.Angles))
	sc.CastAll(b, tr, out)

	for _, d := range out {
		assert.Equal(t, 1.0, d)
	}
}

func TestCastAll_NearWall_ShorterReadings(t *testing.T) {
	// Car close to the corridor's top edge: the upward rays read short,
	// the forward ray stays clear
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	sc := NewSensorCaster(&cfg)

	b := NewCarBatch()
	b.Reset(1, tr)
	b.PosY[0] = 10

	out := make([]float64, len(sc.Angles))
	sc.CastAll(b, tr, out)

	// Fan is -90..90 degrees; index 0 points up (toward y=0)
	assert.Less(t, out[0], 0.1)
	assert.Equal(t, 1.0, out[2])
	// Downward ray sees the far edge at ~90px
	assert.Greater(t, out[4], out[0])
}

func TestCastAll_Deterministic(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	sc := NewSensorCaster(&cfg)

	b := NewCarBatch()
	b.Reset(4, tr)
	b.Heading[2] = 0.9

	first := make([]float64, 4*len(sc.Angles))
	sc.CastAll(b, tr, first)
	for run := 0; run < 5; run++ {
		again := make([]float64, 4*len(sc.Angles))
		sc.CastAll(b, tr, again)
		assert.Equal(t, first, again)
	}
}

func TestCastAll_DeadCarSlotsUntouched(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	sc := NewSensorCaster(&cfg)

	b := NewCarBatch()
	b.Reset(2, tr)
	b.Alive[0] = false
	b.Outcome[0] = OutcomeCrashed

	out := make([]float64, 2*len(sc.Angles))
	for i := range out {
		out[i] = -7
	}
	sc.CastAll(b, tr, out)

	for r := 0; r < len(sc.Angles); r++ {
		assert.Equal(t, -7.0, out[r], "dead car slot %d overwritten", r)
		assert.NotEqual(t, -7.0, out[len(sc.Angles)+r])
	}
}

func TestSegments_EndpointsMatchDistances(t *testing.T) {
	tr := corridorTrack()
	cfg := DefaultCarConfig()
	cfg.RayCount = 1
	cfg.ComputeRayAngles()
	sc := NewSensorCaster(&cfg)

	b := NewCarBatch()
	b.Reset(1, tr)

	out := make([]float64, 1)
	sc.CastAll(b, tr, out)
	segs := sc.Segments(b, out, 0)
	require.Len(t, segs, 1)

	assert.Equal(t, b.PosX[0], segs[0].X1)
	assert.Equal(t, b.PosY[0], segs[0].Y1)
	assert.Equal(t, out[0], segs[0].Dist)
	// Forward ray: endpoint lies straight ahead at the measured distance
	assert.InDelta(t, b.PosX[0]+out[0]*cfg.RayLength, segs[0].X2, 1e-9)
	assert.InDelta(t, b.PosY[0], segs[0].Y2, 1e-9)
}
