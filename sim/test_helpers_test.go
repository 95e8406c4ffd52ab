package sim

// Track builders shared across the package tests.

// openTrack returns a track whose every cell is road.
func openTrack(w, h int) *Track {
	t := NewTrack(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t.SetRoad(x, y)
		}
	}
	return t
}

// corridorTrack is a 400x100 all-road strip with two vertical gates at
// x=100 and x=200 and the start pose at (50, 50) heading right. Crossing
// both gates in order completes one lap.
func corridorTrack() *Track {
	t := openTrack(400, 100)
	t.StartX = 50
	t.StartY = 50
	t.StartAngle = 0
	t.Gates = []Gate{
		{X1: 100, Y1: 0, X2: 100, Y2: 100},
		{X1: 200, Y1: 0, X2: 200, Y2: 100},
	}
	return t
}

// idleController never steers or accelerates.
type idleController struct{}

func (idleController) Drive([]float64) (float64, float64, error) {
	return 0, 0, nil
}

// fullThrottleController floors it and holds the wheel straight.
type fullThrottleController struct{}

func (fullThrottleController) Drive([]float64) (float64, float64, error) {
	return 0, 1, nil
}

func idleControllers(n int) []Controller {
	cs := make([]Controller, n)
	for i := range cs {
		cs[i] = idleController{}
	}
	return cs
}
