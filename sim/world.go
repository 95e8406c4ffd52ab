// World glues one generation together: it owns the batch, the sensor caster,
// and the tick counter, and advances everything one tick per Step call.

package sim

import (
	"fmt"
	"math"
)

// Controller maps a car's input vector to steering and throttle, both in
// [-1, 1]. One controller per car, read-only for the generation.
type Controller interface {
	Drive(inputs []float64) (steering, throttle float64, err error)
}

// World manages one generation of cars on a track.
type World struct {
	Track   *Track
	Config  *CarConfig
	Cars    *CarBatch
	Sensors *SensorCaster
	Tick    int

	// Scratch buffers, sized at ResetGeneration so the tick path does not
	// allocate.
	rayBuf      []float64
	steerBuf    []float64
	throttleBuf []float64
	inputBuf    []float64
}

// NewWorld creates a world for the given track and config.
func NewWorld(t *Track, cfg *CarConfig) *World {
	return &World{
		Track:   t,
		Config:  cfg,
		Cars:    NewCarBatch(),
		Sensors: NewSensorCaster(cfg),
	}
}

// ResetGeneration places count cars at the start pose and rebuilds the
// sensor caster from the current config, picking up any resume-safe field
// changes applied between generations. Rays are cast once at the start pose
// so the first tick's controllers see real readings.
func (w *World) ResetGeneration(count int) {
	w.Sensors = NewSensorCaster(w.Config)
	w.Cars.Reset(count, w.Track)
	w.Tick = 0

	rayCount := len(w.Sensors.Angles)
	if len(w.rayBuf) != count*rayCount {
		w.rayBuf = make([]float64, count*rayCount)
	}
	if len(w.steerBuf) != count {
		w.steerBuf = make([]float64, count)
		w.throttleBuf = make([]float64, count)
	}
	if len(w.inputBuf) != w.Config.NumInputs() {
		w.inputBuf = make([]float64, w.Config.NumInputs())
	}
	w.Sensors.CastAll(w.Cars, w.Track, w.rayBuf)
}

// Step executes one simulation tick: controllers, physics, then sensors and
// wall and gate telemetry at the post-move positions. Controllers read the
// rays cast at the end of the previous tick, which are current because
// nothing moves between ticks. Returns false once every car is terminal or
// the tick limit is reached, at which point the remaining cars are marked
// finished.
func (w *World) Step(controllers []Controller) (bool, error) {
	if len(controllers) != w.Cars.Count {
		return false, fmt.Errorf("have %d controllers for %d cars", len(controllers), w.Cars.Count)
	}
	if w.Cars.AllTerminal() {
		return false, nil
	}

	for i := 0; i < w.Cars.Count; i++ {
		if !w.Cars.Alive[i] {
			w.steerBuf[i] = 0
			w.throttleBuf[i] = 0
			continue
		}
		steer, throttle, err := controllers[i].Drive(w.ControllerInputs(i, w.inputBuf))
		if err != nil {
			return false, fmt.Errorf("controller %d failed at tick %d: %w", i, w.Tick, err)
		}
		w.steerBuf[i] = steer
		w.throttleBuf[i] = throttle
	}

	w.Cars.Step(w.steerBuf, w.throttleBuf, w.Config, w.Track)
	w.Sensors.CastAll(w.Cars, w.Track, w.rayBuf)
	w.Cars.UpdateWallStats(w.rayBuf, len(w.Sensors.Angles), w.Sensors.MaxLen)
	w.Cars.UpdateGateDistances(w.Track)
	w.Tick++

	if w.Tick >= w.Config.MaxTicks {
		w.Cars.FinishRemaining()
		return false, nil
	}
	return !w.Cars.AllTerminal(), nil
}

// ControllerInputs assembles car i's input vector into buf and returns it:
// normalized ray distances, normalized speed, heading, throttle state, and
// the drift angle when drift is enabled. The layout is the controller
// contract; its arity must match the population's network topology.
func (w *World) ControllerInputs(i int, buf []float64) []float64 {
	rayCount := len(w.Sensors.Angles)
	copy(buf, w.rayBuf[i*rayCount:(i+1)*rayCount])

	b := w.Cars
	cfg := w.Config
	buf[rayCount] = b.Speed[i] / cfg.MaxSpeed
	buf[rayCount+1] = b.Heading[i] / math.Pi
	accel := cfg.Acceleration
	if accel < 1e-6 {
		accel = 1e-6
	}
	buf[rayCount+2] = clamp1((b.Speed[i] - b.PrevSpeed[i]) / accel)
	if cfg.DriftEnabled {
		buf[rayCount+3] = clamp1((b.Heading[i] - b.VelHeading[i]) / math.Pi)
	}
	return buf
}

// ReloadSensors rebuilds the sensor caster from the current config and
// refreshes the ray readings at the cars' current positions. The ray count
// must be unchanged; that is the caller's topology contract.
func (w *World) ReloadSensors() {
	w.Sensors = NewSensorCaster(w.Config)
	w.Sensors.CastAll(w.Cars, w.Track, w.rayBuf)
}

// RaysFor returns the ray segments of car i from the most recent tick, for
// snapshot publication.
func (w *World) RaysFor(i int) []RaySegment {
	return w.Sensors.Segments(w.Cars, w.rayBuf, i)
}
