// Package race plays back exported racers against each other on a track.
// No evolution happens here: each racer's frozen network drives one car
// under the exact car configuration it was exported with, using the same
// batch physics as training. Because every racer may carry a different
// configuration, each one runs in its own single-car world and all worlds
// advance in lockstep.
package race

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neatrace/neatrace/sim"
	"github.com/neatrace/neatrace/sim/training"
)

// Lifecycle errors.
var (
	ErrNoRacers    = errors.New("race has no racers")
	ErrRaceActive  = errors.New("race is already running")
	ErrRaceStopped = errors.New("race is not running")
)

// Standing is one racer's position in the live ranking.
type Standing struct {
	Position    int     `json:"position"`
	Name        string  `json:"name"`
	Laps        int     `json:"laps"`
	Checkpoints int     `json:"checkpoints"`
	FinishTick  int     `json:"finish_tick,omitempty"`
	Finished    bool    `json:"finished"`
	DNF         bool    `json:"dnf"`
	Outcome     string  `json:"outcome"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Heading     float64 `json:"angle"`
	Speed       float64 `json:"speed"`
}

// State is a consistent view of the race at one tick.
type State struct {
	Tick       int        `json:"tick"`
	TargetLaps int        `json:"target_laps"`
	Over       bool       `json:"over"`
	Standings  []Standing `json:"standings"`
}

// entry is one racer plus the world it drives in.
type entry struct {
	racer      *training.Racer
	world      *sim.World
	controller [1]sim.Controller
	cfg        sim.CarConfig
	finishTick int
	finished   bool
}

// Manager runs one race on a background goroutine and publishes its state
// through a single-slot snapshot. Readers never block the race loop.
type Manager struct {
	track      *sim.Track
	targetLaps int

	// Pace, in ticks advanced per frame; <=0 means as fast as possible.
	Realtime bool

	mu      sync.Mutex
	entries []*entry
	started bool

	state  atomic.Pointer[State]
	stop   chan struct{}
	done   chan struct{}
	stopMu sync.Once
}

// NewManager prepares a race on the given track. targetLaps below 1 is
// clamped to 1.
func NewManager(track *sim.Track, targetLaps int) *Manager {
	if targetLaps < 1 {
		targetLaps = 1
	}
	return &Manager{
		track:      track,
		targetLaps: targetLaps,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// AddRacerFile imports a .racer file and enters it into the race.
func (m *Manager) AddRacerFile(path string) error {
	racer, err := training.ImportRacer(path)
	if err != nil {
		return err
	}
	return m.AddRacer(racer)
}

// AddRacer enters an already-imported racer. Must be called before Start.
func (m *Manager) AddRacer(racer *training.Racer) error {
	ctrl, err := training.NewNetworkController(racer.Genome)
	if err != nil {
		return fmt.Errorf("racer %q: %w", racer.Name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrRaceActive
	}
	e := &entry{racer: racer, cfg: racer.Config}
	e.controller[0] = ctrl
	e.world = sim.NewWorld(m.track, &e.cfg)
	m.entries = append(m.entries, e)
	return nil
}

// Start launches the race loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrRaceActive
	}
	if len(m.entries) == 0 {
		return ErrNoRacers
	}
	for _, e := range m.entries {
		e.world.ResetGeneration(1)
	}
	m.started = true
	logrus.Infof("race started: %d racers, %d laps", len(m.entries), m.targetLaps)
	go m.run()
	return nil
}

// Stop ends the race early. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopMu.Do(func() { close(m.stop) })
}

// Wait blocks until the race loop exits.
func (m *Manager) Wait() {
	<-m.done
}

// State returns the latest published race state, or nil before the first
// tick. May be one tick stale.
func (m *Manager) State() *State {
	return m.state.Load()
}

func (m *Manager) run() {
	defer close(m.done)
	tick := 0
	for {
		select {
		case <-m.stop:
			m.publish(tick, true)
			logrus.Info("race stopped")
			return
		default:
		}

		anyRunning := false
		for _, e := range m.entries {
			if e.finished || e.world.Cars.Outcome[0].Terminal() {
				continue
			}
			running, err := e.world.Step(e.controller[:])
			if err != nil {
				// A racer whose network faults is out of the race.
				logrus.Warnf("racer %q dropped: %v", e.racer.Name, err)
				e.world.Cars.Alive[0] = false
				e.world.Cars.Outcome[0] = sim.OutcomeCrashed
				continue
			}
			if int(e.world.Cars.Laps[0]) >= m.targetLaps {
				e.finished = true
				e.finishTick = tick + 1
				logrus.Infof("racer %q finished at tick %d", e.racer.Name, e.finishTick)
				continue
			}
			if running {
				anyRunning = true
			}
		}
		tick++
		m.publish(tick, !anyRunning)
		if !anyRunning {
			logrus.Info("race over")
			return
		}
		if m.Realtime {
			time.Sleep(sim.TickInterval)
		}
	}
}

// publish ranks the field and swaps in a fresh state snapshot. Finished
// racers rank by finish time, the rest by progress, DNFs last.
func (m *Manager) publish(tick int, over bool) {
	standings := make([]Standing, len(m.entries))
	for i, e := range m.entries {
		b := e.world.Cars
		out := b.Outcome[0]
		standings[i] = Standing{
			Name:        e.racer.Name,
			Laps:        int(b.Laps[0]),
			Checkpoints: int(b.TotalGates[0]),
			FinishTick:  e.finishTick,
			Finished:    e.finished,
			DNF:         !e.finished && (out == sim.OutcomeCrashed || out == sim.OutcomeTimedOut),
			Outcome:     out.String(),
			X:           b.PosX[0],
			Y:           b.PosY[0],
			Heading:     b.Heading[0],
			Speed:       b.Speed[0],
		}
	}
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Finished != b.Finished {
			return a.Finished
		}
		if a.Finished {
			return a.FinishTick < b.FinishTick
		}
		if a.DNF != b.DNF {
			return b.DNF
		}
		if a.Checkpoints != b.Checkpoints {
			return a.Checkpoints > b.Checkpoints
		}
		return a.Name < b.Name
	})
	for i := range standings {
		standings[i].Position = i + 1
	}
	m.state.Store(&State{
		Tick:       tick,
		TargetLaps: m.targetLaps,
		Over:       over,
		Standings:  standings,
	})
}
