// Snapshot publication: an immutable point-in-time copy of the run written
// to a single-slot mailbox after a tick. Readers never block the writer and
// may miss intermediate ticks; they drive presentation, not correctness.

package training

import (
	"sync/atomic"

	"github.com/neatrace/neatrace/sim"
)

// GenerationRecord summarizes one completed generation. Appended to the
// history in order and never mutated afterwards.
type GenerationRecord struct {
	Generation   int     `json:"gen"`
	BestFitness  float64 `json:"best"`
	AvgFitness   float64 `json:"avg"`
	SpeciesCount int     `json:"species"`
}

// CarView is one car's presentation state inside a snapshot.
type CarView struct {
	X          float64          `json:"x"`
	Y          float64          `json:"y"`
	Heading    float64          `json:"angle"`
	VelHeading float64          `json:"velocity_angle"`
	Speed      float64          `json:"speed"`
	Alive      bool             `json:"alive"`
	Outcome    string           `json:"outcome"`
	GateIndex  int              `json:"checkpoint"`
	Laps       int              `json:"laps"`
	Rays       []sim.RaySegment `json:"rays,omitempty"` // nil when ray display is off or the car is dead
}

// Snapshot is the immutable state published to the presentation layer.
type Snapshot struct {
	Generation   int                `json:"generation"`
	Tick         int                `json:"tick"`
	MaxTicks     int                `json:"max_ticks"`
	AliveCount   int                `json:"alive_count"`
	TotalCount   int                `json:"total_count"`
	BestFitness  float64            `json:"best_fitness"`
	SpeciesCount int                `json:"species_count"`
	Cars         []CarView          `json:"cars"`
	History      []GenerationRecord `json:"history"`
}

// snapshotHistoryTail bounds how much history a snapshot carries.
const snapshotHistoryTail = 100

// snapshotMailbox is a single-slot, overwrite-on-publish mailbox. The writer
// never waits for readers; readers always get the latest published snapshot
// or nil before the first publish.
type snapshotMailbox struct {
	slot atomic.Pointer[Snapshot]
}

func (m *snapshotMailbox) Publish(s *Snapshot) { m.slot.Store(s) }
func (m *snapshotMailbox) Latest() *Snapshot   { return m.slot.Load() }

// buildSnapshot copies the live world state into a fresh immutable snapshot.
func buildSnapshot(w *sim.World, generation int, bestFitness float64, speciesCount int,
	history []GenerationRecord, includeRays bool) *Snapshot {

	b := w.Cars
	cars := make([]CarView, b.Count)
	for i := 0; i < b.Count; i++ {
		cars[i] = CarView{
			X:          b.PosX[i],
			Y:          b.PosY[i],
			Heading:    b.Heading[i],
			VelHeading: b.VelHeading[i],
			Speed:      b.Speed[i],
			Alive:      b.Alive[i],
			Outcome:    b.Outcome[i].String(),
			GateIndex:  int(b.GateIndex[i]),
			Laps:       int(b.Laps[i]),
		}
		if includeRays && b.Alive[i] {
			cars[i].Rays = w.RaysFor(i)
		}
	}

	tail := history
	if len(tail) > snapshotHistoryTail {
		tail = tail[len(tail)-snapshotHistoryTail:]
	}
	histCopy := make([]GenerationRecord, len(tail))
	copy(histCopy, tail)

	return &Snapshot{
		Generation:   generation,
		Tick:         w.Tick,
		MaxTicks:     w.Config.MaxTicks,
		AliveCount:   b.AliveCount(),
		TotalCount:   b.Count,
		BestFitness:  bestFitness,
		SpeciesCount: speciesCount,
		Cars:         cars,
		History:      histCopy,
	}
}
