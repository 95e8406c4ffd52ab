// CarStats is the frozen end-of-life telemetry handed to the fitness
// function, one snapshot per car, built from the batch arrays once the
// generation ends.

package sim

import "math"

// CarStats is a read-only snapshot of one car's telemetry, exposed to the
// scoring function as `car`.
type CarStats struct {
	CheckpointsReached int     `expr:"checkpoints_reached"` // gates passed in the current lap
	TotalCheckpoints   int     `expr:"total_checkpoints"`   // gates crossed across all laps
	Laps               int     `expr:"laps"`
	TimeAlive          int     `expr:"time_alive"` // ticks survived
	TotalTime          int     `expr:"total_time"` // max ticks allowed per generation
	TotalDistance      float64 `expr:"total_distance"`
	AverageSpeed       float64 `expr:"average_speed"`
	MaxSpeedReached    float64 `expr:"max_speed_reached"`
	CurrentSpeed       float64 `expr:"current_speed"`       // speed at death/end
	DistanceToNextCP   float64 `expr:"distance_to_next_cp"` // normalized [0,1]
	DriftCount         int     `expr:"drift_count"`         // ticks spent drifting
	IsAlive            bool    `expr:"is_alive"`            // survived to the end of the generation
	Crashed            bool    `expr:"crashed"`
	TimedOut           bool    `expr:"timed_out"`
	WallHits           int     `expr:"wall_hits"`
	MinWallDistance    float64 `expr:"min_wall_distance"`
	AvgWallDistance    float64 `expr:"avg_wall_distance"`
}

// BuildStats constructs the per-car telemetry snapshots from the frozen
// batch. trackMax is the larger track dimension, used to normalize the
// distance to the next gate.
func BuildStats(b *CarBatch, cfg *CarConfig, t *Track) []CarStats {
	trackMax := float64(t.Width)
	if t.Height > t.Width {
		trackMax = float64(t.Height)
	}
	stats := make([]CarStats, b.Count)
	for i := 0; i < b.Count; i++ {
		ticks := int(b.TicksAlive[i])
		denom := float64(ticks)
		if denom < 1 {
			denom = 1
		}
		minWall := b.MinWallDist[i]
		if math.IsInf(minWall, 1) {
			minWall = 0
		}
		distNorm := b.DistToGate[i] / trackMax
		if distNorm > 1 {
			distNorm = 1
		}
		stats[i] = CarStats{
			CheckpointsReached: int(b.GateIndex[i]),
			TotalCheckpoints:   int(b.TotalGates[i]),
			Laps:               int(b.Laps[i]),
			TimeAlive:          ticks,
			TotalTime:          cfg.MaxTicks,
			TotalDistance:      b.Distance[i],
			AverageSpeed:       b.SpeedSum[i] / denom,
			MaxSpeedReached:    b.TopSpeed[i],
			CurrentSpeed:       b.Speed[i],
			DistanceToNextCP:   distNorm,
			DriftCount:         int(b.DriftTicks[i]),
			IsAlive:            b.Outcome[i] == OutcomeRunning || b.Outcome[i] == OutcomeFinished,
			Crashed:            b.Outcome[i] == OutcomeCrashed,
			TimedOut:           b.Outcome[i] == OutcomeTimedOut,
			WallHits:           int(b.WallHits[i]),
			MinWallDistance:    minWall,
			AvgWallDistance:    b.WallDistSum[i] / denom,
		}
	}
	return stats
}
