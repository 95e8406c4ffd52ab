// Package sim provides the core batched vehicle simulation for neatrace.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - track.go: the immutable road mask, raycasting, and the .track format
//   - batch.go: structure-of-arrays car state, per-tick physics and life cycle
//   - world.go: the per-generation glue stepping sensors, controllers, physics
//
// # Architecture
//
// The sim package holds pure, deterministic simulation state; orchestration
// lives in sub-packages:
//   - sim/training/: the background training run (generation loop, fitness,
//     checkpoints, export, snapshot publication)
//   - sim/race/: playback races between exported racers
//
// Per-tick car updates share no mutable state across cars, so batch.go and
// sensor.go fan work out over a fixed worker pool (see parallel.go).
package sim
