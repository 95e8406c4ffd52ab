// FitnessEvaluator wraps the user-supplied scoring expression. The source is
// hot-reloadable: a new version is compiled and exercised against a synthetic
// telemetry sample before it replaces the active program, so a broken edit
// never interrupts a running generation.

package training

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/neatrace/neatrace/sim"
)

// DefaultFitnessSource is the scoring expression shipped with the trainer:
// gate progress dominates, with smaller rewards for closing on the next
// gate, completing laps, carrying speed, and keeping off the walls.
const DefaultFitnessSource = `car.total_checkpoints * 1000
	+ (1.0 - car.distance_to_next_cp) * 500
	+ car.laps * 10000
	+ car.average_speed * 10
	+ car.avg_wall_distance * 2`

// scoreEnv is the expression environment: the telemetry snapshot is in scope
// as `car`.
type scoreEnv struct {
	Car sim.CarStats `expr:"car"`
}

// ReloadResult reports the outcome of a fitness source reload.
type ReloadResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// FitnessEvaluator maps frozen telemetry to a scalar score using a compiled
// expression. Evaluate is safe to call while Reload swaps the program: the
// active program is double-buffered behind an atomic pointer and never
// mutated in place.
type FitnessEvaluator struct {
	mu      sync.Mutex // serializes reloads
	program atomic.Pointer[vm.Program]
	source  atomic.Pointer[string]
}

// NewFitnessEvaluator returns an evaluator running DefaultFitnessSource.
func NewFitnessEvaluator() *FitnessEvaluator {
	e := &FitnessEvaluator{}
	if res := e.Reload(DefaultFitnessSource); !res.Valid {
		// The shipped default must compile; failing here is a programming
		// error, not a configuration error.
		panic(fmt.Sprintf("default fitness source invalid: %s", res.Error))
	}
	return e
}

// Reload compiles src, runs it against a synthetic sample, and swaps it in
// only if both succeed. On failure the previously active program keeps
// running and the result carries a descriptive error.
func (e *FitnessEvaluator) Reload(src string) ReloadResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	prog, err := expr.Compile(src, expr.Env(scoreEnv{}))
	if err != nil {
		return ReloadResult{Valid: false, Error: fmt.Sprintf("compile error: %v", err)}
	}

	sample := scoreEnv{Car: sim.CarStats{
		TimeAlive:        100,
		TotalTime:        2000,
		TotalDistance:    50,
		AverageSpeed:     5,
		MaxSpeedReached:  8,
		CurrentSpeed:     3,
		DistanceToNextCP: 0.5,
		Crashed:          true,
		WallHits:         5,
		MinWallDistance:  3,
		AvgWallDistance:  10,
	}}
	out, err := vm.Run(prog, sample)
	if err != nil {
		return ReloadResult{Valid: false, Error: fmt.Sprintf("evaluation error on sample telemetry: %v", err)}
	}
	if _, err := toFloat(out); err != nil {
		return ReloadResult{Valid: false, Error: err.Error()}
	}

	e.program.Store(prog)
	srcCopy := src
	e.source.Store(&srcCopy)
	return ReloadResult{Valid: true}
}

// ReloadFile reloads the scoring source from a file.
func (e *FitnessEvaluator) ReloadFile(path string) ReloadResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReloadResult{Valid: false, Error: fmt.Sprintf("cannot read fitness source: %v", err)}
	}
	return e.Reload(string(data))
}

// Evaluate scores one car's telemetry. A runtime fault in the expression is
// returned as an error for the caller to surface as a configuration problem;
// it never panics past the evaluator.
func (e *FitnessEvaluator) Evaluate(stats sim.CarStats) (float64, error) {
	prog := e.program.Load()
	out, err := vm.Run(prog, scoreEnv{Car: stats})
	if err != nil {
		return 0, fmt.Errorf("fitness evaluation failed: %w", err)
	}
	return toFloat(out)
}

// Source returns the currently active scoring source.
func (e *FitnessEvaluator) Source() string {
	return *e.source.Load()
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("fitness expression must return a number, got %T", v)
}
