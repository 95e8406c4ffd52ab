// Trainer owns one long-lived training run: it maps genomes to controllers,
// drives the batch simulation for a generation, scores the frozen telemetry,
// and advances the population through the external evolutionary algorithm.
//
// The tick loop runs on a dedicated goroutine. All cross-goroutine commands
// (pause, stop, speed, apply-config, checkpoint save) travel over a channel
// and are drained only between ticks, so a command can never observe or
// mutate a half-updated batch. Snapshots go out through a single-slot
// mailbox; readers never block the loop.

package training

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baldhumanity/neat-go/neat"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/neatrace/neatrace/sim"
)

// Status is the observable state of a training run.
type Status int32

const (
	StatusIdle Status = iota
	StatusRunning
	StatusStopped   // stopped by command
	StatusCompleted // generation budget or fitness threshold reached
	StatusFailed    // background fault; see Err
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Precondition and lifecycle errors.
var (
	ErrRunActive    = errors.New("a training run is already active")
	ErrNotRunning   = errors.New("no training run is active")
	ErrTooFewGates  = errors.New("track needs at least two checkpoints")
	ErrStartOffRoad = errors.New("track start pose is not on road")
	ErrNoBestGenome = errors.New("no trained genome available yet")
)

// errStopRequested unwinds the generation loop on a stop command.
var errStopRequested = errors.New("stop requested")

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdUnpause
	cmdStop
	cmdSpeed
	cmdApplyConfig
	cmdSaveCheckpoint
)

type command struct {
	kind  cmdKind
	speed int
	cfg   *sim.CarConfig
	path  string
	reply chan error
}

// Trainer is the run-context object for one training session. One Trainer
// drives at most one run; single-instance enforcement is the caller's
// contract.
type Trainer struct {
	Evaluator *FitnessEvaluator

	// Loop-local state, touched only by the run goroutine after Start.
	world *sim.World
	pop   *neat.Population
	speed int // ticks advanced per snapshot frame

	// Shared state, guarded by mu. genIndex and speciesCount mirror the
	// population's counters so readers never touch the evolving population
	// itself; only the run goroutine writes them.
	mu            sync.Mutex
	carCfg        sim.CarConfig
	history       []GenerationRecord
	bestFitness   float64
	bestGenome    *GenomeJSON // serialized copy, safe to read while evolving
	genIndex      int
	speciesCount  int
	trackName     string
	runErr        error
	lastFitnesses []float64

	// Options, set before Start.
	MaxGenerations int  // 0 = run until stopped or threshold
	RealtimePace   bool // sleep one tick per frame for live viewing
	IncludeRays    bool // attach ray geometry to snapshots

	cmds    chan command
	done    chan struct{}
	started bool
	status  atomic.Int32
	mailbox snapshotMailbox
}

// NewTrainer creates an idle trainer with the default fitness source active.
func NewTrainer() *Trainer {
	return &Trainer{
		Evaluator: NewFitnessEvaluator(),
		speed:     1,
		cmds:      make(chan command, 16),
		done:      make(chan struct{}),
	}
}

// checkTrack enforces the start preconditions. No state is created on
// failure.
func checkTrack(track *sim.Track) error {
	if len(track.Gates) < 2 {
		return ErrTooFewGates
	}
	if !track.OnRoad(track.StartX, track.StartY) {
		return ErrStartOffRoad
	}
	return nil
}

// Start begins a fresh training run on its own goroutine. The evolution
// config is loaded from evolutionConfigPath with the network input arity
// overridden to match cfg's sensor layout.
func (t *Trainer) Start(track *sim.Track, cfg sim.CarConfig, evolutionConfigPath string) error {
	if err := checkTrack(track); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	neatCfg, err := loadEvolutionConfig(evolutionConfigPath, cfg.NumInputs())
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrRunActive
	}
	pop, err := neat.NewPopulation(neatCfg)
	if err != nil {
		return fmt.Errorf("failed to create population: %w", err)
	}
	t.launch(track, cfg, pop)
	return nil
}

// Resume restores a checkpoint and continues the run from its recorded
// generation. The supplied config must be topology-compatible with the one
// the checkpointed population was evolved under; on mismatch nothing is
// mutated and the error names every offending field.
func (t *Trainer) Resume(checkpointPath string, track *sim.Track, cfg sim.CarConfig, evolutionConfigPath string) error {
	if err := checkTrack(track); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cp, err := LoadCheckpoint(checkpointPath)
	if err != nil {
		return err
	}
	if err := ValidateForResume(&cfg, &cp.CarConfig); err != nil {
		return err
	}
	for _, w := range ResumeWarnings(&cfg, &cp.CarConfig) {
		logrus.Warnf("resume: %s", w)
	}

	neatCfg, err := loadEvolutionConfig(evolutionConfigPath, cfg.NumInputs())
	if err != nil {
		return err
	}
	relinkGenomes(cp, &neatCfg.Genome)

	stagnation, err := neat.NewStagnation(&neatCfg.Stagnation)
	if err != nil {
		return fmt.Errorf("failed to restore stagnation state: %w", err)
	}
	if cp.Reproduction != nil {
		cp.Reproduction.Stagnation = stagnation
		cp.Reproduction.Config = &neatCfg.Reproduction
	}
	if cp.SpeciesSet != nil {
		cp.SpeciesSet.Config = &neatCfg.SpeciesSet
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrRunActive
	}
	t.pop = &neat.Population{
		Config:       neatCfg,
		Population:   cp.Population,
		SpeciesSet:   cp.SpeciesSet,
		Reproduction: cp.Reproduction,
		Stagnation:   stagnation,
		Generation:   cp.Generation,
		BestGenome:   cp.BestGenome,
	}
	t.history = cp.History
	t.bestFitness = cp.BestFitness
	if cp.BestGenome != nil {
		gj := GenomeToJSON(cp.BestGenome)
		t.bestGenome = &gj
	}
	t.launch(track, cfg, t.pop)
	logrus.Infof("resumed training at generation %d with %d genomes", cp.Generation, len(cp.Population))
	return nil
}

// launch finalizes run state and starts the loop goroutine. Caller holds mu.
func (t *Trainer) launch(track *sim.Track, cfg sim.CarConfig, pop *neat.Population) {
	t.carCfg = cfg
	t.pop = pop
	t.genIndex = pop.Generation
	if pop.SpeciesSet != nil {
		t.speciesCount = len(pop.SpeciesSet.Species)
	}
	t.world = sim.NewWorld(track, &t.carCfg)
	t.started = true
	t.status.Store(int32(StatusRunning))
	go t.run()
}

// SetTrackName records the track label stamped into exports.
func (t *Trainer) SetTrackName(name string) {
	t.mu.Lock()
	t.trackName = name
	t.mu.Unlock()
}

// run is the background generation loop.
func (t *Trainer) run() {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.fail(fmt.Errorf("training run panicked: %v", r))
		}
	}()

	for generationsRun := 0; ; generationsRun++ {
		if t.MaxGenerations > 0 && generationsRun >= t.MaxGenerations {
			t.status.Store(int32(StatusCompleted))
			logrus.Infof("generation budget reached after %d generations", generationsRun)
			return
		}
		winner, err := t.pop.RunGeneration(t.evalGenomes)
		if err != nil {
			if errors.Is(err, errStopRequested) {
				t.status.Store(int32(StatusStopped))
				logrus.Info("training stopped")
				return
			}
			t.fail(err)
			return
		}
		t.recordGeneration()
		if winner != nil {
			t.status.Store(int32(StatusCompleted))
			logrus.Infof("fitness threshold reached by genome %d (%.2f)", winner.Key, winner.Fitness)
			return
		}
	}
}

func (t *Trainer) fail(err error) {
	t.mu.Lock()
	t.runErr = err
	t.mu.Unlock()
	t.status.Store(int32(StatusFailed))
	logrus.Errorf("training run failed: %v", err)
}

// evalGenomes runs one generation of simulation and writes each genome's
// fitness. Called by the evolutionary algorithm once per generation.
func (t *Trainer) evalGenomes(genomes map[int]*neat.Genome) error {
	keys := sortedGenomeKeys(genomes)
	controllers, err := buildControllers(genomes, keys)
	if err != nil {
		return err
	}

	t.world.ResetGeneration(len(keys))

	for {
		if err := t.handleCommands(); err != nil {
			return err
		}
		advance := t.speed
		if advance < 1 {
			advance = 1
		}
		alive := true
		for s := 0; s < advance && alive; s++ {
			alive, err = t.world.Step(controllers)
			if err != nil {
				return err
			}
		}
		t.publishSnapshot()
		if !alive {
			break
		}
		if t.RealtimePace {
			time.Sleep(sim.TickInterval)
		}
	}

	stats := sim.BuildStats(t.world.Cars, t.world.Config, t.world.Track)
	fitnesses := make([]float64, len(keys))
	for i, k := range keys {
		f, evalErr := t.Evaluator.Evaluate(stats[i])
		if evalErr != nil {
			// A fault on live telemetry is a configuration error, not a
			// crash: score zero and keep going.
			logrus.Warnf("fitness source fault for genome %d: %v", k, evalErr)
			f = 0
		}
		genomes[k].Fitness = f
		fitnesses[i] = f
	}

	t.mu.Lock()
	t.lastFitnesses = fitnesses
	t.genIndex = t.pop.Generation
	t.speciesCount = len(t.pop.SpeciesSet.Species)
	for i, k := range keys {
		if fitnesses[i] > t.bestFitness || t.bestGenome == nil {
			t.bestFitness = fitnesses[i]
			gj := GenomeToJSON(genomes[k])
			t.bestGenome = &gj
		}
	}
	t.mu.Unlock()
	return nil
}

// handleCommands drains pending commands without blocking. Runs only at
// tick boundaries.
func (t *Trainer) handleCommands() error {
	for {
		select {
		case cmd := <-t.cmds:
			if err := t.applyCommand(cmd); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (t *Trainer) applyCommand(cmd command) error {
	switch cmd.kind {
	case cmdStop:
		cmd.reply <- nil
		return errStopRequested
	case cmdPause:
		cmd.reply <- nil
		return t.pausedLoop()
	case cmdUnpause:
		cmd.reply <- nil // not paused; no-op
	case cmdSpeed:
		t.speed = cmd.speed
		cmd.reply <- nil
	case cmdApplyConfig:
		cmd.reply <- t.applyConfig(cmd.cfg)
	case cmdSaveCheckpoint:
		cmd.reply <- t.saveCheckpointNow(cmd.path)
	}
	return nil
}

// pausedLoop blocks between ticks until unpause or stop. Simulation state is
// untouched while paused, so unpausing continues bit-identically.
func (t *Trainer) pausedLoop() error {
	logrus.Info("training paused")
	for {
		cmd := <-t.cmds
		switch cmd.kind {
		case cmdUnpause:
			cmd.reply <- nil
			logrus.Info("training resumed")
			return nil
		case cmdStop:
			cmd.reply <- nil
			return errStopRequested
		case cmdPause:
			cmd.reply <- nil // already paused
		default:
			if err := t.applyCommand(cmd); err != nil {
				return err
			}
		}
	}
}

// applyConfig applies a live reconfiguration at a tick boundary. Fields that
// change the controller input arity are rejected against the active
// population's topology; everything else takes effect immediately.
func (t *Trainer) applyConfig(cfg *sim.CarConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ValidateForResume(cfg, &t.carCfg); err != nil {
		return err
	}
	t.carCfg = *cfg
	t.world.ReloadSensors()
	logrus.Info("run configuration updated")
	return nil
}

// saveCheckpointNow snapshots the full training state. Runs on the loop
// goroutine between ticks, so it can never race an in-flight step.
func (t *Trainer) saveCheckpointNow(path string) error {
	t.mu.Lock()
	cp := &Checkpoint{
		Version:      CheckpointVersion,
		Generation:   t.pop.Generation,
		CarConfig:    t.carCfg,
		History:      append([]GenerationRecord(nil), t.history...),
		BestFitness:  t.bestFitness,
		Population:   t.pop.Population,
		SpeciesSet:   t.pop.SpeciesSet,
		Reproduction: t.pop.Reproduction,
		BestGenome:   t.pop.BestGenome,
	}
	t.mu.Unlock()
	if err := SaveCheckpoint(path, cp); err != nil {
		return err
	}
	logrus.Infof("checkpoint saved to %s", path)
	return nil
}

// recordGeneration appends the generation's record after the population has
// advanced.
func (t *Trainer) recordGeneration() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lastFitnesses) == 0 {
		return
	}
	rec := GenerationRecord{
		Generation:   t.pop.Generation,
		BestFitness:  floats.Max(t.lastFitnesses),
		AvgFitness:   stat.Mean(t.lastFitnesses, nil),
		SpeciesCount: len(t.pop.SpeciesSet.Species),
	}
	t.genIndex = rec.Generation
	t.speciesCount = rec.SpeciesCount
	t.history = append(t.history, rec)
	logrus.Infof("[gen %04d] best=%.2f avg=%.2f species=%d",
		rec.Generation, rec.BestFitness, rec.AvgFitness, rec.SpeciesCount)
}

func (t *Trainer) publishSnapshot() {
	t.mu.Lock()
	history := t.history
	best := t.bestFitness
	speciesCount := t.speciesCount
	t.mu.Unlock()
	snap := buildSnapshot(t.world, t.pop.Generation, best,
		speciesCount, history, t.IncludeRays)
	t.mailbox.Publish(snap)
}

// send delivers a command to the loop and waits for its tick-boundary ack.
func (t *Trainer) send(cmd command) error {
	if Status(t.status.Load()) != StatusRunning {
		return ErrNotRunning
	}
	select {
	case t.cmds <- cmd:
	case <-t.done:
		return ErrNotRunning
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-t.done:
		return ErrNotRunning
	}
}

// Pause suspends the tick loop at the next tick boundary.
func (t *Trainer) Pause() error {
	return t.send(command{kind: cmdPause, reply: make(chan error, 1)})
}

// Unpause resumes a paused run.
func (t *Trainer) Unpause() error {
	return t.send(command{kind: cmdUnpause, reply: make(chan error, 1)})
}

// Stop cancels the run at the next tick boundary and waits for the loop to
// exit. No partial-generation population mutation is committed.
func (t *Trainer) Stop() error {
	if err := t.send(command{kind: cmdStop, reply: make(chan error, 1)}); err != nil {
		return err
	}
	<-t.done
	return nil
}

// SetSpeed sets how many ticks are advanced per snapshot frame. Physics
// semantics and tick size are unaffected.
func (t *Trainer) SetSpeed(ticksPerFrame int) error {
	if ticksPerFrame < 1 {
		ticksPerFrame = 1
	}
	return t.send(command{kind: cmdSpeed, speed: ticksPerFrame, reply: make(chan error, 1)})
}

// ApplyConfig applies resume-safe config changes at the next tick boundary.
func (t *Trainer) ApplyConfig(cfg sim.CarConfig) error {
	return t.send(command{kind: cmdApplyConfig, cfg: &cfg, reply: make(chan error, 1)})
}

// SaveCheckpointTo captures a consistent checkpoint at the next tick
// boundary.
func (t *Trainer) SaveCheckpointTo(path string) error {
	return t.send(command{kind: cmdSaveCheckpoint, path: path, reply: make(chan error, 1)})
}

// Wait blocks until the run loop exits.
func (t *Trainer) Wait() {
	<-t.done
}

// Status returns the observable run status.
func (t *Trainer) Status() Status {
	return Status(t.status.Load())
}

// Err returns the background fault that ended the run, if any.
func (t *Trainer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runErr
}

// LatestSnapshot returns the most recently published snapshot, or nil before
// the first tick. Never blocks the run loop; may be stale by design.
func (t *Trainer) LatestSnapshot() *Snapshot {
	return t.mailbox.Latest()
}

// History returns a copy of the generation history.
func (t *Trainer) History() []GenerationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]GenerationRecord(nil), t.history...)
}

// BestFitness returns the best fitness seen so far.
func (t *Trainer) BestFitness() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bestFitness
}

// ExportBest writes the best genome seen so far as a .racer file, bundled
// with the exact run configuration in effect. Independent of training state;
// callable while the run is live.
func (t *Trainer) ExportBest(path, name string) error {
	t.mu.Lock()
	genome := t.bestGenome
	cfg := t.carCfg
	trackName := t.trackName
	generation := t.genIndex
	speciesCount := t.speciesCount
	t.mu.Unlock()

	if genome == nil {
		return ErrNoBestGenome
	}
	return ExportRacer(path, name, *genome, &cfg, generation, speciesCount,
		trackName, t.Evaluator.Source())
}

// loadEvolutionConfig loads the NEAT config and overrides the network arity
// to match the sensor layout: inputs follow the controller contract, outputs
// are steering and throttle.
func loadEvolutionConfig(path string, numInputs int) (*neat.Config, error) {
	cfg, err := neat.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load evolution config %q: %w", path, err)
	}
	gc := &cfg.Genome
	gc.NumInputs = numInputs
	gc.NumOutputs = 2
	gc.InputKeys = make([]int, numInputs)
	for i := range gc.InputKeys {
		gc.InputKeys[i] = -(i + 1)
	}
	gc.OutputKeys = []int{0, 1}
	if gc.NodeKeyIndex < gc.NumOutputs {
		gc.NodeKeyIndex = gc.NumOutputs
	}
	return cfg, nil
}
