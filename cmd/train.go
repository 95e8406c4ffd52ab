package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/neatrace/neatrace/sim"
	"github.com/neatrace/neatrace/sim/training"
)

var (
	// CLI flags for the training session
	trackPath       string // Track file (.track JSON)
	carConfigPath   string // Car/run configuration (INI)
	neatConfigPath  string // Evolution configuration (INI)
	resumePath      string // Checkpoint to resume from
	generations     int    // Generation budget (0 = until stopped)
	speedFactor     int    // Ticks advanced per snapshot frame
	realtimePace    bool   // Pace the loop at one tick per frame
	checkpointOut   string // Where periodic checkpoints are written
	checkpointEvery int    // Checkpoint every N generations (0 = off)
	fitnessFile     string // Fitness source file, hot-reloaded on change
	exportBest      string // Write the best racer here when the run ends
	exportName      string // Name stamped into the exported racer
	sessionFile     string // YAML session preset file
	sessionName     string // Preset name inside the session file
)

// trainCmd runs a headless training session
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a population of drivers on a track",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		if sessionName != "" {
			session := GetSession(sessionFile, sessionName)
			if session == nil {
				logrus.Fatalf("Session preset %q not found in %v", sessionName, sessionFile)
			}
			applySession(session)
		}

		track, err := sim.LoadTrack(trackPath)
		if err != nil {
			logrus.Fatalf("Failed to load track: %v", err)
		}
		carCfg := sim.DefaultCarConfig()
		if carConfigPath != "" {
			carCfg, err = sim.LoadCarConfig(carConfigPath)
			if err != nil {
				logrus.Fatalf("Failed to load car config: %v", err)
			}
		}

		trainer := training.NewTrainer()
		trainer.MaxGenerations = generations
		trainer.RealtimePace = realtimePace
		trainer.SetTrackName(trackPath)

		if fitnessFile != "" {
			if res := trainer.Evaluator.ReloadFile(fitnessFile); !res.Valid {
				logrus.Fatalf("Invalid fitness source %v: %v", fitnessFile, res.Error)
			}
		}

		logrus.Infof("Starting training on %v with %s (%d inputs)",
			trackPath, carCfg.Name, carCfg.NumInputs())

		if resumePath != "" {
			err = trainer.Resume(resumePath, track, carCfg, neatConfigPath)
		} else {
			err = trainer.Start(track, carCfg, neatConfigPath)
		}
		if err != nil {
			logrus.Fatalf("Failed to start training: %v", err)
		}
		if speedFactor > 1 {
			if err := trainer.SetSpeed(speedFactor); err != nil {
				logrus.Warnf("Failed to set speed: %v", err)
			}
		}

		stopWatch := make(chan struct{})
		if fitnessFile != "" {
			go watchFitnessFile(trainer, fitnessFile, stopWatch)
		}
		if checkpointEvery > 0 && checkpointOut != "" {
			go periodicCheckpoints(trainer, checkpointOut, checkpointEvery, stopWatch)
		}

		trainer.Wait()
		close(stopWatch)

		switch trainer.Status() {
		case training.StatusFailed:
			logrus.Fatalf("Training failed: %v", trainer.Err())
		default:
			logrus.Infof("Training finished: %v, best fitness %.2f",
				trainer.Status(), trainer.BestFitness())
		}

		if exportBest != "" {
			if err := trainer.ExportBest(exportBest, exportName); err != nil {
				logrus.Fatalf("Failed to export best racer: %v", err)
			}
			logrus.Infof("Best racer written to %v", exportBest)
		}
	},
}

// applySession overlays a preset onto flags the user did not set explicitly.
func applySession(s *Session) {
	if s.Generations > 0 {
		generations = s.Generations
	}
	if s.Speed > 0 {
		speedFactor = s.Speed
	}
	if s.Realtime {
		realtimePace = true
	}
	if s.CheckpointEvery > 0 {
		checkpointEvery = s.CheckpointEvery
	}
	if s.CheckpointOut != "" {
		checkpointOut = s.CheckpointOut
	}
	if s.FitnessFile != "" {
		fitnessFile = s.FitnessFile
	}
	if s.ExportBest != "" {
		exportBest = s.ExportBest
	}
	if s.ExportName != "" {
		exportName = s.ExportName
	}
}

// watchFitnessFile polls the fitness source for edits and hot-swaps it. A
// bad edit is rejected with the prior program kept active.
func watchFitnessFile(trainer *training.Trainer, path string, stop <-chan struct{}) {
	var lastMod time.Time
	if fi, err := os.Stat(path); err == nil {
		lastMod = fi.ModTime()
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fi, err := os.Stat(path)
			if err != nil || !fi.ModTime().After(lastMod) {
				continue
			}
			lastMod = fi.ModTime()
			if res := trainer.Evaluator.ReloadFile(path); !res.Valid {
				logrus.Warnf("Fitness source rejected, keeping previous: %v", res.Error)
				continue
			}
			logrus.Infof("Fitness source reloaded from %v", path)
		}
	}
}

// periodicCheckpoints saves the run every N generations.
func periodicCheckpoints(trainer *training.Trainer, path string, every int, stop <-chan struct{}) {
	saved := 0
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			gens := len(trainer.History())
			if gens < saved+every {
				continue
			}
			if err := trainer.SaveCheckpointTo(path); err != nil {
				logrus.Warnf("Checkpoint save failed: %v", err)
				continue
			}
			saved = gens
		}
	}
}

// init sets up CLI flags for the train command
func init() {

	trainCmd.Flags().StringVar(&trackPath, "track", "", "Track file to train on (.track)")
	trainCmd.Flags().StringVar(&carConfigPath, "car-config", "", "Car configuration file (INI)")
	trainCmd.Flags().StringVar(&neatConfigPath, "neat-config", "config/neat_config.ini", "Evolution configuration file (INI)")
	trainCmd.Flags().StringVar(&resumePath, "resume", "", "Checkpoint file to resume from")
	trainCmd.Flags().IntVar(&generations, "generations", 100, "Number of generations to run (0 = until stopped)")
	trainCmd.Flags().IntVar(&speedFactor, "speed", 1, "Ticks advanced per snapshot frame")
	trainCmd.Flags().BoolVar(&realtimePace, "realtime", false, "Pace the simulation at one tick per frame")
	trainCmd.Flags().StringVar(&checkpointOut, "checkpoint-out", "", "Checkpoint output file")
	trainCmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0, "Save a checkpoint every N generations")
	trainCmd.Flags().StringVar(&fitnessFile, "fitness-file", "", "Fitness source file, hot-reloaded when edited")
	trainCmd.Flags().StringVar(&exportBest, "export-best", "", "Write the best genome as a .racer file when done")
	trainCmd.Flags().StringVar(&exportName, "export-name", "best", "Name stamped into the exported racer")
	trainCmd.Flags().StringVar(&sessionFile, "session-file", "config/sessions.yaml", "YAML file with session presets")
	trainCmd.Flags().StringVar(&sessionName, "session", "", "Session preset to apply")

	trainCmd.MarkFlagRequired("track")

	// Attach `train` as a subcommand to `root`
	rootCmd.AddCommand(trainCmd)
}
