package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/neatrace/neatrace/sim"
	"github.com/neatrace/neatrace/sim/race"
)

var (
	// CLI flags for race playback
	raceTrackPath string // Track file to race on
	raceLaps      int    // Laps needed to finish
	raceRealtime  bool   // Pace at one tick per frame
)

// raceCmd plays exported racers against each other
var raceCmd = &cobra.Command{
	Use:   "race [racer files...]",
	Short: "Race exported .racer files against each other",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		track, err := sim.LoadTrack(raceTrackPath)
		if err != nil {
			logrus.Fatalf("Failed to load track: %v", err)
		}

		manager := race.NewManager(track, raceLaps)
		manager.Realtime = raceRealtime
		for _, path := range args {
			if err := manager.AddRacerFile(path); err != nil {
				logrus.Fatalf("Failed to load racer %v: %v", path, err)
			}
		}
		if err := manager.Start(); err != nil {
			logrus.Fatalf("Failed to start race: %v", err)
		}
		manager.Wait()

		state := manager.State()
		if state == nil {
			logrus.Fatal("Race produced no state")
		}
		logrus.Infof("Race over after %d ticks", state.Tick)
		for _, s := range state.Standings {
			switch {
			case s.Finished:
				logrus.Infof("  %d. %-20s finished at tick %d (%d laps)", s.Position, s.Name, s.FinishTick, s.Laps)
			case s.DNF:
				logrus.Infof("  %d. %-20s DNF (%s, %d checkpoints)", s.Position, s.Name, s.Outcome, s.Checkpoints)
			default:
				logrus.Infof("  %d. %-20s %d checkpoints", s.Position, s.Name, s.Checkpoints)
			}
		}
	},
}

// init sets up CLI flags for the race command
func init() {

	raceCmd.Flags().StringVar(&raceTrackPath, "track", "", "Track file to race on (.track)")
	raceCmd.Flags().IntVar(&raceLaps, "laps", 3, "Laps needed to finish the race")
	raceCmd.Flags().BoolVar(&raceRealtime, "realtime", false, "Pace the race at one tick per frame")

	raceCmd.MarkFlagRequired("track")

	rootCmd.AddCommand(raceCmd)
}
