package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/neatrace/neatrace/sim/training"
)

// fitnessCmd validates a fitness source without starting a run
var fitnessCmd = &cobra.Command{
	Use:   "fitness [source file]",
	Short: "Validate a fitness source file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		evaluator := training.NewFitnessEvaluator()
		if len(args) == 0 {
			fmt.Println("Default fitness source:")
			fmt.Println(evaluator.Source())
			return
		}

		if res := evaluator.ReloadFile(args[0]); !res.Valid {
			logrus.Fatalf("Fitness source invalid: %v", res.Error)
		}
		logrus.Infof("Fitness source %v is valid", args[0])
	},
}

func init() {
	rootCmd.AddCommand(fitnessCmd)
}
