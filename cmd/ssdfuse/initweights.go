package main

import (
	"github.com/spf13/cobra"

	"ssdfuse/ssd"
)

var initOpts struct {
	out       string
	classes   int
	normalize bool
}

// init-weights exists so training pipelines and round-trip tests have a
// valid, fully-populated weights file to start from.
var initWeightsCmd = &cobra.Command{
	Use:   "init-weights",
	Short: "Write a freshly initialized weights file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := ssd.DefaultConfig(initOpts.classes)
		cfg.Normalize = initOpts.normalize
		model, err := ssd.Build(ssd.PhaseTrain, cfg, logger)
		if err != nil {
			return err
		}
		if err := model.SaveWeights(initOpts.out); err != nil {
			return err
		}
		logger.Infow("weights written", "path", initOpts.out)
		return nil
	},
}

func init() {
	initWeightsCmd.Flags().StringVarP(&initOpts.out, "out", "o", "weights.json", "Output path")
	initWeightsCmd.Flags().IntVarP(&initOpts.classes, "classes", "c", 2, "Class count including background")
	initWeightsCmd.Flags().BoolVar(&initOpts.normalize, "batchnorm", false, "Use the batch-normalized network layout")
	rootCmd.AddCommand(initWeightsCmd)
}
