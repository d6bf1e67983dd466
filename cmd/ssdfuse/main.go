// ssdfuse: single-shot multi-scale object detection over fused multi-phase input.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ssdfuse/utils"
)

var (
	verbose bool
	logger  *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "ssdfuse",
	Short: "Single-shot detector with shallow/deep feature fusion",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var base *zap.Logger
		var err error
		if verbose {
			base, err = zap.NewDevelopment()
		} else {
			base, err = zap.NewProduction()
		}
		if err != nil {
			return err
		}
		logger = base.Sugar()
		utils.Verbose = verbose
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging and timing output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
