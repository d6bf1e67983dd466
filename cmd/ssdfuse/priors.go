package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ssdfuse/ssd"
)

var priorsOut string

var priorsCmd = &cobra.Command{
	Use:   "priors",
	Short: "Print the reference-box layout, optionally dumping the full set as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := ssd.DefaultConfig(2)
		boxes, err := ssd.NewPriorBoxGenerator(cfg.Priors, cfg.Size).Generate()
		if err != nil {
			return err
		}

		fmt.Printf("input size: %dx%d\n", cfg.Size, cfg.Size)
		fmt.Printf("%-6s %-6s %-10s %s\n", "scale", "grid", "per-cell", "boxes")
		for k, g := range cfg.Priors.GridSizes {
			per := cfg.Priors.BoxesPerCell(k)
			fmt.Printf("%-6d %-6d %-10d %d\n", k, g, per, g*g*per)
		}
		fmt.Printf("total: %d\n", boxes.Shape[0])

		if priorsOut == "" {
			return nil
		}
		data, err := json.Marshal(boxes.Data)
		if err != nil {
			return err
		}
		if err := os.WriteFile(priorsOut, data, 0o644); err != nil {
			return err
		}
		logger.Infow("priors written", "path", priorsOut, "count", boxes.Shape[0])
		return nil
	},
}

func init() {
	priorsCmd.Flags().StringVarP(&priorsOut, "out", "o", "", "Write the flattened [N*4] box set to this JSON file")
	rootCmd.AddCommand(priorsCmd)
}
