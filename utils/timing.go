package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
var Verbose = true

// Output is the writer where timing statistics are printed.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for the inference pipeline stages.
type TimingStats struct {
	TotalTime       time.Duration
	ModelInitTime   time.Duration
	WeightLoadTime  time.Duration
	ImageLoadTime   time.Duration
	ForwardPassTime time.Duration
}

// PrintTimingStats prints a per-stage timing breakdown.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats) {
	if !Verbose {
		return
	}
	pct := func(d time.Duration) float64 {
		if stats.TotalTime == 0 {
			return 0
		}
		return float64(d) / float64(stats.TotalTime) * 100
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintln(Output, "\nBreakdown by stage:")
	fmt.Fprintf(Output, "  Model construction: %v (%.1f%%)\n", stats.ModelInitTime, pct(stats.ModelInitTime))
	fmt.Fprintf(Output, "  Weight loading: %v (%.1f%%)\n", stats.WeightLoadTime, pct(stats.WeightLoadTime))
	fmt.Fprintf(Output, "  Image loading: %v (%.1f%%)\n", stats.ImageLoadTime, pct(stats.ImageLoadTime))
	fmt.Fprintf(Output, "  Forward pass + decode: %v (%.1f%%)\n", stats.ForwardPassTime, pct(stats.ForwardPassTime))
}
