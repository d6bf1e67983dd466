package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrintTimingStats(t *testing.T) {
	var buf bytes.Buffer
	oldOut, oldVerbose := Output, Verbose
	Output, Verbose = &buf, true
	defer func() { Output, Verbose = oldOut, oldVerbose }()

	PrintTimingStats(&TimingStats{
		TotalTime:       100 * time.Millisecond,
		ModelInitTime:   25 * time.Millisecond,
		ForwardPassTime: 75 * time.Millisecond,
	})
	out := buf.String()
	assert.Contains(t, out, "TIMING STATISTICS")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "75.0%")
}

func TestPrintTimingStatsQuiet(t *testing.T) {
	var buf bytes.Buffer
	oldOut, oldVerbose := Output, Verbose
	Output, Verbose = &buf, false
	defer func() { Output, Verbose = oldOut, oldVerbose }()

	PrintTimingStats(&TimingStats{TotalTime: time.Second})
	assert.Empty(t, buf.String())
}

func TestPrintTimingStatsZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	oldOut, oldVerbose := Output, Verbose
	Output, Verbose = &buf, true
	defer func() { Output, Verbose = oldOut, oldVerbose }()

	PrintTimingStats(&TimingStats{})
	assert.Contains(t, buf.String(), "0.0%")
}
