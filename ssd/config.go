package ssd

import "github.com/pkg/errors"

// Phase selects what Forward returns: raw per-scale tensors for an external
// training loop, or decoded detections. Fixed at construction.
type Phase string

const (
	// PhaseTrain returns the raw (loc, conf, priors) triple.
	PhaseTrain Phase = "train"
	// PhaseTest decodes predictions into per-class detections.
	PhaseTest Phase = "test"
)

// Layer-spec markers. Positive entries are convolution channel widths.
const (
	// M is a 2x2 stride-2 max pool.
	M = -1
	// C is a 2x2 stride-2 max pool with ceil rounding for odd input sizes.
	C = -2
	// S marks a stride-2 downsample boundary in the extras spec.
	S = -3
)

// PriorConfig describes the fixed reference-box layout over the detection
// scales. All sizes are in input-image pixels; generated boxes are
// normalized to [0,1].
type PriorConfig struct {
	GridSizes    []int
	Steps        []int
	MinSizes     []float64
	MaxSizes     []float64
	AspectRatios [][]float64
	Variances    [2]float64
	Clip         bool
}

// BoxesPerCell returns the prior count per grid cell at the given scale:
// one min-size box, one geometric-mean box, and a pair per aspect ratio.
func (pc PriorConfig) BoxesPerCell(scale int) int {
	return 2 + 2*len(pc.AspectRatios[scale])
}

// PriorsPerCell returns the per-scale cell counts in scale order.
func (pc PriorConfig) PriorsPerCell() []int {
	out := make([]int, len(pc.GridSizes))
	for i := range out {
		out[i] = pc.BoxesPerCell(i)
	}
	return out
}

// TotalPriors returns sum over scales of grid^2 * boxes per cell.
func (pc PriorConfig) TotalPriors() int {
	total := 0
	for i, g := range pc.GridSizes {
		total += g * g * pc.BoxesPerCell(i)
	}
	return total
}

// Config holds the full detector configuration.
type Config struct {
	Size        int  // input resolution; only 300 is implemented
	NumClasses  int  // including background (class 0)
	InChannels  int  // input channels; 12 for the 4-phase RGB profile
	Normalize   bool // insert batch normalization stages
	TrunkGroups int  // grouped-convolution factor for trunk convs
	ExtraGroups int  // grouped-convolution factor for extras convs

	Priors PriorConfig

	// Decoder settings.
	Background    int
	TopK          int
	ConfThreshold float64
	NMSThreshold  float64
}

// DefaultConfig returns the 300x300 multi-phase profile.
func DefaultConfig(numClasses int) Config {
	return Config{
		Size:        300,
		NumClasses:  numClasses,
		InChannels:  12,
		TrunkGroups: 1,
		ExtraGroups: 1,
		Priors: PriorConfig{
			GridSizes: []int{38, 19, 10, 5, 3, 1},
			Steps:     []int{8, 16, 32, 64, 100, 300},
			MinSizes:  []float64{30, 60, 111, 162, 213, 264},
			MaxSizes:  []float64{60, 111, 162, 213, 264, 315},
			AspectRatios: [][]float64{
				{2, 3}, {2, 3}, {2, 3}, {2, 3}, {2}, {2},
			},
			Variances: [2]float64{0.1, 0.2},
			Clip:      true,
		},
		Background:    0,
		TopK:          200,
		ConfThreshold: 0.01,
		NMSThreshold:  0.45,
	}
}

// Validate checks the configuration before any model is constructed.
func (c Config) Validate() error {
	if c.Size != 300 {
		return errors.Errorf("only the 300x300 profile is implemented, got size %d", c.Size)
	}
	if c.NumClasses < 2 {
		return errors.Errorf("need at least 2 classes (background + 1), got %d", c.NumClasses)
	}
	if c.InChannels <= 0 {
		return errors.Errorf("input channels must be positive, got %d", c.InChannels)
	}
	if c.Background < 0 || c.Background >= c.NumClasses {
		return errors.Errorf("background class %d outside [0,%d)", c.Background, c.NumClasses)
	}
	if c.TopK <= 0 {
		return errors.Errorf("topK must be positive, got %d", c.TopK)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return errors.Errorf("confidence threshold %v outside [0,1]", c.ConfThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return errors.Errorf("suppression threshold %v outside [0,1]", c.NMSThreshold)
	}
	pc := c.Priors
	n := len(pc.GridSizes)
	if n == 0 {
		return errors.New("prior config has no scales")
	}
	if len(pc.Steps) != n || len(pc.MinSizes) != n || len(pc.MaxSizes) != n || len(pc.AspectRatios) != n {
		return errors.Errorf("prior config scale counts disagree: grids=%d steps=%d min=%d max=%d ars=%d",
			n, len(pc.Steps), len(pc.MinSizes), len(pc.MaxSizes), len(pc.AspectRatios))
	}
	return nil
}
