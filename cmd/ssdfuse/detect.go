package main

import (
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"ssdfuse/ssd"
	"ssdfuse/tensor"
	"ssdfuse/utils"
)

// phases is the number of acquisition phases stacked into the input volume.
// Each phase contributes an RGB triple, giving 12 input channels.
const phases = 4

var detectOpts struct {
	imagePaths []string
	weights    string
	classes    int
	normalize  bool
	minScore   float64
	minArea    float64
	show       int
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run detection on one image, or one image per phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetect()
	},
}

func init() {
	detectCmd.Flags().StringSliceVarP(&detectOpts.imagePaths, "image", "i", nil,
		"Input image path; repeat 4 times for one image per phase")
	detectCmd.Flags().StringVarP(&detectOpts.weights, "weights", "w", "", "Weights JSON file")
	detectCmd.Flags().IntVarP(&detectOpts.classes, "classes", "c", 2, "Class count including background")
	detectCmd.Flags().BoolVar(&detectOpts.normalize, "batchnorm", false, "Use the batch-normalized network layout")
	detectCmd.Flags().Float64Var(&detectOpts.minScore, "min-score", 0.5, "Minimum confidence for reported detections")
	detectCmd.Flags().Float64Var(&detectOpts.minArea, "min-area", 0, "Minimum normalized box area for reported detections")
	detectCmd.Flags().IntVar(&detectOpts.show, "show", 10, "Maximum detections to print")
	detectCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(detectCmd)
}

func runDetect() error {
	total := time.Now()
	stats := &utils.TimingStats{}

	cfg := ssd.DefaultConfig(detectOpts.classes)
	cfg.Normalize = detectOpts.normalize

	start := time.Now()
	model, err := ssd.Build(ssd.PhaseTest, cfg, logger)
	if err != nil {
		return err
	}
	stats.ModelInitTime = time.Since(start)

	if detectOpts.weights != "" {
		start = time.Now()
		if err := model.LoadWeights(detectOpts.weights); err != nil {
			return err
		}
		stats.WeightLoadTime = time.Since(start)
	} else {
		logger.Warn("no weights file given, running with initialized weights")
	}

	start = time.Now()
	input, err := loadInput(detectOpts.imagePaths, cfg)
	if err != nil {
		return err
	}
	stats.ImageLoadTime = time.Since(start)

	start = time.Now()
	out, err := model.Forward(input)
	if err != nil {
		return err
	}
	stats.ForwardPassTime = time.Since(start)
	stats.TotalTime = time.Since(total)

	printDetections(out.Detections[0])
	utils.PrintTimingStats(stats)
	return nil
}

// loadInput builds the [1, 12, size, size] input volume. A single image is
// replicated across all phases; four images map one to a phase.
func loadInput(paths []string, cfg ssd.Config) (*tensor.Tensor, error) {
	if len(paths) != 1 && len(paths) != phases {
		return nil, fmt.Errorf("need 1 or %d images, got %d", phases, len(paths))
	}
	input := tensor.New(1, cfg.InChannels, cfg.Size, cfg.Size)
	area := cfg.Size * cfg.Size
	for p := 0; p < phases; p++ {
		path := paths[0]
		if len(paths) == phases {
			path = paths[p]
		}
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		resized := imaging.Resize(img, cfg.Size, cfg.Size, imaging.Lanczos)
		fillPhase(input.Data[p*3*area:(p+1)*3*area], resized, area)
		logger.Debugw("image loaded", "path", path, "phase", p)
	}
	return input, nil
}

// fillPhase writes one phase's three channel planes, scaled to [0,1].
func fillPhase(dst []float64, img *image.NRGBA, area int) {
	i := 0
	for y := 0; y < img.Rect.Dy(); y++ {
		for x := 0; x < img.Rect.Dx(); x++ {
			c := img.NRGBAAt(x+img.Rect.Min.X, y+img.Rect.Min.Y)
			dst[i] = float64(c.R) / 255
			dst[area+i] = float64(c.G) / 255
			dst[2*area+i] = float64(c.B) / 255
			i++
		}
	}
}

func printDetections(dets ssd.Detections) {
	found := dets.Flatten()
	for _, filter := range []ssd.Postprocessor{
		ssd.NewScoreFilter(detectOpts.minScore),
		ssd.NewAreaFilter(detectOpts.minArea),
	} {
		found = filter(found)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Score > found[j].Score })
	if len(found) > detectOpts.show {
		found = found[:detectOpts.show]
	}

	fmt.Printf("\n=== DETECTIONS (score >= %.2f) ===\n", detectOpts.minScore)
	if len(found) == 0 {
		fmt.Println("none")
		return
	}
	for i, d := range found {
		fmt.Printf("%2d. class %d  score %.4f  box [%.3f %.3f %.3f %.3f]\n",
			i+1, d.Class, d.Score, d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax)
	}
}
