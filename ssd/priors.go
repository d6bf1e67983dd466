package ssd

import (
	"math"

	"github.com/pkg/errors"

	"ssdfuse/tensor"
)

// PriorBoxGenerator produces the fixed reference-box set once at model
// construction. Boxes are (cx, cy, w, h) in normalized image coordinates,
// ordered scale-major, then row-major over the grid, then per-cell box order.
type PriorBoxGenerator struct {
	cfg  PriorConfig
	size int
}

// NewPriorBoxGenerator binds a prior config to an input resolution.
func NewPriorBoxGenerator(cfg PriorConfig, size int) *PriorBoxGenerator {
	return &PriorBoxGenerator{cfg: cfg, size: size}
}

// Generate returns the [N, 4] center-size prior tensor.
func (g *PriorBoxGenerator) Generate() (*tensor.Tensor, error) {
	total := g.cfg.TotalPriors()
	out := tensor.New(total, 4)
	pos := 0
	emit := func(cx, cy, w, h float64) {
		if g.cfg.Clip {
			cx = clamp01(cx)
			cy = clamp01(cy)
			w = clamp01(w)
			h = clamp01(h)
		}
		out.Data[pos*4+0] = cx
		out.Data[pos*4+1] = cy
		out.Data[pos*4+2] = w
		out.Data[pos*4+3] = h
		pos++
	}

	img := float64(g.size)
	for k, grid := range g.cfg.GridSizes {
		step := float64(g.cfg.Steps[k])
		sMin := g.cfg.MinSizes[k] / img
		sMax := math.Sqrt(g.cfg.MinSizes[k]*g.cfg.MaxSizes[k]) / img
		for i := 0; i < grid; i++ {
			for j := 0; j < grid; j++ {
				cx := (float64(j) + 0.5) * step / img
				cy := (float64(i) + 0.5) * step / img
				emit(cx, cy, sMin, sMin)
				emit(cx, cy, sMax, sMax)
				for _, ar := range g.cfg.AspectRatios[k] {
					r := math.Sqrt(ar)
					emit(cx, cy, sMin*r, sMin/r)
					emit(cx, cy, sMin/r, sMin*r)
				}
			}
		}
	}
	if pos != total {
		return nil, errors.Errorf("generated %d priors, config promises %d", pos, total)
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
