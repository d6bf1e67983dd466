package ssd

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"ssdfuse/tensor"
)

// Decoder converts dense (location delta, class probability) tensors into
// sparse per-class detection lists: variance-scaled center-size decoding,
// confidence thresholding and greedy non-max suppression.
type Decoder struct {
	NumClasses    int
	Background    int
	TopK          int
	ConfThreshold float64
	NMSThreshold  float64
	Variances     [2]float64
}

// NewDecoder builds a decoder from the detector configuration.
func NewDecoder(cfg Config) *Decoder {
	return &Decoder{
		NumClasses:    cfg.NumClasses,
		Background:    cfg.Background,
		TopK:          cfg.TopK,
		ConfThreshold: cfg.ConfThreshold,
		NMSThreshold:  cfg.NMSThreshold,
		Variances:     cfg.Priors.Variances,
	}
}

// DecodeBox applies a location delta to its prior: variance-scaled offsets
// move the prior center, log-scaled offsets resize it, and the result is
// converted to corner format.
func DecodeBox(loc [4]float64, prior [4]float64, variances [2]float64) Box {
	cx := prior[0] + loc[0]*variances[0]*prior[2]
	cy := prior[1] + loc[1]*variances[0]*prior[3]
	w := prior[2] * math.Exp(loc[2]*variances[1])
	h := prior[3] * math.Exp(loc[3]*variances[1])
	return Box{
		XMin: cx - w/2,
		YMin: cy - h/2,
		XMax: cx + w/2,
		YMax: cy + h/2,
	}
}

// EncodeBox is the inverse of DecodeBox, producing the location delta that
// decodes to the given box against the given prior. External loss code uses
// it to build regression targets.
func EncodeBox(b Box, prior [4]float64, variances [2]float64) [4]float64 {
	cx := (b.XMin + b.XMax) / 2
	cy := (b.YMin + b.YMax) / 2
	w := b.Width()
	h := b.Height()
	return [4]float64{
		(cx - prior[0]) / (variances[0] * prior[2]),
		(cy - prior[1]) / (variances[0] * prior[3]),
		math.Log(w/prior[2]) / variances[1],
		math.Log(h/prior[3]) / variances[1],
	}
}

// IoU returns the intersection-over-union of two boxes.
func IoU(a, b Box) float64 {
	xMin := math.Max(a.XMin, b.XMin)
	yMin := math.Max(a.YMin, b.YMin)
	xMax := math.Min(a.XMax, b.XMax)
	yMax := math.Min(a.YMax, b.YMax)
	if xMax <= xMin || yMax <= yMin {
		return 0
	}
	inter := (xMax - xMin) * (yMax - yMin)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Decode runs the full decoding for a batch. loc is [batch, N, 4], conf is
// [batch, N, numClasses] softmax probabilities, priors is the fixed [N, 4]
// center-size set.
func (d *Decoder) Decode(loc, conf, priors *tensor.Tensor) ([]Detections, error) {
	if len(loc.Shape) != 3 || loc.Shape[2] != 4 {
		return nil, errors.Errorf("loc must be [batch, priors, 4], got %v", loc.Shape)
	}
	if len(conf.Shape) != 3 || conf.Shape[2] != d.NumClasses {
		return nil, errors.Errorf("conf must be [batch, priors, %d], got %v", d.NumClasses, conf.Shape)
	}
	if len(priors.Shape) != 2 || priors.Shape[1] != 4 {
		return nil, errors.Errorf("priors must be [N, 4], got %v", priors.Shape)
	}
	batch, n := loc.Shape[0], loc.Shape[1]
	if conf.Shape[0] != batch || conf.Shape[1] != n || priors.Shape[0] != n {
		return nil, errors.Errorf("decoder inputs disagree on sizes: loc %v conf %v priors %v",
			loc.Shape, conf.Shape, priors.Shape)
	}

	out := make([]Detections, batch)
	boxes := make([]Box, n)
	for b := 0; b < batch; b++ {
		for i := 0; i < n; i++ {
			var l, p [4]float64
			copy(l[:], loc.Data[(b*n+i)*4:(b*n+i)*4+4])
			copy(p[:], priors.Data[i*4:i*4+4])
			boxes[i] = DecodeBox(l, p, d.Variances)
		}
		dets := make(Detections, d.NumClasses)
		for cls := 0; cls < d.NumClasses; cls++ {
			if cls == d.Background {
				continue
			}
			dets[cls] = d.suppress(cls, boxes, conf.Data[b*n*d.NumClasses:(b+1)*n*d.NumClasses])
		}
		out[b] = dets
	}
	return out, nil
}

// suppress runs threshold + greedy NMS for one class over one batch item.
// confRow is the [N, numClasses] probability block for that item.
func (d *Decoder) suppress(cls int, boxes []Box, confRow []float64) []Detection {
	candidates := make([]Detection, 0, 16)
	for i := range boxes {
		score := confRow[i*d.NumClasses+cls]
		if score > d.ConfThreshold {
			candidates = append(candidates, Detection{Class: cls, Score: score, Box: boxes[i]})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	// Stable: equal scores keep their post-filter order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	kept := make([]Detection, 0, d.TopK)
	suppressed := make([]bool, len(candidates))
	for i, c := range candidates {
		if suppressed[i] {
			continue
		}
		kept = append(kept, c)
		if len(kept) >= d.TopK {
			break
		}
		for j := i + 1; j < len(candidates); j++ {
			if suppressed[j] {
				continue
			}
			if IoU(c.Box, candidates[j].Box) > d.NMSThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
