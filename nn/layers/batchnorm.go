package layers

import (
	"math"

	"github.com/pkg/errors"

	"ssdfuse/tensor"
)

// BatchNorm2D normalizes each channel with stored running statistics and a
// learned affine transform. Statistic updates belong to the (external)
// training loop; both phases normalize with the stored values.
type BatchNorm2D struct {
	Name string

	channels int
	eps      float64

	Gamma *tensor.Tensor // scale: [C]
	Beta  *tensor.Tensor // shift: [C]
	Mean  *tensor.Tensor // running mean: [C]
	Var   *tensor.Tensor // running variance: [C]
}

// NewBatchNorm2D creates an identity-initialized normalization layer.
func NewBatchNorm2D(name string, channels int) *BatchNorm2D {
	bn := &BatchNorm2D{
		Name:     name,
		channels: channels,
		eps:      1e-5,
		Gamma:    tensor.New(channels),
		Beta:     tensor.New(channels),
		Mean:     tensor.New(channels),
		Var:      tensor.New(channels),
	}
	for i := 0; i < channels; i++ {
		bn.Gamma.Data[i] = 1
		bn.Var.Data[i] = 1
	}
	return bn
}

// Forward normalizes a [batch, C, H, W] tensor channelwise.
func (bn *BatchNorm2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, errors.Errorf("batchnorm %q: input must be 4-D, got %v", bn.Name, x.Shape)
	}
	batch, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if ch != bn.channels {
		return nil, errors.Errorf("batchnorm %q: expected %d channels, got %d", bn.Name, bn.channels, ch)
	}
	out := tensor.New(x.Shape...)
	area := h * w
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			scale := bn.Gamma.Data[c] / math.Sqrt(bn.Var.Data[c]+bn.eps)
			shift := bn.Beta.Data[c] - bn.Mean.Data[c]*scale
			base := (b*ch + c) * area
			for i := 0; i < area; i++ {
				out.Data[base+i] = x.Data[base+i]*scale + shift
			}
		}
	}
	return out, nil
}
