package layers

import (
	"math"

	"github.com/pkg/errors"

	"ssdfuse/tensor"
)

// L2Norm rescales every spatial position to unit L2 norm across channels and
// multiplies by a learned per-channel scale. The two fusion branches carry
// separate instances so feature maps from different depths reach comparable
// magnitude before summation.
type L2Norm struct {
	Name string

	channels int
	eps      float64

	Scale *tensor.Tensor // learned per-channel scale: [C]
}

// NewL2Norm creates an L2Norm layer with all scales set to initScale.
func NewL2Norm(name string, channels int, initScale float64) *L2Norm {
	n := &L2Norm{
		Name:     name,
		channels: channels,
		eps:      1e-10,
		Scale:    tensor.New(channels),
	}
	for i := 0; i < channels; i++ {
		n.Scale.Data[i] = initScale
	}
	return n
}

// Forward normalizes a [batch, C, H, W] tensor across the channel axis.
func (n *L2Norm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, errors.Errorf("l2norm %q: input must be 4-D, got %v", n.Name, x.Shape)
	}
	batch, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if ch != n.channels {
		return nil, errors.Errorf("l2norm %q: expected %d channels, got %d", n.Name, n.channels, ch)
	}
	out := tensor.New(x.Shape...)
	area := h * w
	for b := 0; b < batch; b++ {
		for i := 0; i < area; i++ {
			sum := 0.0
			for c := 0; c < ch; c++ {
				v := x.Data[(b*ch+c)*area+i]
				sum += v * v
			}
			norm := math.Sqrt(sum) + n.eps
			for c := 0; c < ch; c++ {
				idx := (b*ch+c)*area + i
				out.Data[idx] = x.Data[idx] / norm * n.Scale.Data[c]
			}
		}
	}
	return out, nil
}
