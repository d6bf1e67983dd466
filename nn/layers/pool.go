package layers

import (
	"math"

	"github.com/pkg/errors"

	"ssdfuse/tensor"
)

// MaxPool2D is a max pooling layer. With Ceil set, a partially covered
// trailing window still produces an output row/column (used once in the
// trunk to keep a 75-wide map divisible).
type MaxPool2D struct {
	kernel  int
	stride  int
	padding int
	ceil    bool
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernel, stride, padding int, ceil bool) *MaxPool2D {
	return &MaxPool2D{kernel: kernel, stride: stride, padding: padding, ceil: ceil}
}

// OutputShape returns the spatial output dimensions for the given input dims.
func (p *MaxPool2D) OutputShape(inH, inW int) (outH, outW int) {
	outH = p.outDim(inH)
	outW = p.outDim(inW)
	return outH, outW
}

func (p *MaxPool2D) outDim(in int) int {
	span := in + 2*p.padding - p.kernel
	out := span/p.stride + 1
	if p.ceil && span%p.stride != 0 {
		out++
		// A ceil-mode window must start inside the padded input.
		if (out-1)*p.stride >= in+p.padding {
			out--
		}
	}
	return out
}

// Forward pools a [batch, C, H, W] tensor.
func (p *MaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, errors.Errorf("maxpool: input must be 4-D, got %v", x.Shape)
	}
	batch, ch, inH, inW := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outH, outW := p.OutputShape(inH, inW)
	if outH <= 0 || outW <= 0 {
		return nil, errors.Errorf("maxpool: input %dx%d collapses to %dx%d", inH, inW, outH, outW)
	}
	out := tensor.New(batch, ch, outH, outW)

	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			inBase := (b*ch + c) * inH * inW
			outBase := (b*ch + c) * outH * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					best := math.Inf(-1)
					for dy := 0; dy < p.kernel; dy++ {
						iy := oy*p.stride - p.padding + dy
						if iy < 0 || iy >= inH {
							continue
						}
						for dx := 0; dx < p.kernel; dx++ {
							ix := ox*p.stride - p.padding + dx
							if ix < 0 || ix >= inW {
								continue
							}
							if v := x.Data[inBase+iy*inW+ix]; v > best {
								best = v
							}
						}
					}
					out.Data[outBase+oy*outW+ox] = best
				}
			}
		}
	}
	return out, nil
}
