package layers

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"ssdfuse/tensor"
)

// ConvTranspose2D is a learned upsampling layer. Each input value scatters a
// kernel-sized patch into the output, so with stride == kernel the spatial
// dimensions grow by exactly that factor.
type ConvTranspose2D struct {
	Name string

	inChan, outChan int
	kh, kw          int
	stride          int

	W *tensor.Tensor // weights: [inChan, outChan, kh, kw]
	B *tensor.Tensor // bias: [outChan]
}

// NewConvTranspose2D creates a transposed convolution (no output padding).
func NewConvTranspose2D(name string, inChan, outChan, kernel, stride int) (*ConvTranspose2D, error) {
	if inChan <= 0 || outChan <= 0 || kernel <= 0 || stride <= 0 {
		return nil, errors.Errorf("deconv %q: invalid geometry in=%d out=%d k=%d s=%d",
			name, inChan, outChan, kernel, stride)
	}
	d := &ConvTranspose2D{
		Name:    name,
		inChan:  inChan,
		outChan: outChan,
		kh:      kernel,
		kw:      kernel,
		stride:  stride,
		W:       tensor.New(inChan, outChan, kernel, kernel),
		B:       tensor.New(outChan),
	}
	fanIn := float64(inChan * kernel * kernel)
	dist := distuv.Uniform{Min: -1 / math.Sqrt(fanIn), Max: 1 / math.Sqrt(fanIn)}
	for i := range d.W.Data {
		d.W.Data[i] = dist.Rand()
	}
	return d, nil
}

// OutChannels returns the number of output channels.
func (d *ConvTranspose2D) OutChannels() int { return d.outChan }

// Forward upsamples a [batch, inChan, H, W] tensor to
// [batch, outChan, (H-1)*stride+kh, (W-1)*stride+kw].
func (d *ConvTranspose2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, errors.Errorf("deconv %q: input must be 4-D, got %v", d.Name, x.Shape)
	}
	batch, ch, inH, inW := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if ch != d.inChan {
		return nil, errors.Errorf("deconv %q: expected %d input channels, got %d", d.Name, d.inChan, ch)
	}
	outH := (inH-1)*d.stride + d.kh
	outW := (inW-1)*d.stride + d.kw
	out := tensor.New(batch, d.outChan, outH, outW)

	for b := 0; b < batch; b++ {
		for ic := 0; ic < d.inChan; ic++ {
			inBase := (b*d.inChan + ic) * inH * inW
			for y := 0; y < inH; y++ {
				for x2 := 0; x2 < inW; x2++ {
					v := x.Data[inBase+y*inW+x2]
					if v == 0 {
						continue
					}
					for oc := 0; oc < d.outChan; oc++ {
						wBase := (ic*d.outChan + oc) * d.kh * d.kw
						outBase := (b*d.outChan + oc) * outH * outW
						for dy := 0; dy < d.kh; dy++ {
							oy := y*d.stride + dy
							for dx := 0; dx < d.kw; dx++ {
								ox := x2*d.stride + dx
								out.Data[outBase+oy*outW+ox] += v * d.W.Data[wBase+dy*d.kw+dx]
							}
						}
					}
				}
			}
		}
		for oc := 0; oc < d.outChan; oc++ {
			bias := d.B.Data[oc]
			base := (b*d.outChan + oc) * outH * outW
			for i := 0; i < outH*outW; i++ {
				out.Data[base+i] += bias
			}
		}
	}
	return out, nil
}
