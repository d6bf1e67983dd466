package layers

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"ssdfuse/tensor"
)

// Conv2D is a 2D convolutional layer with stride, zero padding, dilation and
// grouped kernels. The forward pass lowers each input to column form and
// performs one matrix product per (batch item, group).
type Conv2D struct {
	Name string

	inChan, outChan int
	kh, kw          int
	stride          int
	padding         int
	dilation        int
	groups          int

	W *tensor.Tensor // weights: [outChan, inChan/groups, kh, kw]
	B *tensor.Tensor // bias: [outChan]
}

// NewConv2D creates a Conv2D layer with fan-in uniform initialization.
func NewConv2D(name string, inChan, outChan, kernel, stride, padding, dilation, groups int) (*Conv2D, error) {
	if inChan <= 0 || outChan <= 0 || kernel <= 0 || stride <= 0 || dilation <= 0 || groups <= 0 {
		return nil, errors.Errorf("conv %q: invalid geometry in=%d out=%d k=%d s=%d d=%d g=%d",
			name, inChan, outChan, kernel, stride, dilation, groups)
	}
	if inChan%groups != 0 || outChan%groups != 0 {
		return nil, errors.Errorf("conv %q: channels (%d in, %d out) not divisible by %d groups",
			name, inChan, outChan, groups)
	}
	c := &Conv2D{
		Name:     name,
		inChan:   inChan,
		outChan:  outChan,
		kh:       kernel,
		kw:       kernel,
		stride:   stride,
		padding:  padding,
		dilation: dilation,
		groups:   groups,
		W:        tensor.New(outChan, inChan/groups, kernel, kernel),
		B:        tensor.New(outChan),
	}
	fanIn := float64(inChan / groups * kernel * kernel)
	dist := distuv.Uniform{Min: -1 / math.Sqrt(fanIn), Max: 1 / math.Sqrt(fanIn)}
	for i := range c.W.Data {
		c.W.Data[i] = dist.Rand()
	}
	return c, nil
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChan }

// OutputShape returns the spatial output dimensions for the given input dims.
func (c *Conv2D) OutputShape(inH, inW int) (outH, outW int) {
	outH = (inH+2*c.padding-c.dilation*(c.kh-1)-1)/c.stride + 1
	outW = (inW+2*c.padding-c.dilation*(c.kw-1)-1)/c.stride + 1
	return outH, outW
}

// Forward runs the convolution over a [batch, inChan, H, W] tensor.
func (c *Conv2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, errors.Errorf("conv %q: input must be 4-D, got %v", c.Name, x.Shape)
	}
	batch, ch, inH, inW := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if ch != c.inChan {
		return nil, errors.Errorf("conv %q: expected %d input channels, got %d", c.Name, c.inChan, ch)
	}
	outH, outW := c.OutputShape(inH, inW)
	if outH <= 0 || outW <= 0 {
		return nil, errors.Errorf("conv %q: input %dx%d collapses to %dx%d", c.Name, inH, inW, outH, outW)
	}

	icg := c.inChan / c.groups
	ocg := c.outChan / c.groups
	kArea := c.kh * c.kw
	outArea := outH * outW
	out := tensor.New(batch, c.outChan, outH, outW)
	cols := make([]float64, icg*kArea*outArea)

	for b := 0; b < batch; b++ {
		for g := 0; g < c.groups; g++ {
			// Lower the group's input window into column form.
			for ic := 0; ic < icg; ic++ {
				chBase := (b*c.inChan + g*icg + ic) * inH * inW
				for dy := 0; dy < c.kh; dy++ {
					for dx := 0; dx < c.kw; dx++ {
						row := (ic*c.kh+dy)*c.kw + dx
						rowBase := row * outArea
						for oy := 0; oy < outH; oy++ {
							iy := oy*c.stride - c.padding + dy*c.dilation
							for ox := 0; ox < outW; ox++ {
								ix := ox*c.stride - c.padding + dx*c.dilation
								v := 0.0
								if iy >= 0 && iy < inH && ix >= 0 && ix < inW {
									v = x.Data[chBase+iy*inW+ix]
								}
								cols[rowBase+oy*outW+ox] = v
							}
						}
					}
				}
			}

			wBase := g * ocg * icg * kArea
			wm := mat.NewDense(ocg, icg*kArea, c.W.Data[wBase:wBase+ocg*icg*kArea])
			cm := mat.NewDense(icg*kArea, outArea, cols)
			oBase := (b*c.outChan + g*ocg) * outArea
			om := mat.NewDense(ocg, outArea, out.Data[oBase:oBase+ocg*outArea])
			om.Mul(wm, cm)
		}
		for oc := 0; oc < c.outChan; oc++ {
			bias := c.B.Data[oc]
			base := (b*c.outChan + oc) * outArea
			for i := 0; i < outArea; i++ {
				out.Data[base+i] += bias
			}
		}
	}
	return out, nil
}
