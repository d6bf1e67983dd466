package nn

import (
	"math"

	"github.com/pkg/errors"

	"ssdfuse/nn/layers"
	"ssdfuse/tensor"
)

// Kind tags the closed set of layer variants a Sequence may hold.
type Kind int

const (
	KindConv Kind = iota
	KindPool
	KindNorm
	KindReLU
	KindDeconv
)

// Layer is a tagged layer-variant record. Exactly one parameter field
// matching Kind is set; Forward dispatches on the tag.
type Layer struct {
	Kind Kind

	Conv   *layers.Conv2D
	Pool   *layers.MaxPool2D
	Norm   *layers.BatchNorm2D
	Deconv *layers.ConvTranspose2D
}

// Conv wraps a convolution into a Layer record.
func Conv(c *layers.Conv2D) Layer { return Layer{Kind: KindConv, Conv: c} }

// Pool wraps a max pooling layer into a Layer record.
func Pool(p *layers.MaxPool2D) Layer { return Layer{Kind: KindPool, Pool: p} }

// Norm wraps a batch normalization layer into a Layer record.
func Norm(n *layers.BatchNorm2D) Layer { return Layer{Kind: KindNorm, Norm: n} }

// ReLU builds an activation Layer record.
func ReLU() Layer { return Layer{Kind: KindReLU} }

// Deconv wraps a transposed convolution into a Layer record.
func Deconv(d *layers.ConvTranspose2D) Layer { return Layer{Kind: KindDeconv, Deconv: d} }

// Forward applies the variant this record holds.
func (l Layer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	switch l.Kind {
	case KindConv:
		return l.Conv.Forward(x)
	case KindPool:
		return l.Pool.Forward(x)
	case KindNorm:
		return l.Norm.Forward(x)
	case KindReLU:
		return layers.ReLU{}.Forward(x)
	case KindDeconv:
		return l.Deconv.Forward(x)
	default:
		return nil, errors.Errorf("unknown layer kind %d", l.Kind)
	}
}

// Sequence chains layer records in order.
type Sequence []Layer

// Forward applies every layer in sequence.
func (s Sequence) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return s.ForwardRange(x, 0, len(s))
}

// ForwardRange applies layers [from, to), so callers can stop at a feature
// tap and resume from it later.
func (s Sequence) ForwardRange(x *tensor.Tensor, from, to int) (*tensor.Tensor, error) {
	if from < 0 || to > len(s) || from > to {
		return nil, errors.Errorf("layer range [%d,%d) out of bounds for %d layers", from, to, len(s))
	}
	var err error
	out := x
	for i := from; i < to; i++ {
		out, err = s[i].Forward(out)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
	}
	return out, nil
}

// Softmax applies the softmax function to a score vector.
func Softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	expSum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		e := math.Exp(v - maxLogit)
		out[i] = e
		expSum += e
	}
	for i := range out {
		out[i] /= expSum
	}
	return out
}
