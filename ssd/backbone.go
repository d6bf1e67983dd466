package ssd

import (
	"fmt"

	"github.com/pkg/errors"

	"ssdfuse/nn"
	"ssdfuse/nn/layers"
)

// trunkSpec is the VGG-16 layer spec for the 300 profile. Positive entries
// are 3x3 conv widths; M / C are pool markers.
var trunkSpec = []int{64, 64, M, 128, 128, M, 256, 256, 256, C, 512, 512, 512, M, 512, 512, 512}

// extrasSpec mixes channel widths with S stride-2 boundaries; the width
// after each S is the stride-2 conv's output width.
var extrasSpec = []int{512, S, 1024, 256, S, 512, 256, 512, 256, 512}

// trunkTaps holds the feature-tap offsets into the built trunk sequence,
// computed from the layer spec rather than hard-coded indices.
type trunkTaps struct {
	Shallow   int // sequence offset just past the shallow tap's activation
	Deep      int // sequence offset just past the deep tap's activation
	ShallowCh int
	DeepCh    int
	OutCh     int // channels at the trunk tail output
}

// buildTrunk walks the layer spec and emits the trunk sequence plus the
// fixed dilated tail. The shallow tap is the activation of the conv directly
// before the spec's last pool marker; the deep tap is the activation of the
// spec's last conv.
func buildTrunk(spec []int, inChannels int, normalize bool, groups int) (nn.Sequence, trunkTaps, error) {
	// Locate the taps by conv ordinal first.
	totalConvs := 0
	lastPool := -1
	for i, tok := range spec {
		switch tok {
		case M, C:
			lastPool = i
		case S:
			return nil, trunkTaps{}, errors.New("trunk spec cannot contain a downsample boundary")
		default:
			totalConvs++
		}
	}
	if lastPool < 0 {
		return nil, trunkTaps{}, errors.New("trunk spec has no pool marker to anchor the shallow tap")
	}
	shallowConv := 0
	for _, tok := range spec[:lastPool] {
		if tok > 0 {
			shallowConv++
		}
	}
	deepConv := totalConvs

	var seq nn.Sequence
	taps := trunkTaps{Shallow: -1, Deep: -1}
	in := inChannels
	convIdx := 0
	appendConv := func(out, kernel, stride, padding, dilation int) error {
		conv, err := layers.NewConv2D(fmt.Sprintf("vgg.conv%d", convIdx), in, out, kernel, stride, padding, dilation, groups)
		if err != nil {
			return err
		}
		seq = append(seq, nn.Conv(conv))
		if normalize {
			seq = append(seq, nn.Norm(layers.NewBatchNorm2D(fmt.Sprintf("vgg.norm%d", convIdx), out)))
		}
		seq = append(seq, nn.ReLU())
		in = out
		convIdx++
		return nil
	}

	for _, tok := range spec {
		switch {
		case tok == M:
			seq = append(seq, nn.Pool(layers.NewMaxPool2D(2, 2, 0, false)))
		case tok == C:
			seq = append(seq, nn.Pool(layers.NewMaxPool2D(2, 2, 0, true)))
		case tok > 0:
			if err := appendConv(tok, 3, 1, 1, 1); err != nil {
				return nil, trunkTaps{}, err
			}
			if convIdx == shallowConv {
				taps.Shallow = len(seq)
				taps.ShallowCh = in
			}
			if convIdx == deepConv {
				taps.Deep = len(seq)
				taps.DeepCh = in
			}
		default:
			return nil, trunkTaps{}, errors.Errorf("unknown trunk spec token %d", tok)
		}
	}

	// Fixed tail: spatial-size-preserving pool5, dilated conv6, 1x1 conv7.
	seq = append(seq, nn.Pool(layers.NewMaxPool2D(3, 1, 1, false)))
	if err := appendConv(1024, 3, 1, 6, 6); err != nil {
		return nil, trunkTaps{}, err
	}
	if err := appendConv(1024, 1, 1, 0, 1); err != nil {
		return nil, trunkTaps{}, err
	}
	taps.OutCh = in

	if taps.Shallow < 0 || taps.Deep < 0 || taps.Shallow >= taps.Deep || taps.Deep >= len(seq) {
		return nil, trunkTaps{}, errors.Errorf("trunk taps (%d, %d) out of order for %d layers",
			taps.Shallow, taps.Deep, len(seq))
	}
	return seq, taps, nil
}
