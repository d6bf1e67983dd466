package ssd

import (
	"fmt"

	"github.com/pkg/errors"

	"ssdfuse/nn"
	"ssdfuse/nn/layers"
)

// buildExtras emits the downsampling stages appended after the trunk,
// alternating 1x1 and 3x3 kernels starting at 1x1. An S token makes the
// following width a stride-2 padding-1 conv output. Returns the sequence,
// the output channel width at each feature tap, and the tap stride over the
// sequence (every 2nd entry plain, every 4th with normalization — the
// normalized sequence interleaves a norm record after each conv).
func buildExtras(spec []int, inChannels int, normalize bool, groups int) (nn.Sequence, []int, int, error) {
	var seq nn.Sequence
	in := inChannels
	kernel3 := false
	convIdx := 0
	skip := false

	appendConv := func(out, kernel, stride, padding int) error {
		conv, err := layers.NewConv2D(fmt.Sprintf("extras.conv%d", convIdx), in, out, kernel, stride, padding, 1, groups)
		if err != nil {
			return err
		}
		seq = append(seq, nn.Conv(conv))
		if normalize {
			seq = append(seq, nn.Norm(layers.NewBatchNorm2D(fmt.Sprintf("extras.norm%d", convIdx), out)))
		}
		in = out
		convIdx++
		kernel3 = !kernel3
		return nil
	}

	for k, tok := range spec {
		if skip {
			skip = false
			continue
		}
		kernel := 1
		if kernel3 {
			kernel = 3
		}
		switch {
		case tok == S:
			if k+1 >= len(spec) || spec[k+1] <= 0 {
				return nil, nil, 0, errors.Errorf("downsample boundary at %d has no width after it", k)
			}
			if err := appendConv(spec[k+1], kernel, 2, 1); err != nil {
				return nil, nil, 0, err
			}
			skip = true
		case tok > 0:
			if err := appendConv(tok, kernel, 1, 0); err != nil {
				return nil, nil, 0, err
			}
		default:
			return nil, nil, 0, errors.Errorf("unknown extras spec token %d", tok)
		}
	}

	stride := 2
	if normalize {
		stride = 4
	}
	var tapCh []int
	for k, l := range seq {
		if k%stride != stride-1 {
			continue
		}
		switch l.Kind {
		case nn.KindConv:
			tapCh = append(tapCh, l.Conv.OutChannels())
		case nn.KindNorm:
			// The tap sits on the norm record; its width is the preceding conv's.
			tapCh = append(tapCh, seq[k-1].Conv.OutChannels())
		default:
			return nil, nil, 0, errors.Errorf("extras tap %d lands on a non-parameter layer", k)
		}
	}
	if len(tapCh) == 0 {
		return nil, nil, 0, errors.New("extras produced no feature taps")
	}
	return seq, tapCh, stride, nil
}
