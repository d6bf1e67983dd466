package ssd

import (
	"fmt"

	"github.com/pkg/errors"

	"ssdfuse/nn/layers"
)

// buildMultibox constructs the per-scale localization and classification
// convolution pairs. Scale order here must match the source order produced
// by the forward pass; the length check below is the construction-time guard
// for that contract.
func buildMultibox(tapChannels, priorsPerCell []int, numClasses int) (loc, conf []*layers.Conv2D, err error) {
	if len(tapChannels) != len(priorsPerCell) {
		return nil, nil, errors.Errorf("%d feature taps but %d per-scale prior counts",
			len(tapChannels), len(priorsPerCell))
	}
	for k, ch := range tapChannels {
		l, err := layers.NewConv2D(fmt.Sprintf("loc.%d", k), ch, priorsPerCell[k]*4, 3, 1, 1, 1, 1)
		if err != nil {
			return nil, nil, err
		}
		c, err := layers.NewConv2D(fmt.Sprintf("conf.%d", k), ch, priorsPerCell[k]*numClasses, 3, 1, 1, 1, 1)
		if err != nil {
			return nil, nil, err
		}
		loc = append(loc, l)
		conf = append(conf, c)
	}
	return loc, conf, nil
}
