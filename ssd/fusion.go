package ssd

import (
	"github.com/pkg/errors"

	"ssdfuse/nn/layers"
	"ssdfuse/tensor"
)

// Fusion merges the shallow high-resolution tap with the deep low-resolution
// tap into the first detection source. The deep branch is upsampled to the
// shallow branch's resolution, never the reverse; both branches are L2
// normalized with separate learned scales before summation so feature maps
// from different depths contribute at comparable magnitude.
type Fusion struct {
	ConvShallow *layers.Conv2D
	NormShallow *layers.BatchNorm2D

	Deconv     *layers.ConvTranspose2D
	NormDeconv *layers.BatchNorm2D
	ConvDeep   *layers.Conv2D
	NormDeep   *layers.BatchNorm2D

	ScaleShallow *layers.L2Norm
	ScaleDeep    *layers.L2Norm
}

// newFusion builds the fusion block for taps of the given channel widths.
// Both branches preserve channel count; the deep branch must match the
// shallow width after upsampling.
func newFusion(shallowCh, deepCh int, normalize bool) (*Fusion, error) {
	if shallowCh != deepCh {
		return nil, errors.Errorf("fusion taps must share a channel width, got %d and %d", shallowCh, deepCh)
	}
	f := &Fusion{}
	var err error
	if f.ConvShallow, err = layers.NewConv2D("fuse.conv_shallow", shallowCh, shallowCh, 3, 1, 1, 1, 1); err != nil {
		return nil, err
	}
	if f.Deconv, err = layers.NewConvTranspose2D("fuse.deconv_deep", deepCh, shallowCh, 2, 2); err != nil {
		return nil, err
	}
	if f.ConvDeep, err = layers.NewConv2D("fuse.conv_deep", shallowCh, shallowCh, 3, 1, 1, 1, 1); err != nil {
		return nil, err
	}
	if normalize {
		f.NormShallow = layers.NewBatchNorm2D("fuse.norm_shallow", shallowCh)
		f.NormDeconv = layers.NewBatchNorm2D("fuse.norm_deconv", shallowCh)
		// Distinct stage for the second deep-branch conv; sharing the deconv's
		// normalization here was a defect in the ancestry of this block.
		f.NormDeep = layers.NewBatchNorm2D("fuse.norm_deep", shallowCh)
	}
	f.ScaleShallow = layers.NewL2Norm("fuse.scale_shallow", shallowCh, 20)
	f.ScaleDeep = layers.NewL2Norm("fuse.scale_deep", shallowCh, 10)
	return f, nil
}

// Forward fuses the two taps into one feature map with the shallow tap's
// spatial dimensions.
func (f *Fusion) Forward(shallow, deep *tensor.Tensor) (*tensor.Tensor, error) {
	a, err := f.ConvShallow.Forward(shallow)
	if err != nil {
		return nil, errors.Wrap(err, "shallow branch")
	}
	if f.NormShallow != nil {
		if a, err = f.NormShallow.Forward(a); err != nil {
			return nil, errors.Wrap(err, "shallow branch")
		}
	}

	b, err := f.Deconv.Forward(deep)
	if err != nil {
		return nil, errors.Wrap(err, "deep branch")
	}
	if f.NormDeconv != nil {
		if b, err = f.NormDeconv.Forward(b); err != nil {
			return nil, errors.Wrap(err, "deep branch")
		}
	}
	if b, err = f.ConvDeep.Forward(b); err != nil {
		return nil, errors.Wrap(err, "deep branch")
	}
	if f.NormDeep != nil {
		if b, err = f.NormDeep.Forward(b); err != nil {
			return nil, errors.Wrap(err, "deep branch")
		}
	}

	if a.Shape[2] != b.Shape[2] || a.Shape[3] != b.Shape[3] {
		return nil, errors.Errorf("upsampled deep tap %dx%d does not match shallow tap %dx%d",
			b.Shape[2], b.Shape[3], a.Shape[2], a.Shape[3])
	}

	if a, err = f.ScaleShallow.Forward(a); err != nil {
		return nil, err
	}
	if b, err = f.ScaleDeep.Forward(b); err != nil {
		return nil, err
	}
	sum, err := tensor.Add(a, b)
	if err != nil {
		return nil, err
	}
	return layers.ReLU{}.Forward(sum)
}
