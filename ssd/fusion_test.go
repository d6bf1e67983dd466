package ssd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssdfuse/tensor"
)

func TestNewFusionChannelMismatch(t *testing.T) {
	_, err := newFusion(512, 256, false)
	assert.Error(t, err)
}

func TestNewFusionNormalized(t *testing.T) {
	f, err := newFusion(8, 8, true)
	require.NoError(t, err)
	require.NotNil(t, f.NormShallow)
	require.NotNil(t, f.NormDeconv)
	require.NotNil(t, f.NormDeep)
	// Each deep-branch stage carries its own statistics.
	assert.NotSame(t, f.NormDeconv, f.NormDeep)
}

func TestFusionForwardShape(t *testing.T) {
	f, err := newFusion(8, 8, false)
	require.NoError(t, err)

	shallow := tensor.New(1, 8, 4, 4)
	deep := tensor.New(1, 8, 2, 2)
	for i := range shallow.Data {
		shallow.Data[i] = 0.1
	}
	for i := range deep.Data {
		deep.Data[i] = 0.2
	}
	out, err := f.Forward(shallow, deep)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 8, 4, 4}, out.Shape)

	// Rectified output.
	for _, v := range out.Data {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestFusionForwardSpatialMismatch(t *testing.T) {
	f, err := newFusion(8, 8, false)
	require.NoError(t, err)
	// Deep tap upsamples 3 -> 6, which cannot match a 4-wide shallow tap.
	_, err = f.Forward(tensor.New(1, 8, 4, 4), tensor.New(1, 8, 3, 3))
	assert.Error(t, err)
}

func TestFusionScaleInit(t *testing.T) {
	f, err := newFusion(4, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 20.0, f.ScaleShallow.Scale.Data[0])
	assert.Equal(t, 10.0, f.ScaleDeep.Scale.Data[0])
}
