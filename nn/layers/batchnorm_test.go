package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssdfuse/tensor"
)

func TestBatchNorm2DIdentityInit(t *testing.T) {
	bn := NewBatchNorm2D("bn", 2)
	x := tensor.New(1, 2, 2, 2)
	for i := range x.Data {
		x.Data[i] = float64(i) - 3.5
	}
	y, err := bn.Forward(x)
	require.NoError(t, err)
	for i := range x.Data {
		assert.InDelta(t, x.Data[i], y.Data[i], 1e-4)
	}
}

func TestBatchNorm2DAffine(t *testing.T) {
	bn := NewBatchNorm2D("bn", 1)
	bn.Mean.Data[0] = 2
	bn.Var.Data[0] = 4
	bn.Gamma.Data[0] = 3
	bn.Beta.Data[0] = 1

	x := tensor.New(1, 1, 1, 2)
	x.Data[0] = 2  // (2-2)/2*3+1 = 1
	x.Data[1] = 6 // (6-2)/2*3+1 = 7
	y, err := bn.Forward(x)
	require.NoError(t, err)
	assert.InDelta(t, 1, y.Data[0], 1e-4)
	assert.InDelta(t, 7, y.Data[1], 1e-4)
}

func TestBatchNorm2DErrors(t *testing.T) {
	bn := NewBatchNorm2D("bn", 3)
	_, err := bn.Forward(tensor.New(1, 2, 2, 2))
	assert.Error(t, err)
	_, err = bn.Forward(tensor.New(3, 2, 2))
	assert.Error(t, err)
}
