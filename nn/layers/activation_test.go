package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssdfuse/tensor"
)

func TestReLUForward(t *testing.T) {
	x := tensor.NewWithData([]float64{-2, -0.5, 0, 0.5, 2})
	y, err := ReLU{}.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0.5, 2}, y.Data)
	// Input is untouched.
	assert.Equal(t, -2.0, x.Data[0])
}
