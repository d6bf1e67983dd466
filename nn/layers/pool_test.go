package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssdfuse/tensor"
)

func TestMaxPool2DOutputShape(t *testing.T) {
	tests := []struct {
		name                     string
		kernel, stride, padding  int
		ceil                     bool
		in, want                 int
	}{
		{"halve even", 2, 2, 0, false, 150, 75},
		{"floor odd", 2, 2, 0, false, 75, 37},
		{"ceil odd", 2, 2, 0, true, 75, 38},
		{"size preserving", 3, 1, 1, false, 19, 19},
		{"ceil no-op on even", 2, 2, 0, true, 150, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewMaxPool2D(tt.kernel, tt.stride, tt.padding, tt.ceil)
			h, w := p.OutputShape(tt.in, tt.in)
			assert.Equal(t, tt.want, h)
			assert.Equal(t, tt.want, w)
		})
	}
}

func TestMaxPool2DForward(t *testing.T) {
	p := NewMaxPool2D(2, 2, 0, false)
	x := tensor.New(1, 1, 4, 4)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	y, err := p.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, y.Shape)
	assert.Equal(t, []float64{5, 7, 13, 15}, y.Data)
}

func TestMaxPool2DForwardCeil(t *testing.T) {
	// 3-wide input with a 2x2 stride-2 ceil pool: the trailing window covers
	// only the last column.
	p := NewMaxPool2D(2, 2, 0, true)
	x := tensor.New(1, 1, 3, 3)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	y, err := p.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, y.Shape)
	assert.Equal(t, []float64{4, 5, 7, 8}, y.Data)
}

func TestMaxPool2DForwardNegativeValues(t *testing.T) {
	p := NewMaxPool2D(2, 2, 0, false)
	x := tensor.New(1, 1, 2, 2)
	for i := range x.Data {
		x.Data[i] = -float64(i + 1)
	}
	y, err := p.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1}, y.Data)
}

func TestMaxPool2DForwardErrors(t *testing.T) {
	p := NewMaxPool2D(2, 2, 0, false)
	_, err := p.Forward(tensor.New(4, 4))
	assert.Error(t, err)
}
