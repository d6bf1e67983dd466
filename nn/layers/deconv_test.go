package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssdfuse/tensor"
)

func TestNewConvTranspose2DValidation(t *testing.T) {
	_, err := NewConvTranspose2D("bad", 0, 4, 2, 2)
	assert.Error(t, err)
	_, err = NewConvTranspose2D("bad", 4, 4, 2, 0)
	assert.Error(t, err)
}

func TestConvTranspose2DForwardShape(t *testing.T) {
	d, err := NewConvTranspose2D("up", 8, 4, 2, 2)
	require.NoError(t, err)
	y, err := d.Forward(tensor.New(1, 8, 19, 19))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 38, 38}, y.Shape)
}

func TestConvTranspose2DForwardValues(t *testing.T) {
	// One input value scatters its kernel patch.
	d, err := NewConvTranspose2D("up", 1, 1, 2, 2)
	require.NoError(t, err)
	copy(d.W.Data, []float64{1, 2, 3, 4})
	d.B.Data[0] = 0

	x := tensor.New(1, 1, 2, 2)
	x.Data[0] = 1
	x.Data[3] = 10
	y, err := d.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 4, 4}, y.Shape)
	want := []float64{
		1, 2, 0, 0,
		3, 4, 0, 0,
		0, 0, 10, 20,
		0, 0, 30, 40,
	}
	assert.Equal(t, want, y.Data)
}

func TestConvTranspose2DForwardBias(t *testing.T) {
	d, err := NewConvTranspose2D("up", 1, 1, 2, 2)
	require.NoError(t, err)
	for i := range d.W.Data {
		d.W.Data[i] = 0
	}
	d.B.Data[0] = 3
	y, err := d.Forward(tensor.New(1, 1, 1, 1))
	require.NoError(t, err)
	for _, v := range y.Data {
		assert.Equal(t, 3.0, v)
	}
}

func TestConvTranspose2DForwardErrors(t *testing.T) {
	d, err := NewConvTranspose2D("up", 2, 2, 2, 2)
	require.NoError(t, err)
	_, err = d.Forward(tensor.New(1, 3, 2, 2))
	assert.Error(t, err)
	_, err = d.Forward(tensor.New(2, 2))
	assert.Error(t, err)
}
