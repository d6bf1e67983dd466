package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndSize(t *testing.T) {
	x := New(2, 3, 4)
	assert.Equal(t, []int{2, 3, 4}, x.Shape)
	assert.Len(t, x.Data, 24)
	assert.Equal(t, 24, x.Size())
}

func TestAtSet(t *testing.T) {
	x := New(2, 3)
	x.Set(7, 1, 2)
	assert.Equal(t, 7.0, x.At(1, 2))
	assert.Equal(t, 7.0, x.Data[5])

	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })
}

func TestClone(t *testing.T) {
	x := NewWithData([]float64{1, 2, 3})
	y := x.Clone()
	y.Data[0] = 9
	assert.Equal(t, 1.0, x.Data[0])
}

func TestReshape(t *testing.T) {
	x := New(2, 6)
	y, err := x.Reshape(3, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, y.Shape)

	// Shares backing data.
	y.Data[0] = 5
	assert.Equal(t, 5.0, x.Data[0])

	_, err = x.Reshape(5, 5)
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	a := NewWithData([]float64{1, 2})
	b := NewWithData([]float64{10, 20})
	c, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22}, c.Data)

	_, err = Add(a, New(3))
	assert.Error(t, err)
	_, err = Add(a, New(2, 1))
	assert.Error(t, err)
}

func TestMatMul(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3, 4, 5, 6}, Shape: []int{2, 3}}
	b := &Tensor{Data: []float64{7, 8, 9, 10, 11, 12}, Shape: []int{3, 2}}
	c, err := MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, c.Shape)
	assert.Equal(t, []float64{58, 64, 139, 154}, c.Data)

	_, err = MatMul(a, New(2, 2))
	assert.Error(t, err)
	_, err = MatMul(New(2), b)
	assert.Error(t, err)
}
