package ssd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssdfuse/tensor"
)

func TestBuildMultibox(t *testing.T) {
	tapCh := []int{512, 1024, 1024, 512, 512, 512}
	per := []int{6, 6, 6, 6, 4, 4}
	loc, conf, err := buildMultibox(tapCh, per, 21)
	require.NoError(t, err)
	require.Len(t, loc, 6)
	require.Len(t, conf, 6)
	for k := range loc {
		assert.Equal(t, per[k]*4, loc[k].OutChannels())
		assert.Equal(t, per[k]*21, conf[k].OutChannels())
	}
}

func TestBuildMultiboxLengthMismatch(t *testing.T) {
	_, _, err := buildMultibox([]int{512, 1024}, []int{6}, 21)
	assert.Error(t, err)
}

func TestMultiboxHeadShapes(t *testing.T) {
	loc, conf, err := buildMultibox([]int{8}, []int{4}, 3)
	require.NoError(t, err)

	x := tensor.New(2, 8, 5, 5)
	lo, err := loc[0].Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 16, 5, 5}, lo.Shape)

	co, err := conf[0].Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 12, 5, 5}, co.Shape)
}
