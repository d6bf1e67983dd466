package ssd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssdfuse/nn"
	"ssdfuse/tensor"
)

func TestBuildTrunkTaps(t *testing.T) {
	seq, taps, err := buildTrunk(trunkSpec, 12, false, 1)
	require.NoError(t, err)

	// 13 spec convs at 2 records each (conv, relu), 4 pools, then the tail
	// (pool5, conv6, conv7).
	assert.Len(t, seq, 13*2+4+5)
	assert.Equal(t, 23, taps.Shallow)
	assert.Equal(t, 30, taps.Deep)
	assert.Equal(t, 512, taps.ShallowCh)
	assert.Equal(t, 512, taps.DeepCh)
	assert.Equal(t, 1024, taps.OutCh)

	// The record before each tap must be the tapped conv's activation.
	assert.Equal(t, nn.KindReLU, seq[taps.Shallow-1].Kind)
	assert.Equal(t, nn.KindReLU, seq[taps.Deep-1].Kind)
}

func TestBuildTrunkTapsNormalized(t *testing.T) {
	seq, taps, err := buildTrunk(trunkSpec, 12, true, 1)
	require.NoError(t, err)
	assert.Len(t, seq, 13*3+4+7)
	assert.Equal(t, 33, taps.Shallow)
	assert.Equal(t, 43, taps.Deep)
	assert.Equal(t, nn.KindReLU, seq[taps.Shallow-1].Kind)
	assert.Equal(t, nn.KindReLU, seq[taps.Deep-1].Kind)
}

func TestBuildTrunkSpecErrors(t *testing.T) {
	_, _, err := buildTrunk([]int{64, 64}, 12, false, 1)
	assert.Error(t, err, "no pool marker")
	_, _, err = buildTrunk([]int{64, S, 64}, 12, false, 1)
	assert.Error(t, err, "downsample boundary outside extras")
	_, _, err = buildTrunk([]int{64, M, -9}, 12, false, 1)
	assert.Error(t, err, "unknown token")
}

func TestBuildTrunkSpatialChain(t *testing.T) {
	if testing.Short() {
		t.Skip("full-resolution trunk pass")
	}
	seq, taps, err := buildTrunk(trunkSpec, 2, false, 1)
	require.NoError(t, err)

	x := tensor.New(1, 2, 300, 300)
	shallow, err := seq.ForwardRange(x, 0, taps.Shallow)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 512, 38, 38}, shallow.Shape)

	deep, err := seq.ForwardRange(shallow, taps.Shallow, taps.Deep)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 512, 19, 19}, deep.Shape)

	out, err := seq.ForwardRange(deep, taps.Deep, len(seq))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1024, 19, 19}, out.Shape)
}
