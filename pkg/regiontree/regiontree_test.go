package regiontree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkersting/stereo-deblur/pkg/disparity"
)

// stripMaps builds a pair of depth maps split into `layers` horizontal
// strips, identical in both views.
func stripMaps(w, h, layers int) (disparity.Map, disparity.Map) {
	l := disparity.NewMap(w, h)
	r := disparity.NewMap(w, h)
	for y := 0; y < h; y++ {
		lvl := y * layers / h
		for x := 0; x < w; x++ {
			l.SetLevel(x, y, lvl)
			r.SetLevel(x, y, lvl)
		}
	}
	return l, r
}

func TestBuildRejectsBadArgs(t *testing.T) {
	l, r := stripMaps(8, 8, 4)

	_, err := Build(l, r, 3, 2)
	assert.Error(t, err, "odd layer count")
	_, err = Build(l, r, 0, 2)
	assert.Error(t, err, "zero layers")
	_, err = Build(l, r, 4, 0)
	assert.Error(t, err, "no room for any root")

	short := disparity.NewMap(8, 4)
	_, err = Build(l, short, 4, 2)
	assert.Error(t, err, "size mismatch")
}

func TestBuildFourLayersOneRoot(t *testing.T) {
	l, r := stripMaps(8, 8, 4)
	tree, err := Build(l, r, 4, 1)
	require.NoError(t, err)

	// 4 leaves + 2 mid nodes + 1 root.
	require.Equal(t, 7, tree.Size())
	require.Equal(t, []int{6}, tree.TopLevelIDs)

	for id := 0; id < 4; id++ {
		n := tree.Nodes[id]
		assert.True(t, tree.IsLeaf(id))
		assert.Equal(t, id, n.Layer)
		assert.Equal(t, 0, n.Level)
	}

	assert.Equal(t, [2]int{0, 1}, tree.Nodes[4].Children)
	assert.Equal(t, [2]int{2, 3}, tree.Nodes[5].Children)
	assert.Equal(t, [2]int{4, 5}, tree.Nodes[6].Children)
	assert.Equal(t, 6, tree.Nodes[4].Parent)
	assert.Equal(t, 6, tree.Nodes[5].Parent)
	assert.Equal(t, -1, tree.Nodes[6].Parent)
	assert.Equal(t, 2, tree.Nodes[6].Level)

	require.NoError(t, tree.Validate())

	// Root mask covers everything; the first mid node covers the top
	// two strips only.
	root := tree.Mask(6, 0)
	assert.Equal(t, 64, root.Count())
	assert.Equal(t, 32, tree.Mask(4, 0).Count())
	assert.False(t, tree.Mask(4, 0).Intersects(tree.Mask(5, 0)))
}

func TestBuildStopsAtMaxTopLevel(t *testing.T) {
	l, r := stripMaps(8, 8, 8)
	tree, err := Build(l, r, 8, 3)
	require.NoError(t, err)

	// 8 -> 4 merged nodes; 4 > 3 so one more round: 4 -> 2 roots.
	assert.Len(t, tree.TopLevelIDs, 2)
	require.NoError(t, tree.Validate())
}

func TestLevelPeers(t *testing.T) {
	l, r := stripMaps(8, 8, 4)
	tree, err := Build(l, r, 4, 1)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0, 1, 2, 3}, tree.LevelPeers(2))
	assert.ElementsMatch(t, []int{4, 5}, tree.LevelPeers(4))
	assert.ElementsMatch(t, []int{4, 5}, tree.LevelPeers(5))
	assert.ElementsMatch(t, []int{6}, tree.LevelPeers(6))
}

func TestMasksDifferPerView(t *testing.T) {
	// Views disagree about a pixel's layer; each view's mask must follow
	// its own map.
	l, r := stripMaps(4, 4, 2)
	r.SetLevel(0, 0, 1)

	tree, err := Build(l, r, 2, 1)
	require.NoError(t, err)

	assert.True(t, tree.Mask(0, 0).Get(0, 0))
	assert.False(t, tree.Mask(0, 1).Get(0, 0))
	assert.True(t, tree.Mask(1, 1).Get(0, 0))
	require.NoError(t, tree.Validate())
}
