package disparity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// texture builds a dense deterministic pattern; block matching needs
// texture everywhere to lock on to.
func texture(w, h int, seed uint32) dmath.Grid {
	g := dmath.NewGrid(w, h)
	for i := range g.Values() {
		seed = seed*1664525 + 1013904223
		g.Values()[i] = float64(seed % 256)
	}
	return g
}

func TestUnsupportedAlgorithm(t *testing.T) {
	g := texture(16, 16, 1)
	_, _, err := Estimate(g, g, Config{Algo: "sgbm", MaxDisparity: 8, Layers: 2})
	assert.Error(t, err)
}

func TestSizeMismatch(t *testing.T) {
	a := texture(16, 16, 1)
	b := texture(16, 8, 1)
	_, _, err := Estimate(a, b, Config{Algo: "match", MaxDisparity: 8, Layers: 2})
	assert.Error(t, err)
}

func TestTwoDepthPlanes(t *testing.T) {
	// Left view: textured. Right view: top half identical (disparity
	// 0), bottom half shifted so the matcher sees a clear disparity.
	const w, h, shift = 64, 64, 8
	left := texture(w, h, 77)
	right := dmath.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if y < h/2 {
				right.Set(x, y, left.Get(x, y))
			} else {
				sx := x + shift
				if sx >= w {
					sx = w - 1
				}
				right.Set(x, y, left.Get(sx, y))
			}
		}
	}

	dl, dr, err := Estimate(left, right, Config{Algo: "match", MaxDisparity: 16, Layers: 2})
	require.NoError(t, err)
	require.Equal(t, w, dl.Dx())
	require.Equal(t, h, dl.Dy())

	for _, m := range []Map{dl, dr} {
		top0, bottom1 := 0, 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				lvl := m.Level(x, y)
				require.GreaterOrEqual(t, lvl, 0)
				require.Less(t, lvl, 2)
				if y < h/4 && lvl == 0 {
					top0++
				}
				if y >= 3*h/4 && lvl == 1 {
					bottom1++
				}
			}
		}
		quarter := w * h / 4
		assert.Greater(t, top0, quarter*7/10, "top half should land in layer 0")
		assert.Greater(t, bottom1, quarter*7/10, "bottom half should land in layer 1")
	}
}

func TestFillOcclusions(t *testing.T) {
	m := NewMap(5, 1)
	m.SetLevel(0, 0, 3)
	m.SetLevel(1, 0, occluded)
	m.SetLevel(2, 0, occluded)
	m.SetLevel(3, 0, 7)
	m.SetLevel(4, 0, occluded)

	fillOcclusions(m)

	// Occlusions take the smaller (background) neighbor.
	assert.Equal(t, 3, m.Level(1, 0))
	assert.Equal(t, 3, m.Level(2, 0))
	assert.Equal(t, 7, m.Level(4, 0))
}

func TestQuantize(t *testing.T) {
	a := NewMap(4, 1)
	b := NewMap(4, 1)
	for i := 0; i < 4; i++ {
		a.SetLevel(i, 0, i*10)   // 0, 10, 20, 30
		b.SetLevel(i, 0, 30-i*10)
	}
	quantize(a, b, 2)

	assert.Equal(t, 0, a.Level(0, 0))
	assert.Equal(t, 0, a.Level(1, 0))
	assert.Equal(t, 1, a.Level(2, 0))
	assert.Equal(t, 1, a.Level(3, 0))
	assert.Equal(t, 1, b.Level(0, 0))
	assert.Equal(t, 0, b.Level(3, 0))
}
