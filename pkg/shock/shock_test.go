package shock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

func step(w, h int) dmath.Grid {
	g := dmath.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			g.Set(x, y, 255)
		}
	}
	return g
}

// Blur a grid with a small box so the step has a ramp to sharpen.
func boxBlur(g dmath.Grid, r int) dmath.Grid {
	w, h := g.Dx(), g.Dy()
	out := dmath.NewGrid(w, h)
	n := float64((2*r + 1) * (2*r + 1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for j := -r; j <= r; j++ {
				for i := -r; i <= r; i++ {
					xx, yy := x+i, y+j
					if xx < 0 {
						xx = 0
					} else if xx >= w {
						xx = w - 1
					}
					if yy < 0 {
						yy = 0
					} else if yy >= h {
						yy = h - 1
					}
					acc += g.Get(xx, yy)
				}
			}
			out.Set(x, y, acc/n)
		}
	}
	return out
}

// edgeSlope measures the largest horizontal step on the middle row.
func edgeSlope(g dmath.Grid) float64 {
	y := g.Dy() / 2
	best := 0.0
	for x := 1; x < g.Dx(); x++ {
		d := g.Get(x, y) - g.Get(x-1, y)
		if d < 0 {
			d = -d
		}
		if d > best {
			best = d
		}
	}
	return best
}

func TestFilterLeavesConstantAlone(t *testing.T) {
	g := dmath.NewGrid(16, 16)
	for i := range g.Values() {
		g.Values()[i] = 128
	}
	out := Filter(g)
	for _, v := range out.Values() {
		assert.InDelta(t, 128.0, v, 1e-9)
	}
}

func TestFilterSharpensBlurredEdge(t *testing.T) {
	blurred := boxBlur(step(32, 32), 2)
	out := Filter(blurred)
	assert.Greater(t, edgeSlope(out), edgeSlope(blurred))
}

func TestFilterDoesNotMoveInput(t *testing.T) {
	g := step(16, 16)
	out := Filter(g)
	assert.Equal(t, 16, out.Dx())
	assert.Equal(t, 16, out.Dy())
	// Input grid untouched.
	assert.Equal(t, 0.0, g.Get(0, 8))
	assert.Equal(t, 255.0, g.Get(15, 8))
}

func TestFilterBoundsOutput(t *testing.T) {
	blurred := boxBlur(step(24, 24), 3)
	out := Filter(blurred)
	min, max := out.MinMax()
	assert.GreaterOrEqual(t, min, 0.0)
	assert.LessOrEqual(t, max, 255.0)
}
