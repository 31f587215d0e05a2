package dmath

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// clampIdx replicates the border pixel, which keeps gradients sane at
// the image edge.
func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Sobel computes the 3x3 Sobel gradients of the grid, replicating the
// border. Returns the x and y derivative grids.
func (g Grid) Sobel() (Grid, Grid) {
	w, h := g.Dx(), g.Dy()
	gx, gy := g.NewFromThis(), g.NewFromThis()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var p [3][3]float64
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					p[j+1][i+1] = g.Get(clampIdx(x+i, w), clampIdx(y+j, h))
				}
			}
			gx.Set(x, y,
				(p[0][2]+2*p[1][2]+p[2][2])-(p[0][0]+2*p[1][0]+p[2][0]))
			gy.Set(x, y,
				(p[2][0]+2*p[2][1]+p[2][2])-(p[0][0]+2*p[0][1]+p[0][2]))
		}
	}
	return gx, gy
}

// Gaussian5 applies a separable 5-tap binomial blur (the usual stand-in
// for a 5x5 Gaussian), replicating the border.
func (g Grid) Gaussian5() Grid {
	w, h := g.Dx(), g.Dy()
	taps := [5]float64{1, 4, 6, 4, 1}

	t := g.NewFromThis()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i := -2; i <= 2; i++ {
				acc += taps[i+2] * g.Get(clampIdx(x+i, w), y)
			}
			t.Set(x, y, acc/16.0)
		}
	}

	out := g.NewFromThis()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for j := -2; j <= 2; j++ {
				acc += taps[j+2] * t.Get(x, clampIdx(y+j, h))
			}
			out.Set(x, y, acc/16.0)
		}
	}
	return out
}

// Erode3 takes the 3x3 neighborhood minimum.
func (g Grid) Erode3() Grid { return g.morph3(false) }

// Dilate3 takes the 3x3 neighborhood maximum.
func (g Grid) Dilate3() Grid { return g.morph3(true) }

func (g Grid) morph3(dilate bool) Grid {
	w, h := g.Dx(), g.Dy()
	out := g.NewFromThis()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := g.Get(x, y)
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					v := g.Get(clampIdx(x+i, w), clampIdx(y+j, h))
					if dilate && v > best || !dilate && v < best {
						best = v
					}
				}
			}
			out.Set(x, y, best)
		}
	}
	return out
}

// GradientMagnitude combines x/y derivative grids into a magnitude map.
func GradientMagnitude(gx, gy Grid) Grid {
	out := gx.NewFromThis()
	for i, v := range gx.values {
		out.values[i] = math.Sqrt(v*v + gy.values[i]*gy.values[i])
	}
	return out
}

// MaskedCorrelation computes the Pearson correlation of the two grids
// over the masked pixels. Returns 0 when the mask holds fewer than two
// pixels or either grid is constant under the mask.
func MaskedCorrelation(a, b Grid, m Bitmap) float64 {
	xs := a.MaskedValues(m)
	ys := b.MaskedValues(m)
	if len(xs) < 2 {
		return 0
	}
	c := stat.Correlation(xs, ys, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}
