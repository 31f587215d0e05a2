// Package shock implements a coherence-enhancing shock filter. The
// candidate selector compares a deconvolved image against its
// shock-filtered self: a well-deconvolved image barely changes, a
// badly-deconvolved one does.
package shock

import (
	"math"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// Filter parameters. The blend keeps the filter gentle enough that a
// sharp input passes through nearly unchanged.
const (
	iterations = 4
	blend      = 0.5
)

// Filter sharpens edges by eroding/dilating along the dominant local
// orientation, derived from the smoothed structure tensor. Input and
// output are display-range ([0,255]) grids.
func Filter(g dmath.Grid) dmath.Grid {
	out := g.Clone()

	for it := 0; it < iterations; it++ {
		gx, gy := out.Sobel()

		// Structure tensor, smoothed so the orientation field is coherent
		// across an edge rather than per-pixel noisy.
		w, h := out.Dx(), out.Dy()
		jxx, jxy, jyy := dmath.NewGrid(w, h), dmath.NewGrid(w, h), dmath.NewGrid(w, h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dx, dy := gx.Get(x, y), gy.Get(x, y)
				jxx.Set(x, y, dx*dx)
				jxy.Set(x, y, dx*dy)
				jyy.Set(x, y, dy*dy)
			}
		}
		jxx = jxx.Gaussian5().Gaussian5()
		jxy = jxy.Gaussian5().Gaussian5()
		jyy = jyy.Gaussian5().Gaussian5()

		// Second derivatives for the sign test along the orientation.
		gxx, gxy := gx.Sobel()
		_, gyy := gy.Sobel()

		ero := out.Erode3()
		dil := out.Dilate3()

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				// Dominant eigenvector of the structure tensor (the
				// across-edge direction), closed form for the 2x2 case.
				theta := 0.5 * math.Atan2(2*jxy.Get(x, y), jxx.Get(x, y)-jyy.Get(x, y))
				c, s := math.Cos(theta), math.Sin(theta)

				// Second derivative along that direction decides between
				// dilation (bright side of the edge) and erosion.
				vv := c*c*gxx.Get(x, y) + 2*c*s*gxy.Get(x, y) + s*s*gyy.Get(x, y)

				target := ero.Get(x, y)
				if vv < 0 {
					target = dil.Get(x, y)
				}
				out.Set(x, y, out.Get(x, y)*(1-blend)+target*blend)
			}
		}
	}

	return out
}
