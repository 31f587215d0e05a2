package deblur

import (
	"image"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// A View identifies one side of the stereo pair.
type View int

const (
	Reference View = iota // left
	Matching              // right
)

// viewData caches the representations of one view that the pipeline
// keeps reusing: the original image, a [0,255] grayscale grid, and a
// [0,1] float grid.
type viewData struct {
	img  image.Image
	gray dmath.Grid
	flt  dmath.Grid
}

func newViewData(img image.Image) viewData {
	gray := dmath.FromImageGray(img)
	flt := gray.Clone().Scale(1.0 / 255.0)
	return viewData{img: img, gray: gray, flt: flt}
}

// channelGrids splits the view's color image into per-channel [0,1]
// grids for color reconstruction.
func (v viewData) channelGrids() [3]dmath.Grid {
	b := v.img.Bounds()
	var out [3]dmath.Grid
	for c := range out {
		out[c] = dmath.NewGrid(b.Dx(), b.Dy())
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := v.img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out[0].Set(x, y, float64(r)/65535.0)
			out[1].Set(x, y, float64(g)/65535.0)
			out[2].Set(x, y, float64(bl)/65535.0)
		}
	}
	return out
}

// gradientCache holds the raw Sobel gradients of both blurred views,
// normalized to [-1,1]. Computed once per run; every joint estimation
// reads from it.
type gradientCache struct {
	x, y [2]dmath.Grid
}

func newGradientCache(views [2]viewData) gradientCache {
	var gc gradientCache
	for v := 0; v < 2; v++ {
		gx, gy := views[v].gray.Sobel()
		gc.x[v] = gx.NormalizeSigned()
		gc.y[v] = gy.NormalizeSigned()
	}
	return gc
}
