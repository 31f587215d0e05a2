package dmath

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// A Grid is a single-channel float64 image plane. All the numerical
// work in the pipeline (gradients, spectra, kernels, latent images)
// happens on Grids; conversion to displayable images only happens at
// the edges.
type Grid struct {
	stride int
	values []float64
}

func NewGrid(w, h int) Grid {
	return Grid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// FromImageGray flattens any image into a grayscale Grid with values
// in [0,255], using the usual luma weights.
func FromImageGray(img image.Image) Grid {
	b := img.Bounds()
	g := NewGrid(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum := 0.299*float64(r) + 0.587*float64(gr) + 0.114*float64(bl)
			g.Set(x, y, lum/257.0) // 16-bit color back down to [0,255]
		}
	}
	return g
}

func (g Grid) NewFromThis() Grid          { return NewGrid(g.Dx(), g.Dy()) }
func (g Grid) Set(x, y int, v float64)    { g.values[g.stride*y+x] = v }
func (g Grid) Get(x, y int) float64       { return g.values[g.stride*y+x] }
func (g Grid) Dx() int                    { return g.stride }
func (g Grid) Dy() int                    { return len(g.values) / g.stride }
func (g Grid) Values() []float64          { return g.values }
func (g Grid) IsZeroSize() bool           { return len(g.values) == 0 }

func (g Grid) Clone() Grid {
	g2 := Grid{stride: g.stride, values: make([]float64, len(g.values))}
	copy(g2.values, g.values)
	return g2
}

func (g Grid) Sum() float64 {
	sum := 0.0
	for _, v := range g.values {
		sum += v
	}
	return sum
}

func (g Grid) MinMax() (float64, float64) {
	min, max := math.MaxFloat64, -math.MaxFloat64
	for _, v := range g.values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Scale multiplies every value in place.
func (g Grid) Scale(s float64) Grid {
	for i := range g.values {
		g.values[i] *= s
	}
	return g
}

// Clamp truncates every value into [lo,hi] in place.
func (g Grid) Clamp(lo, hi float64) Grid {
	for i, v := range g.values {
		if v < lo {
			g.values[i] = lo
		} else if v > hi {
			g.values[i] = hi
		}
	}
	return g
}

// NormalizeSigned affinely maps [min,max] onto [-1,1] in place. A flat
// grid is left alone.
func (g Grid) NormalizeSigned() Grid {
	min, max := g.MinMax()
	if max-min < 1e-12 {
		return g
	}
	for i, v := range g.values {
		g.values[i] = 2.0*(v-min)/(max-min) - 1.0
	}
	return g
}

// ApplyMask returns a copy with everything outside the mask zeroed.
func (g Grid) ApplyMask(m Bitmap) Grid {
	g2 := g.NewFromThis()
	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			if m.Get(x, y) {
				g2.Set(x, y, g.Get(x, y))
			}
		}
	}
	return g2
}

// MaskedValues collects the values under the mask, in row-major order.
func (g Grid) MaskedValues(m Bitmap) []float64 {
	vals := make([]float64, 0, m.Count())
	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			if m.Get(x, y) {
				vals = append(vals, g.Get(x, y))
			}
		}
	}
	return vals
}

// ToGray converts a [0,255] grid into an 8-bit grayscale image.
func (g Grid) ToGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Dx(), g.Dy()))
	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			v := g.Get(x, y)
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{uint8(v + 0.5)})
		}
	}
	return img
}

func (g Grid) Stats() string {
	min, max := g.MinMax()
	return fmt.Sprintf("grid[%dx%d, vals{%f,%f}]", g.Dx(), g.Dy(), min, max)
}

// ToImg saves a grayscale render of the grid, range-normalized, with a
// title - handy for eyeballing kernels and gradient maps.
func (g Grid) ToImg(title, filename string) error {
	min, max := g.MinMax()
	if max-min < 1e-12 {
		max = min + 1
	}

	img := image.NewRGBA(image.Rect(0, 0, g.Dx(), g.Dy()))
	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			gray := uint8(255.0 * (g.Get(x, y) - min) / (max - min))
			img.Set(x, y, color.RGBA{gray, gray, gray, 0xFF})
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 10, 15)
	return dc.SavePNG(filename)
}
