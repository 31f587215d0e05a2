// Package disparity estimates quantized per-view depth-layer maps from
// a stereo pair: block matching with a left/right cross-check,
// occlusion filling, and quantization into a fixed number of layers.
// Matching runs on a half-size pyramid level, which also roughly
// halves the blur it has to fight.
package disparity

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// A Map holds an integer depth-layer index per pixel.
type Map struct {
	stride int
	lvl    []int
}

func NewMap(w, h int) Map {
	return Map{stride: w, lvl: make([]int, w*h)}
}

func (m Map) Dx() int { return m.stride }
func (m Map) Dy() int {
	if m.stride == 0 {
		return 0
	}
	return len(m.lvl) / m.stride
}
func (m Map) Level(x, y int) int       { return m.lvl[y*m.stride+x] }
func (m Map) SetLevel(x, y, level int) { m.lvl[y*m.stride+x] = level }

// Config for disparity estimation. Algo "match" is the block-matching
// path; there is no other implemented algorithm.
type Config struct {
	Algo         string
	MaxDisparity int
	Layers       int
	WindowRadius int
}

const occluded = -1

// Estimate produces the left and right quantized depth-layer maps for
// a gray stereo pair ([0,255] grids of identical size).
func Estimate(left, right dmath.Grid, cfg Config) (Map, Map, error) {
	if cfg.Algo != "match" {
		return Map{}, Map{}, fmt.Errorf("disparity: unsupported algorithm %q", cfg.Algo)
	}
	if left.Dx() != right.Dx() || left.Dy() != right.Dy() {
		return Map{}, Map{}, fmt.Errorf("disparity: view sizes differ (%dx%d vs %dx%d)",
			left.Dx(), left.Dy(), right.Dx(), right.Dy())
	}
	if cfg.WindowRadius <= 0 {
		cfg.WindowRadius = 4
	}

	// Match on a half-size pyramid level; the max disparity shrinks
	// with the image.
	smallL := downsample2(left)
	smallR := downsample2(right)
	maxD := cfg.MaxDisparity / 2
	if maxD < 1 {
		maxD = 1
	}

	dl := matchSAD(smallL, smallR, maxD, cfg.WindowRadius, false)
	dr := matchSAD(smallR, smallL, maxD, cfg.WindowRadius, true)

	crossCheck(dl, dr, false)
	crossCheck(dr, dl, true)
	fillOcclusions(dl)
	fillOcclusions(dr)

	quantize(dl, dr, cfg.Layers)

	// Back up to full resolution, without interpolating layer indices.
	fullL := upsampleNearest(dl, left.Dx(), left.Dy())
	fullR := upsampleNearest(dr, left.Dx(), left.Dy())
	return fullL, fullR, nil
}

// downsample2 halves a [0,255] grid with Catmull-Rom resampling, which
// doubles as the pyramid's anti-alias filter.
func downsample2(g dmath.Grid) dmath.Grid {
	src := g.ToGray()
	dst := image.NewGray(image.Rect(0, 0, g.Dx()/2, g.Dy()/2))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dmath.FromImageGray(dst)
}

// upsampleNearest blows a level map back up to full resolution.
func upsampleNearest(m Map, w, h int) Map {
	src := image.NewGray(image.Rect(0, 0, m.Dx(), m.Dy()))
	for y := 0; y < m.Dy(); y++ {
		for x := 0; x < m.Dx(); x++ {
			src.Pix[y*src.Stride+x] = uint8(m.Level(x, y))
		}
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := NewMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetLevel(x, y, int(dst.Pix[y*dst.Stride+x]))
		}
	}
	return out
}

// matchSAD computes raw integer disparities for the base view against
// the other view. For the left view the match is searched to the left
// (rightward=false); for the right view, to the right.
func matchSAD(base, other dmath.Grid, maxD, r int, rightward bool) Map {
	w, h := base.Dx(), base.Dy()
	m := NewMap(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bestD, bestCost := 0, 1e18
			for d := 0; d <= maxD; d++ {
				xo := x - d
				if rightward {
					xo = x + d
				}
				if xo < 0 || xo >= w {
					break
				}
				cost := sadWindow(base, other, x, xo, y, r)
				if cost < bestCost {
					bestCost, bestD = cost, d
				}
			}
			m.SetLevel(x, y, bestD)
		}
	}
	return m
}

func sadWindow(a, b dmath.Grid, xa, xb, y, r int) float64 {
	w, h := a.Dx(), a.Dy()
	cost := 0.0
	for j := -r; j <= r; j++ {
		yy := y + j
		if yy < 0 {
			yy = 0
		} else if yy >= h {
			yy = h - 1
		}
		for i := -r; i <= r; i++ {
			ax, bx := xa+i, xb+i
			if ax < 0 {
				ax = 0
			} else if ax >= w {
				ax = w - 1
			}
			if bx < 0 {
				bx = 0
			} else if bx >= w {
				bx = w - 1
			}
			d := a.Get(ax, yy) - b.Get(bx, yy)
			if d < 0 {
				d = -d
			}
			cost += d
		}
	}
	return cost
}

// crossCheck marks pixels whose disparity disagrees with the other
// view's as occluded.
func crossCheck(m, other Map, rightward bool) {
	w, h := m.Dx(), m.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := m.Level(x, y)
			xo := x - d
			if rightward {
				xo = x + d
			}
			if xo < 0 || xo >= w {
				m.SetLevel(x, y, occluded)
				continue
			}
			if diff := other.Level(xo, y) - d; diff < -1 || diff > 1 {
				m.SetLevel(x, y, occluded)
			}
		}
	}
}

// fillOcclusions replaces occluded pixels with the smaller of the two
// nearest valid disparities on the scanline - occlusions belong to the
// background.
func fillOcclusions(m Map) {
	w, h := m.Dx(), m.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m.Level(x, y) != occluded {
				continue
			}
			leftV, rightV := occluded, occluded
			for i := x - 1; i >= 0; i-- {
				if m.Level(i, y) != occluded {
					leftV = m.Level(i, y)
					break
				}
			}
			for i := x + 1; i < w; i++ {
				if m.Level(i, y) != occluded {
					rightV = m.Level(i, y)
					break
				}
			}
			switch {
			case leftV == occluded && rightV == occluded:
				m.SetLevel(x, y, 0)
			case leftV == occluded:
				m.SetLevel(x, y, rightV)
			case rightV == occluded:
				m.SetLevel(x, y, leftV)
			case leftV < rightV:
				m.SetLevel(x, y, leftV)
			default:
				m.SetLevel(x, y, rightV)
			}
		}
	}
}

// quantize bins both maps jointly into `layers` levels, so a level
// index means the same depth in either view.
func quantize(a, b Map, layers int) {
	min, max := 1<<30, -(1 << 30)
	for _, m := range []Map{a, b} {
		for i := range m.lvl {
			if m.lvl[i] < min {
				min = m.lvl[i]
			}
			if m.lvl[i] > max {
				max = m.lvl[i]
			}
		}
	}
	span := max - min + 1
	for _, m := range []Map{a, b} {
		for i := range m.lvl {
			lvl := (m.lvl[i] - min) * layers / span
			if lvl >= layers {
				lvl = layers - 1
			}
			m.lvl[i] = lvl
		}
	}
}
