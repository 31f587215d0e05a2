package deblur

import (
	"log"
	"math"
	"math/cmplx"

	"github.com/fkersting/stereo-deblur/pkg/dfft"
	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// propagateChildren is the propagation-pass visit: compute and store
// both children's kernels and entropies. Everything is written before
// the walker pushes the children, so no worker ever pops a node whose
// parent kernel isn't ready.
func (dd *DepthDeblur) propagateChildren(id int) error {
	parent := dd.tree.Nodes[id].PSF

	for _, cid := range dd.tree.Nodes[id].Children {
		masks := dd.tree.Masks(cid)

		var psf dmath.Grid
		// A depth value can appear in only one view's map; joint
		// estimation needs both regions, so such a child just inherits
		// the parent kernel. Documented fallback, not an error.
		if masks[0].Empty() || masks[1].Empty() {
			psf = parent.Clone()
		} else {
			var err error
			psf, err = dd.estimateChildPSF(parent, masks)
			if err != nil {
				return err
			}
		}

		dd.tree.Nodes[cid].PSF = psf
		dd.tree.Nodes[cid].Entropy = kernelEntropy(psf)
	}
	return nil
}

// estimateChildPSF produces a child's kernel: deconvolve both views
// with the parent kernel, extract salient-edge gradient maps from the
// latents, then solve the joint frequency-domain objective.
func (dd *DepthDeblur) estimateChildPSF(parentPSF dmath.Grid, masks [2]dmath.Bitmap) (dmath.Grid, error) {
	var salient [2][2]dmath.Grid
	for v := 0; v < 2; v++ {
		latent, err := dd.solver.Deconvolve(dd.views[v].flt, parentPSF, masks[v])
		if err != nil {
			return dmath.Grid{}, err
		}
		latent.Scale(255)
		salient[v] = salientEdges(latent, dd.cfg.PSFWidth, masks[v])
	}
	return dd.jointPSF(masks, salient), nil
}

// jointPSF solves, per spectral bin,
//
//	k = sum_v(conj(Sx_v) Bx_v + conj(Sy_v) By_v) /
//	    (sum_v(conj(Sx_v) Sx_v + conj(Sy_v) Sy_v) + gamma)
//
// where S are the salient-edge gradients of the latents and B the raw
// gradients of the blurred views, both restricted to the node's
// region. The denominator's gamma term is the regularizer scaled by
// the transform of a unit impulse, which is 1 in every bin, so it
// lands uniformly. The inverse transform is corner-centered; the
// quadrants are swapped to re-center before cropping the window.
func (dd *DepthDeblur) jointPSF(masks [2]dmath.Bitmap, salient [2][2]dmath.Grid) dmath.Grid {
	if masks[0].Empty() && masks[1].Empty() {
		// Callers are supposed to skip this case and inherit the parent
		// kernel; a zero kernel is all we can produce here.
		log.Printf("warning: joint estimation on a fully empty region, returning zero kernel")
		return dmath.NewGrid(dd.cfg.PSFWidth, dd.cfg.PSFWidth)
	}

	w, h := dd.views[0].flt.Dx(), dd.views[0].flt.Dy()

	var sx, sy, bx, by [2]*dfft.Spectrum
	for v := 0; v < 2; v++ {
		sx[v] = dfft.FFT2(salient[v][0])
		sy[v] = dfft.FFT2(salient[v][1])
		bx[v] = dfft.FFT2(dd.grads.x[v].ApplyMask(masks[v]))
		by[v] = dfft.FFT2(dd.grads.y[v].ApplyMask(masks[v]))
	}

	kHat := dfft.NewSpectrum(w, h)
	gamma := complex(dd.cfg.RegWeight, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var num, den complex128
			for v := 0; v < 2; v++ {
				num += cmplx.Conj(sx[v].At(x, y))*bx[v].At(x, y) +
					cmplx.Conj(sy[v].At(x, y))*by[v].At(x, y)
				den += cmplx.Conj(sx[v].At(x, y))*sx[v].At(x, y) +
					cmplx.Conj(sy[v].At(x, y))*sy[v].At(x, y)
			}
			kHat.SetAt(x, y, num/(den+gamma))
		}
	}

	kernel := dfft.IFFT2Real(kHat)

	// Negative values are numerical noise, not blur mass.
	kernel.Clamp(0, math.MaxFloat64)

	// Re-center: the kernel comes out anchored at the corner, so shift
	// it by the half window (circularly) before cropping.
	half := (dd.cfg.PSFWidth - 1) / 2
	psf := dmath.NewGrid(dd.cfg.PSFWidth, dd.cfg.PSFWidth)
	for j := 0; j < dd.cfg.PSFWidth; j++ {
		for i := 0; i < dd.cfg.PSFWidth; i++ {
			psf.Set(i, j, kernel.Get((i-half+w)%w, (j-half+h)%h))
		}
	}

	normalizeKernel(psf)
	return psf
}

// salientEdges extracts the gradient maps of the strong, reliable
// edges of a display-range latent image. The threshold backs off until
// the kept edge mass can actually support a kernel of the configured
// width.
func salientEdges(latent dmath.Grid, psfWidth int, mask dmath.Bitmap) [2]dmath.Grid {
	gx, gy := latent.Sobel()
	mag := dmath.GradientMagnitude(gx, gy)

	_, max := mag.MinMax()
	needed := 2 * psfWidth * psfWidth
	tau := 0.5 * max
	for tau > 1e-6 {
		kept := 0
		for y := 0; y < mag.Dy() && kept < needed; y++ {
			for x := 0; x < mag.Dx(); x++ {
				if mask.Get(x, y) && mag.Get(x, y) >= tau {
					kept++
				}
			}
		}
		if kept >= needed {
			break
		}
		tau /= 2
	}

	outX, outY := gx.NewFromThis(), gy.NewFromThis()
	for y := 0; y < mag.Dy(); y++ {
		for x := 0; x < mag.Dx(); x++ {
			if mask.Get(x, y) && mag.Get(x, y) >= tau {
				outX.Set(x, y, gx.Get(x, y))
				outY.Set(x, y, gy.Get(x, y))
			}
		}
	}
	return [2]dmath.Grid{outX.NormalizeSigned(), outY.NormalizeSigned()}
}

// kernelEntropy is the Shannon-style confidence metric over the
// kernel's positive mass; a peaked, confident kernel scores low.
func kernelEntropy(k dmath.Grid) float64 {
	e := 0.0
	for _, v := range k.Values() {
		if v > 0 {
			e += v * math.Log(v)
		}
	}
	return -e
}

// normalizeKernel rescales a kernel to unit energy in place. A kernel
// with no mass is left as-is (degenerate; logged by the caller's
// context).
func normalizeKernel(k dmath.Grid) {
	sum := k.Sum()
	if sum < 1e-12 {
		log.Printf("warning: kernel with no positive mass, cannot normalize")
		return
	}
	k.Scale(1.0 / sum)
}
