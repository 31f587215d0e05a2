// Package dfft provides the 2-D Fourier transforms the kernel
// estimator and the deconvolution solvers are built on. It runs
// gonum's 1-D complex FFT over rows then columns, so there is no C
// toolchain involved.
package dfft

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// A Spectrum holds the complex Fourier coefficients of a w x h grid.
type Spectrum struct {
	w, h int
	c    []complex128
}

func NewSpectrum(w, h int) *Spectrum {
	return &Spectrum{w: w, h: h, c: make([]complex128, w*h)}
}

func (s *Spectrum) Dx() int                       { return s.w }
func (s *Spectrum) Dy() int                       { return s.h }
func (s *Spectrum) At(x, y int) complex128        { return s.c[y*s.w+x] }
func (s *Spectrum) SetAt(x, y int, v complex128)  { s.c[y*s.w+x] = v }

// FFT2 computes the unnormalized 2-D DFT of a real grid.
func FFT2(g dmath.Grid) *Spectrum {
	w, h := g.Dx(), g.Dy()
	s := NewSpectrum(w, h)

	rowFFT := fourier.NewCmplxFFT(w)
	row := make([]complex128, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			row[x] = complex(g.Get(x, y), 0)
		}
		rowFFT.Coefficients(s.c[y*w:(y+1)*w], row)
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	out := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = s.c[y*w+x]
		}
		colFFT.Coefficients(out, col)
		for y := 0; y < h; y++ {
			s.c[y*w+x] = out[y]
		}
	}
	return s
}

// IFFT2Real inverts a spectrum back to a real grid, folding in the
// 1/(w*h) normalization and discarding the (numerically tiny)
// imaginary parts. The input spectrum is left untouched.
func IFFT2Real(s *Spectrum) dmath.Grid {
	w, h := s.w, s.h
	tmp := make([]complex128, w*h)

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	out := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = s.c[y*w+x]
		}
		colFFT.Sequence(out, col)
		for y := 0; y < h; y++ {
			tmp[y*w+x] = out[y]
		}
	}

	g := dmath.NewGrid(w, h)
	rowFFT := fourier.NewCmplxFFT(w)
	row := make([]complex128, w)
	norm := 1.0 / float64(w*h)
	for y := 0; y < h; y++ {
		rowFFT.Sequence(row, tmp[y*w:(y+1)*w])
		for x := 0; x < w; x++ {
			g.Set(x, y, real(row[x])*norm)
		}
	}
	return g
}

// KernelSpectrum embeds an odd square kernel into a w x h plane with
// its center wrapped onto the origin, and transforms it. Multiplying
// an image spectrum by this is circular convolution with the kernel.
func KernelSpectrum(k dmath.Grid, w, h int) *Spectrum {
	pad := dmath.NewGrid(w, h)
	half := k.Dx() / 2
	for j := 0; j < k.Dy(); j++ {
		for i := 0; i < k.Dx(); i++ {
			x := ((i - half) + w) % w
			y := ((j - half) + h) % h
			pad.Set(x, y, k.Get(i, j))
		}
	}
	return FFT2(pad)
}

// Convolve circularly convolves a grid with an odd square kernel via
// the frequency domain.
func Convolve(g, k dmath.Grid) dmath.Grid {
	gHat := FFT2(g)
	kHat := KernelSpectrum(k, g.Dx(), g.Dy())
	for i := range gHat.c {
		gHat.c[i] *= kHat.c[i]
	}
	return IFFT2Real(gHat)
}

// CorrelateAdjoint applies the adjoint of Convolve (correlation with
// the kernel), which the iterative solver needs for its normal
// equations.
func CorrelateAdjoint(g, k dmath.Grid) dmath.Grid {
	gHat := FFT2(g)
	kHat := KernelSpectrum(k, g.Dx(), g.Dy())
	for i := range gHat.c {
		gHat.c[i] *= cmplx.Conj(kHat.c[i])
	}
	return IFFT2Real(gHat)
}
