package deconv

import (
	"math/cmplx"

	"github.com/fkersting/stereo-deblur/pkg/dfft"
	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// FFTSolver inverts the blur directly in the frequency domain with a
// Wiener-style regularizer. Fast, but rings near strong edges; good
// enough for candidate scoring.
type FFTSolver struct {
	// Eps damps spectral bins where the kernel has no power. Larger
	// values suppress ringing at the cost of residual blur.
	Eps float64
}

func NewFFTSolver() *FFTSolver {
	return &FFTSolver{Eps: 1e-3}
}

func (s *FFTSolver) Name() string { return "fft" }

// Deconvolve solves min ||k (*) x - b||^2 + eps ||x||^2 per spectral
// bin: X = conj(K) B / (|K|^2 + eps). The mask is ignored.
func (s *FFTSolver) Deconvolve(img, kernel dmath.Grid, _ dmath.Bitmap) (dmath.Grid, error) {
	if kernelEnergy(kernel) < 1e-12 {
		return dmath.Grid{}, ErrDegenerateKernel
	}

	bHat := dfft.FFT2(img)
	kHat := dfft.KernelSpectrum(kernel, img.Dx(), img.Dy())

	for y := 0; y < bHat.Dy(); y++ {
		for x := 0; x < bHat.Dx(); x++ {
			k := kHat.At(x, y)
			b := bHat.At(x, y)
			denom := real(k)*real(k) + imag(k)*imag(k) + s.Eps
			bHat.SetAt(x, y, cmplx.Conj(k)*b/complex(denom, 0))
		}
	}

	return dfft.IFFT2Real(bHat), nil
}
