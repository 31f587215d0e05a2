// Package deconv provides the non-blind deconvolution solvers: given a
// blurred image and a kernel, recover a latent sharp estimate. The
// fast frequency-domain solver trades quality (ringing) for speed; the
// IRLS solver is much slower but respects a region mask and a sparse
// gradient prior.
package deconv

import (
	"errors"
	"fmt"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// ErrDegenerateKernel signals a kernel with no energy. There is no
// alternative numerical path, so callers treat it as fatal.
var ErrDegenerateKernel = errors.New("deconv: degenerate kernel (zero energy)")

// A Solver produces a latent sharp estimate from a blurred image and a
// blur kernel. The mask restricts the data term to a region; solvers
// that cannot use a mask ignore it. Implementations must be
// deterministic - the pipeline relies on bit-identical results across
// thread counts.
type Solver interface {
	Deconvolve(img, kernel dmath.Grid, mask dmath.Bitmap) (dmath.Grid, error)
	Name() string
}

// New builds a solver by configured name.
func New(name string) (Solver, error) {
	switch name {
	case "fft":
		return NewFFTSolver(), nil
	case "irls":
		return NewIRLSSolver(), nil
	default:
		return nil, fmt.Errorf("deconv: no solver named %q", name)
	}
}

func kernelEnergy(k dmath.Grid) float64 {
	sum := 0.0
	for _, v := range k.Values() {
		if v > 0 {
			sum += v
		}
	}
	return sum
}
