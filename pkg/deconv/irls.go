package deconv

import (
	"fmt"
	"math"

	"github.com/fkersting/stereo-deblur/pkg/dfft"
	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// IRLSSolver minimizes ||M (k (*) x - b)||^2 + lambda sum |grad x|^p
// by iteratively reweighted least squares: the sparse gradient prior
// is re-linearized into quadratic weights, and each outer iteration
// solves the resulting normal equations with conjugate gradients. M is
// the region mask on the data term (all ones when no mask is given).
type IRLSSolver struct {
	Lambda     float64 // gradient prior weight
	PriorPower float64 // p in |grad x|^p, hyper-Laplacian for p < 1
	OuterIters int
	CGIters    int
	CGTol      float64
}

func NewIRLSSolver() *IRLSSolver {
	return &IRLSSolver{
		Lambda:     2e-3,
		PriorPower: 0.8,
		OuterIters: 3,
		CGIters:    25,
		CGTol:      1e-8,
	}
}

func (s *IRLSSolver) Name() string { return "irls" }

func (s *IRLSSolver) Deconvolve(img, kernel dmath.Grid, mask dmath.Bitmap) (dmath.Grid, error) {
	if kernelEnergy(kernel) < 1e-12 {
		return dmath.Grid{}, ErrDegenerateKernel
	}

	w, h := img.Dx(), img.Dy()

	// Data-term weights from the mask; no mask means whole image.
	m := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.Dx() == 0 || mask.Get(x, y) {
				m[y*w+x] = 1
			}
		}
	}

	// K^T M b, the constant side of the normal equations.
	masked := img.Clone()
	applyWeights(masked, m)
	rhs := dfft.CorrelateAdjoint(masked, kernel)

	x := img.Clone()
	wx := make([]float64, w*h)
	wy := make([]float64, w*h)

	for outer := 0; outer < s.OuterIters; outer++ {
		s.updateWeights(x, wx, wy)

		apply := func(v dmath.Grid) dmath.Grid {
			// K^T M K v
			kv := dfft.Convolve(v, kernel)
			applyWeights(kv, m)
			out := dfft.CorrelateAdjoint(kv, kernel)
			// + lambda (Dx^T Wx Dx + Dy^T Wy Dy) v
			addWeightedLaplacian(out, v, wx, wy, s.Lambda)
			return out
		}

		var err error
		x, err = s.conjGrad(apply, rhs, x)
		if err != nil {
			return dmath.Grid{}, err
		}
	}

	return x, nil
}

func applyWeights(g dmath.Grid, w []float64) {
	vals := g.Values()
	for i := range vals {
		vals[i] *= w[i]
	}
}

// updateWeights re-linearizes the |grad x|^p prior around the current
// estimate: w = (d^2 + eps^2)^((p-2)/2) per forward difference.
func (s *IRLSSolver) updateWeights(x dmath.Grid, wx, wy []float64) {
	const eps = 1e-2
	w, h := x.Dx(), x.Dy()
	exp := (s.PriorPower - 2) / 2
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			dx := x.Get((i+1)%w, j) - x.Get(i, j)
			dy := x.Get(i, (j+1)%h) - x.Get(i, j)
			wx[j*w+i] = math.Pow(dx*dx+eps*eps, exp)
			wy[j*w+i] = math.Pow(dy*dy+eps*eps, exp)
		}
	}
}

// addWeightedLaplacian accumulates lambda * (Dx^T Wx Dx + Dy^T Wy Dy) v
// into out, with circular boundary handling to match the FFT
// convolutions.
func addWeightedLaplacian(out, v dmath.Grid, wx, wy []float64, lambda float64) {
	w, h := v.Dx(), v.Dy()
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			dx := v.Get((i+1)%w, j) - v.Get(i, j)
			dxm := v.Get(i, j) - v.Get((i-1+w)%w, j)
			dy := v.Get(i, (j+1)%h) - v.Get(i, j)
			dym := v.Get(i, j) - v.Get(i, (j-1+h)%h)

			acc := wx[j*w+(i-1+w)%w]*dxm - wx[j*w+i]*dx
			acc += wy[((j-1+h)%h)*w+i]*dym - wy[j*w+i]*dy
			out.Set(i, j, out.Get(i, j)+lambda*acc)
		}
	}
}

// conjGrad solves apply(x) = rhs starting from x0.
func (s *IRLSSolver) conjGrad(apply func(dmath.Grid) dmath.Grid, rhs, x0 dmath.Grid) (dmath.Grid, error) {
	x := x0.Clone()
	r := rhs.Clone()
	ax := apply(x)
	sub(r, ax)
	p := r.Clone()

	rr := dot(r, r)
	if rr < s.CGTol {
		return x, nil
	}

	for it := 0; it < s.CGIters; it++ {
		ap := apply(p)
		pap := dot(p, ap)
		if pap <= 0 {
			// The operator is positive semi-definite by construction;
			// hitting this means the numerics have collapsed.
			return dmath.Grid{}, fmt.Errorf("deconv: CG breakdown at iter %d (pAp=%g)", it, pap)
		}
		alpha := rr / pap
		axpy(x, alpha, p)
		axpy(r, -alpha, ap)

		rrNew := dot(r, r)
		if rrNew < s.CGTol {
			break
		}
		beta := rrNew / rr
		scaleAdd(p, beta, r)
		rr = rrNew
	}
	return x, nil
}

func dot(a, b dmath.Grid) float64 {
	av, bv := a.Values(), b.Values()
	sum := 0.0
	for i := range av {
		sum += av[i] * bv[i]
	}
	return sum
}

func sub(a, b dmath.Grid) {
	av, bv := a.Values(), b.Values()
	for i := range av {
		av[i] -= bv[i]
	}
}

// a += alpha * b
func axpy(a dmath.Grid, alpha float64, b dmath.Grid) {
	av, bv := a.Values(), b.Values()
	for i := range av {
		av[i] += alpha * bv[i]
	}
}

// p = r + beta * p
func scaleAdd(p dmath.Grid, beta float64, r dmath.Grid) {
	pv, rv := p.Values(), r.Values()
	for i := range pv {
		pv[i] = rv[i] + beta*pv[i]
	}
}
