package deconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkersting/stereo-deblur/pkg/dfft"
	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// blockPattern builds a deterministic blocky [0,1] test image with
// plenty of edges.
func blockPattern(w, h int) dmath.Grid {
	g := dmath.NewGrid(w, h)
	seed := uint32(42)
	for by := 0; by < h; by += 8 {
		for bx := 0; bx < w; bx += 8 {
			seed = seed*1664525 + 1013904223
			v := float64(seed%256) / 255.0
			for y := by; y < by+8 && y < h; y++ {
				for x := bx; x < bx+8 && x < w; x++ {
					g.Set(x, y, v)
				}
			}
		}
	}
	return g
}

func boxKernel(width int) dmath.Grid {
	k := dmath.NewGrid(width, width)
	v := 1.0 / float64(width*width)
	for i := range k.Values() {
		k.Values()[i] = v
	}
	return k
}

func mae(a, b dmath.Grid) float64 {
	sum := 0.0
	for i := range a.Values() {
		d := a.Values()[i] - b.Values()[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(a.Values()))
}

func TestNew(t *testing.T) {
	for _, name := range []string{"fft", "irls"} {
		s, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
	_, err := New("lucy-richardson")
	assert.Error(t, err)
}

func TestDegenerateKernel(t *testing.T) {
	img := blockPattern(16, 16)
	zero := dmath.NewGrid(5, 5)

	for _, name := range []string{"fft", "irls"} {
		s, _ := New(name)
		_, err := s.Deconvolve(img, zero, dmath.Bitmap{})
		assert.ErrorIs(t, err, ErrDegenerateKernel, name)
	}
}

func TestFFTSolverInvertsBlur(t *testing.T) {
	sharp := blockPattern(32, 32)
	k := boxKernel(3)
	blurred := dfft.Convolve(sharp, k)

	s := NewFFTSolver()
	latent, err := s.Deconvolve(blurred, k, dmath.Bitmap{})
	require.NoError(t, err)

	assert.Less(t, mae(latent, sharp), 0.05)
	assert.Less(t, mae(latent, sharp), mae(blurred, sharp))
}

func TestIRLSSolverInvertsBlur(t *testing.T) {
	sharp := blockPattern(32, 32)
	k := boxKernel(3)
	blurred := dfft.Convolve(sharp, k)

	s := NewIRLSSolver()
	latent, err := s.Deconvolve(blurred, k, dmath.Bitmap{})
	require.NoError(t, err)

	assert.Less(t, mae(latent, sharp), mae(blurred, sharp))
}

func TestIRLSSolverWithMask(t *testing.T) {
	sharp := blockPattern(32, 32)
	k := boxKernel(3)
	blurred := dfft.Convolve(sharp, k)

	// Restrict the data term to the left half.
	mask := dmath.NewBitmap(32, 32)
	for y := 0; y < 32; y++ {
		for x := 0; x < 16; x++ {
			mask.Set(x, y, true)
		}
	}

	s := NewIRLSSolver()
	latent, err := s.Deconvolve(blurred, k, mask)
	require.NoError(t, err)

	// Inside the region the estimate should beat the blurred input.
	maskedMAE := func(g dmath.Grid) float64 {
		vals := g.MaskedValues(mask)
		ref := sharp.MaskedValues(mask)
		sum := 0.0
		for i := range vals {
			d := vals[i] - ref[i]
			if d < 0 {
				d = -d
			}
			sum += d
		}
		return sum / float64(len(vals))
	}
	assert.Less(t, maskedMAE(latent), maskedMAE(blurred))
}

func TestSolversAreDeterministic(t *testing.T) {
	sharp := blockPattern(32, 32)
	k := boxKernel(3)
	blurred := dfft.Convolve(sharp, k)

	for _, name := range []string{"fft", "irls"} {
		s, _ := New(name)
		a, err := s.Deconvolve(blurred, k, dmath.Bitmap{})
		require.NoError(t, err)
		b, err := s.Deconvolve(blurred, k, dmath.Bitmap{})
		require.NoError(t, err)
		assert.Equal(t, a.Values(), b.Values(), name)
	}
}
