package dfft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// lcg gives deterministic pseudo-random grid content.
func lcg(seed *uint32) float64 {
	*seed = *seed*1664525 + 1013904223
	return float64(*seed%1000) / 1000.0
}

func randomGrid(w, h int, seed uint32) dmath.Grid {
	g := dmath.NewGrid(w, h)
	for i := range g.Values() {
		g.Values()[i] = lcg(&seed)
	}
	return g
}

func TestRoundTrip(t *testing.T) {
	g := randomGrid(16, 12, 7)
	back := IFFT2Real(FFT2(g))
	for i, v := range g.Values() {
		assert.InDelta(t, v, back.Values()[i], 1e-9)
	}
}

func TestConvolveWithImpulse(t *testing.T) {
	g := randomGrid(8, 8, 3)
	k := dmath.NewGrid(3, 3)
	k.Set(1, 1, 1) // centered unit impulse

	out := Convolve(g, k)
	for i, v := range g.Values() {
		assert.InDelta(t, v, out.Values()[i], 1e-9)
	}
}

func TestConvolutionTheorem(t *testing.T) {
	w, h := 8, 6
	g := randomGrid(w, h, 11)
	k := dmath.NewGrid(3, 3)
	seed := uint32(5)
	for i := range k.Values() {
		k.Values()[i] = lcg(&seed)
	}

	got := Convolve(g, k)

	// Direct circular convolution with the kernel centered at (1,1).
	want := dmath.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for j := 0; j < 3; j++ {
				for i := 0; i < 3; i++ {
					sx := ((x - (i - 1)) + w) % w
					sy := ((y - (j - 1)) + h) % h
					acc += k.Get(i, j) * g.Get(sx, sy)
				}
			}
			want.Set(x, y, acc)
		}
	}

	for i := range want.Values() {
		assert.InDelta(t, want.Values()[i], got.Values()[i], 1e-9)
	}
}

func TestCorrelateAdjointIsAdjoint(t *testing.T) {
	// <K a, b> must equal <a, K^T b> for the CG normal equations to be
	// symmetric.
	a := randomGrid(8, 8, 21)
	b := randomGrid(8, 8, 22)
	k := dmath.NewGrid(3, 3)
	seed := uint32(9)
	for i := range k.Values() {
		k.Values()[i] = lcg(&seed)
	}

	ka := Convolve(a, k)
	ktb := CorrelateAdjoint(b, k)

	dot := func(x, y dmath.Grid) float64 {
		s := 0.0
		for i := range x.Values() {
			s += x.Values()[i] * y.Values()[i]
		}
		return s
	}

	require.InDelta(t, dot(ka, b), dot(a, ktb), 1e-9)
}
