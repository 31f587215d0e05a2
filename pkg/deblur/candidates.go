package deblur

import (
	"gonum.org/v1/gonum/stat"

	"github.com/fkersting/stereo-deblur/pkg/deconv"
	"github.com/fkersting/stereo-deblur/pkg/dmath"
	"github.com/fkersting/stereo-deblur/pkg/shock"
)

// refineChildren is the refinement-pass visit: for each child, pick
// the best of {own, parent, sibling-if-reliable} and overwrite the
// child's kernel with the winner. Both children's candidate sets are
// assembled before either winner is stored, so a child never scores
// against its sibling's already-refined kernel.
func (dd *DepthDeblur) refineChildren(id int) error {
	c1 := dd.tree.Nodes[id].Children[0]
	c2 := dd.tree.Nodes[id].Children[1]

	cands1 := dd.candidatePSFs(c1, c2)
	cands2 := dd.candidatePSFs(c2, c1)

	w1, lat1, err := dd.selectPSF(cands1, c1)
	if err != nil {
		return err
	}
	w2, lat2, err := dd.selectPSF(cands2, c2)
	if err != nil {
		return err
	}

	dd.tree.Nodes[c1].PSF = cands1[w1]
	dd.tree.Nodes[c2].PSF = cands2[w2]

	// Leaf latents under the slow solver are worth keeping around; the
	// reconstruction pass reuses them instead of deconvolving again.
	if dd.solver.Name() == "irls" {
		if dd.tree.IsLeaf(c1) {
			dd.regionDeconv[c1] = lat1
		}
		if dd.tree.IsLeaf(c2) {
			dd.regionDeconv[c2] = lat2
		}
	}
	return nil
}

// candidatePSFs builds a node's candidate kernels in the fixed scoring
// order: its own propagation estimate, its parent's, and - only when
// reliable - its sibling's.
func (dd *DepthDeblur) candidatePSFs(id, sid int) []dmath.Grid {
	cands := []dmath.Grid{
		dd.tree.Nodes[id].PSF,
		dd.tree.Nodes[dd.tree.Nodes[id].Parent].PSF,
	}
	if dd.isReliable(sid) {
		cands = append(cands, dd.tree.Nodes[sid].PSF)
	}
	return cands
}

// isReliable compares a node's kernel entropy against the mean of its
// tree-level cohort: markedly lower entropy than the peers means a
// confident kernel worth borrowing.
func (dd *DepthDeblur) isReliable(id int) bool {
	peers := dd.tree.LevelPeers(id)
	entropies := make([]float64, len(peers))
	for i, pid := range peers {
		entropies[i] = dd.tree.Nodes[pid].Entropy
	}
	mean := stat.Mean(entropies, nil)
	return dd.tree.Nodes[id].Entropy-mean < dd.cfg.ReliabilityFactor*mean
}

// selectPSF scores every candidate and returns the index of the
// winner plus its latent image. Strictly smallest energy wins, so ties
// keep the earliest candidate.
func (dd *DepthDeblur) selectPSF(cands []dmath.Grid, id int) (int, dmath.Grid, error) {
	mask := dd.tree.Mask(id, int(Reference))

	minEnergy := 2.0 // energy = 1 - correlation, so 2 tops the range
	winner := 0
	var winnerLatent dmath.Grid

	for i, cand := range cands {
		energy, latent, err := dd.candidateEnergy(cand, mask)
		if err != nil {
			return 0, dmath.Grid{}, err
		}
		if energy < minEnergy {
			minEnergy = energy
			winner = i
			winnerLatent = latent
		}
	}
	return winner, winnerLatent, nil
}

// candidateEnergy deconvolves the reference view with the candidate
// kernel and measures how much a shock filter still changes the
// result. A good kernel leaves little for the shock filter to do, so
// the gradient correlation is high and the energy 1-corr is low.
// The whole image is deconvolved and smoothed (cropping to the region
// would manufacture edge artifacts); only the correlation is
// restricted to the region mask.
func (dd *DepthDeblur) candidateEnergy(cand dmath.Grid, mask dmath.Bitmap) (float64, dmath.Grid, error) {
	latent, err := dd.solver.Deconvolve(dd.views[Reference].flt, cand, mask)
	if err != nil {
		return 0, dmath.Grid{}, err
	}
	latent.Clamp(0, 1).Scale(255)

	smoothed := latent.Gaussian5()
	shocked := shock.Filter(smoothed)

	corr := gradientCorrelation(latent, shocked, mask)
	return 1 - corr, latent, nil
}

// gradientCorrelation is the normalized cross-correlation of the two
// images' gradient-magnitude maps under the mask.
func gradientCorrelation(a, b dmath.Grid, mask dmath.Bitmap) float64 {
	magA := gradientMagNormed(a)
	magB := gradientMagNormed(b)
	return dmath.MaskedCorrelation(magA, magB, mask)
}

func gradientMagNormed(g dmath.Grid) dmath.Grid {
	gx, gy := g.Sobel()
	mag := dmath.GradientMagnitude(gx, gy)
	if _, max := mag.MinMax(); max > 1e-12 {
		mag.Scale(1.0 / max)
	}
	return mag
}

// reconstructionSolver is the solver for the final pass; always the
// slow one, whatever was used for candidate scoring.
func reconstructionSolver() deconv.Solver { return deconv.NewIRLSSolver() }
