// Package deblur estimates, per depth layer of a stereo pair, a
// spatially-varying motion-blur kernel, and reconstructs a sharp
// image from them. Kernels propagate top-down through a region tree
// (coarse depth regions refined into per-layer leaves): each node's
// kernel is estimated jointly over both views with its parent's kernel
// as the starting latent, then refined by picking the best of
// {own, parent, sibling} candidates.
package deblur

import (
	"fmt"
	"image"
	"log"

	"github.com/fkersting/stereo-deblur/pkg/deconv"
	"github.com/fkersting/stereo-deblur/pkg/disparity"
	"github.com/fkersting/stereo-deblur/pkg/dmath"
	"github.com/fkersting/stereo-deblur/pkg/regiontree"
)

type DepthDeblur struct {
	cfg    Config
	views  [2]viewData
	grads  gradientCache
	solver deconv.Solver

	dmaps [2]disparity.Map
	tree  *regiontree.Tree

	// Latent images cached during refinement (leaf winners under the
	// IRLS solver) and reused by reconstruction. Indexed by node id;
	// each slot is written by exactly one worker, so no lock.
	regionDeconv []dmath.Grid

	stats *walkStats
}

// New validates the configuration and prepares both views. The images
// must be the same size.
func New(left, right image.Image, cfg Config) (*DepthDeblur, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if left.Bounds().Size() != right.Bounds().Size() {
		return nil, &ConfigurationError{Reason: "stereo views must be the same size"}
	}

	solver, err := cfg.Solver()
	if err != nil {
		return nil, err
	}

	return &DepthDeblur{
		cfg:    cfg,
		views:  [2]viewData{newViewData(left), newViewData(right)},
		solver: solver,
		stats:  newWalkStats(),
	}, nil
}

func (dd *DepthDeblur) Config() Config { return dd.cfg }

// Tree exposes the region tree once built; tests and debug dumps use
// it, the pipeline itself goes through the methods below.
func (dd *DepthDeblur) Tree() *regiontree.Tree { return dd.tree }

// EstimateDisparity computes both quantized depth-layer maps.
func (dd *DepthDeblur) EstimateDisparity() error {
	l, r, err := disparity.Estimate(dd.views[0].gray, dd.views[1].gray, disparity.Config{
		Algo:         dd.cfg.DisparityAlgo,
		MaxDisparity: dd.cfg.MaxDisparity,
		Layers:       dd.cfg.Layers,
	})
	if err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	dd.dmaps[0], dd.dmaps[1] = l, r
	return nil
}

// BuildRegionTree constructs the region hierarchy from the depth maps.
func (dd *DepthDeblur) BuildRegionTree() error {
	if dd.dmaps[0].Dx() == 0 {
		return &ConfigurationError{Reason: "disparity maps not estimated yet"}
	}
	tree, err := regiontree.Build(dd.dmaps[0], dd.dmaps[1], dd.cfg.Layers, dd.cfg.MaxTopLevelNodes)
	if err != nil {
		return err
	}
	dd.tree = tree
	if dd.cfg.Verbosity > 0 {
		log.Printf("region tree: %d nodes, %d top-level, %d layers",
			tree.Size(), len(tree.TopLevelIDs), tree.Layers)
	}
	return nil
}

// SetRegionTree injects an externally built tree (tests, alternative
// tree builders).
func (dd *DepthDeblur) SetRegionTree(t *regiontree.Tree) { dd.tree = t }

// LoadTopLevelKernels seeds every root with an externally supplied
// kernel image, normalized to unit energy. A missing, empty or
// wrong-sized kernel is a ResourceError: every kernel in the tree must
// live in the same psfWidth window, or the candidate sets would mix
// kernel geometries.
func (dd *DepthDeblur) LoadTopLevelKernels(load func(i int) (image.Image, error)) error {
	if dd.tree == nil {
		return &ConfigurationError{Reason: "region tree not built yet"}
	}
	for i, id := range dd.tree.TopLevelIDs {
		img, err := load(i)
		if err != nil {
			return &ResourceError{Reason: fmt.Sprintf("top-level kernel %d", i), Err: err}
		}
		k := dmath.FromImageGray(img)
		if err := dd.checkKernelSize(i, k); err != nil {
			return err
		}
		sum := k.Sum()
		if sum < 1e-12 {
			return &ResourceError{Reason: fmt.Sprintf("top-level kernel %d has no energy", i)}
		}
		k.Scale(1.0 / sum)
		dd.tree.Nodes[id].PSF = k
		dd.tree.Nodes[id].Entropy = kernelEntropy(k)
	}
	return nil
}

// SeedTopLevelKernels seeds the roots from kernel grids directly.
func (dd *DepthDeblur) SeedTopLevelKernels(kernels []dmath.Grid) error {
	if dd.tree == nil {
		return &ConfigurationError{Reason: "region tree not built yet"}
	}
	if len(kernels) != len(dd.tree.TopLevelIDs) {
		return &ResourceError{Reason: fmt.Sprintf("want %d top-level kernels, got %d",
			len(dd.tree.TopLevelIDs), len(kernels))}
	}
	for i, id := range dd.tree.TopLevelIDs {
		k := kernels[i].Clone()
		if err := dd.checkKernelSize(i, k); err != nil {
			return err
		}
		sum := k.Sum()
		if sum < 1e-12 {
			return &ResourceError{Reason: fmt.Sprintf("top-level kernel %d has no energy", i)}
		}
		k.Scale(1.0 / sum)
		dd.tree.Nodes[id].PSF = k
		dd.tree.Nodes[id].Entropy = kernelEntropy(k)
	}
	return nil
}

func (dd *DepthDeblur) checkKernelSize(i int, k dmath.Grid) error {
	if k.Dx() != dd.cfg.PSFWidth || k.Dy() != dd.cfg.PSFWidth {
		return &ResourceError{Reason: fmt.Sprintf("top-level kernel %d is %dx%d, want %dx%d",
			i, k.Dx(), k.Dy(), dd.cfg.PSFWidth, dd.cfg.PSFWidth)}
	}
	return nil
}

// EstimateMidLevelKernels runs the two top-down passes: propagation
// (joint estimation of every child kernel) and refinement (candidate
// selection). Kernel estimation errors are fatal; there is no
// alternative numerical path to retry with.
func (dd *DepthDeblur) EstimateMidLevelKernels(threads int) error {
	if dd.tree == nil {
		return &ConfigurationError{Reason: "region tree not built yet"}
	}
	for _, id := range dd.tree.TopLevelIDs {
		if dd.tree.Nodes[id].PSF.IsZeroSize() {
			return &ResourceError{Reason: fmt.Sprintf("top-level node %d has no kernel", id)}
		}
	}
	if threads < 1 {
		threads = 1
	}

	// The blurred-view gradients only need computing once per run.
	dd.grads = newGradientCache(dd.views)
	dd.regionDeconv = make([]dmath.Grid, dd.tree.Size())

	if err := dd.walkTree(threads, dd.propagateChildren); err != nil {
		return err
	}
	dd.stats.logSummary("propagation")

	if err := dd.walkTree(threads, dd.refineChildren); err != nil {
		return err
	}
	dd.stats.logSummary("refinement")

	return nil
}
