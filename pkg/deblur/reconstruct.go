package deblur

import (
	"image"
	"image/color"
	"sync"

	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

// ReconstructImage deconvolves every depth layer of a view with its
// leaf's final kernel and composites the masked results into one sharp
// image.
func (dd *DepthDeblur) ReconstructImage(v View, threads int, useColor bool) (image.Image, error) {
	ids := make([]int, dd.cfg.Layers)
	for i := range ids {
		ids[i] = i
	}
	return dd.reconstruct(ids, v, threads, useColor)
}

// ReconstructTopLevel is the coarse variant: one deconvolution per
// top-level region with its externally supplied kernel.
func (dd *DepthDeblur) ReconstructTopLevel(v View, threads int, useColor bool) (image.Image, error) {
	return dd.reconstruct(dd.tree.TopLevelIDs, v, threads, useColor)
}

// reconstruct distributes region ids across a worker pool via a shared
// stack. Each worker deconvolves the whole image (cropping to the
// region would introduce boundary artifacts) with the region's kernel
// and writes only the masked pixels into the shared destination. The
// masks partition the image, so no two workers ever touch the same
// pixel and the destination needs no lock.
func (dd *DepthDeblur) reconstruct(ids []int, v View, threads int, useColor bool) (image.Image, error) {
	if dd.tree == nil {
		return nil, &ConfigurationError{Reason: "region tree not built yet"}
	}
	if threads < 1 {
		threads = 1
	}

	st := &regionStack{items: append([]int(nil), ids...)}
	solver := reconstructionSolver()

	bounds := dd.views[v].img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var dst image.Image
	var gray *image.Gray
	var rgba *image.RGBA
	if useColor {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		dst = rgba
	} else {
		gray = image.NewGray(image.Rect(0, 0, w, h))
		dst = gray
	}

	var channels [3]dmath.Grid
	if useColor {
		channels = dd.views[v].channelGrids()
	}

	var errMu sync.Mutex
	var firstErr error
	setErr := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	worker := func() {
		for {
			id, ok := st.pop()
			if !ok {
				return
			}
			mask := dd.tree.Mask(id, int(v))
			kernel := dd.tree.Nodes[id].PSF

			if useColor {
				var latents [3]dmath.Grid
				for c := 0; c < 3; c++ {
					latent, err := solver.Deconvolve(channels[c], kernel, mask)
					if err != nil {
						setErr(err)
						return
					}
					latents[c] = latent.Clamp(0, 1).Scale(255)
				}
				writeMaskedRGBA(rgba, latents, mask)
				continue
			}

			// The refinement pass may have cached this region's latent,
			// but only for the reference view.
			var latent dmath.Grid
			if v == Reference {
				latent = dd.cachedLatent(id)
			}
			if latent.IsZeroSize() {
				var err error
				latent, err = solver.Deconvolve(dd.views[v].flt, kernel, mask)
				if err != nil {
					setErr(err)
					return
				}
				latent.Clamp(0, 1).Scale(255)
			}
			writeMaskedGray(gray, latent, mask)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < threads-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker()
		}()
	}
	worker()
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return dst, nil
}

func (dd *DepthDeblur) cachedLatent(id int) dmath.Grid {
	if dd.regionDeconv == nil || id >= len(dd.regionDeconv) {
		return dmath.Grid{}
	}
	return dd.regionDeconv[id]
}

func writeMaskedGray(dst *image.Gray, latent dmath.Grid, mask dmath.Bitmap) {
	for y := 0; y < latent.Dy(); y++ {
		for x := 0; x < latent.Dx(); x++ {
			if mask.Get(x, y) {
				dst.SetGray(x, y, color.Gray{clamp8(latent.Get(x, y))})
			}
		}
	}
}

func writeMaskedRGBA(dst *image.RGBA, latents [3]dmath.Grid, mask dmath.Bitmap) {
	for y := 0; y < latents[0].Dy(); y++ {
		for x := 0; x < latents[0].Dx(); x++ {
			if mask.Get(x, y) {
				dst.SetRGBA(x, y, color.RGBA{
					clamp8(latents[0].Get(x, y)),
					clamp8(latents[1].Get(x, y)),
					clamp8(latents[2].Get(x, y)),
					0xFF,
				})
			}
		}
	}
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
