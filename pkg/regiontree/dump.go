package regiontree

import (
	"image"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
)

// DumpLayers saves a false-color render of the leaf partition for one
// view, each depth layer in its own hue. Debug aid only.
func (t *Tree) DumpLayers(view int, filename string) error {
	w, h := t.masks[view][0].Dx(), t.masks[view][0].Dy()
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for l := 0; l < t.Layers; l++ {
		col := colorful.Hsv(float64(l)*300.0/float64(t.Layers), 0.9, 0.9)
		r, g, b := col.RGB255()
		mask := t.masks[view][l]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if mask.Get(x, y) {
					i := img.PixOffset(x, y)
					img.Pix[i+0] = r
					img.Pix[i+1] = g
					img.Pix[i+2] = b
					img.Pix[i+3] = 0xFF
				}
			}
		}
	}

	dc := gg.NewContextForImage(img)
	return dc.SavePNG(filename)
}
