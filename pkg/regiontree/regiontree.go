// Package regiontree builds the binary region hierarchy over depth
// layers. The leaves are the quantized disparity layers themselves
// (ids 0..layers-1); parents merge adjacent layers pairwise until at
// most maxTopLevelNodes roots remain, so top-level nodes carry the
// highest ids. Each node owns a binary mask per view; sibling masks
// never overlap and the leaf masks jointly cover the image. The PSF
// and entropy slots are written by the estimation passes.
package regiontree

import (
	"fmt"

	"github.com/fkersting/stereo-deblur/pkg/disparity"
	"github.com/fkersting/stereo-deblur/pkg/dmath"
)

type Node struct {
	ID       int
	Parent   int    // -1 for a root
	Children [2]int // (-1,-1) for a leaf
	Level    int    // agglomeration generation; leaves are 0
	Layer    int    // depth-layer index for leaves, -1 otherwise

	PSF     dmath.Grid // odd square, non-negative, sums to 1 once assigned
	Entropy float64    // defined only after PSF is assigned
}

type Tree struct {
	Nodes       []Node
	TopLevelIDs []int
	Layers      int

	levels [][]int             // node ids per generation
	masks  [2][]dmath.Bitmap   // per view, indexed by node id
}

// Build constructs the tree from the two quantized depth maps.
func Build(left, right disparity.Map, layers, maxTopLevelNodes int) (*Tree, error) {
	if layers < 2 || layers%2 != 0 {
		return nil, fmt.Errorf("regiontree: layer count must be even and >= 2, got %d", layers)
	}
	if maxTopLevelNodes < 1 {
		return nil, fmt.Errorf("regiontree: need at least one top-level node")
	}
	if left.Dx() != right.Dx() || left.Dy() != right.Dy() {
		return nil, fmt.Errorf("regiontree: depth map sizes differ")
	}

	t := &Tree{Layers: layers}
	w, h := left.Dx(), left.Dy()

	// Leaves: one node per depth layer, mask per view straight from the
	// quantized maps.
	for l := 0; l < layers; l++ {
		t.Nodes = append(t.Nodes, Node{
			ID: l, Parent: -1, Children: [2]int{-1, -1}, Level: 0, Layer: l,
		})
		for v, m := range []disparity.Map{left, right} {
			mask := dmath.NewBitmap(w, h)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					if m.Level(x, y) == l {
						mask.Set(x, y, true)
					}
				}
			}
			t.masks[v] = append(t.masks[v], mask)
		}
	}

	// Agglomerate adjacent depth layers pairwise until few enough roots
	// remain. An odd leftover node is promoted to the next round as-is.
	current := make([]int, layers)
	for i := range current {
		current[i] = i
	}
	t.levels = append(t.levels, append([]int(nil), current...))

	gen := 0
	for len(current) > maxTopLevelNodes {
		gen++
		next := []int{}
		genIDs := []int{}
		for i := 0; i+1 < len(current); i += 2 {
			a, b := current[i], current[i+1]
			id := len(t.Nodes)
			t.Nodes = append(t.Nodes, Node{
				ID: id, Parent: -1, Children: [2]int{a, b}, Level: gen, Layer: -1,
			})
			t.Nodes[a].Parent = id
			t.Nodes[b].Parent = id
			t.masks[0] = append(t.masks[0], t.masks[0][a].Union(t.masks[0][b]))
			t.masks[1] = append(t.masks[1], t.masks[1][a].Union(t.masks[1][b]))
			next = append(next, id)
			genIDs = append(genIDs, id)
		}
		if len(current)%2 == 1 {
			next = append(next, current[len(current)-1])
		}
		t.levels = append(t.levels, genIDs)

		if len(next) == len(current) {
			break // cannot shrink further
		}
		current = next
	}

	t.TopLevelIDs = append([]int(nil), current...)
	return t, nil
}

func (t *Tree) Size() int { return len(t.Nodes) }

func (t *Tree) IsLeaf(id int) bool { return t.Nodes[id].Children[0] == -1 }

// Mask returns the node's binary mask for the given view (0 or 1).
func (t *Tree) Mask(id, view int) dmath.Bitmap { return t.masks[view][id] }

// Masks returns the node's masks for both views.
func (t *Tree) Masks(id int) [2]dmath.Bitmap {
	return [2]dmath.Bitmap{t.masks[0][id], t.masks[1][id]}
}

// LevelPeers returns the ids of all nodes created in the same
// agglomeration generation as id, including id itself. The refinement
// pass compares a node's kernel entropy against this cohort.
func (t *Tree) LevelPeers(id int) []int {
	return t.levels[t.Nodes[id].Level]
}

// Validate checks the partition invariants: sibling masks disjoint per
// view, and leaf masks jointly covering the image per view. Violating
// these makes the parallel reconstruction writes collide, so this is a
// correctness check, not a lint.
func (t *Tree) Validate() error {
	for _, n := range t.Nodes {
		if n.Children[0] == -1 {
			continue
		}
		for v := 0; v < 2; v++ {
			if t.masks[v][n.Children[0]].Intersects(t.masks[v][n.Children[1]]) {
				return fmt.Errorf("regiontree: children of node %d overlap in view %d", n.ID, v)
			}
		}
	}

	for v := 0; v < 2; v++ {
		cover := dmath.NewBitmap(t.masks[v][0].Dx(), t.masks[v][0].Dy())
		for l := 0; l < t.Layers; l++ {
			cover = cover.Union(t.masks[v][l])
		}
		if cover.Count() != cover.Dx()*cover.Dy() {
			return fmt.Errorf("regiontree: leaf masks do not cover view %d", v)
		}
	}
	return nil
}
