package bvh

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/geometry"
)

var (
	// ErrInvalidDraftNode marks a draft node that has both triangles and children
	ErrInvalidDraftNode = errors.New("draft node has both triangles and children")
	// ErrTreeTooDeep is returned when a draft is taller than MaxTreeHeight
	ErrTreeTooDeep = errors.New("draft exceeds maximum tree height")
)

// TraversalMode controls how TestRay treats two hit children whose boxes
// do not overlap.
type TraversalMode uint8

const (
	// TraverseExact visits both children nearer first and skips any node
	// whose entry distance is past the closest hit. Always finds the
	// closest hit.
	TraverseExact TraversalMode = iota
	// TraverseGreedy only visits the nearer child. Faster but can miss the
	// closest hit when the nearer child's triangles do not cover the ray.
	TraverseGreedy
)

func (m TraversalMode) String() string {
	switch m {
	case TraverseExact:
		return "exact"
	case TraverseGreedy:
		return "greedy"
	}
	return fmt.Sprintf("traversal(%d)", uint8(m))
}

// ParseTraversalMode maps a mode name to a TraversalMode
func ParseTraversalMode(name string) (TraversalMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "exact", "":
		return TraverseExact, nil
	case "greedy":
		return TraverseGreedy, nil
	}
	return TraverseExact, fmt.Errorf("unknown traversal mode %q", name)
}

// TreeOptions tunes Populate
type TreeOptions struct {
	Traversal TraversalMode
}

// NodeIndex is a 1-based heap index: the root is 1 and the children of i
// are 2i and 2i+1.
type NodeIndex uint32

// RootIndex is the index of the root node
const RootIndex NodeIndex = 1

// Left returns the index of the left child
func (i NodeIndex) Left() NodeIndex { return 2 * i }

// Right returns the index of the right child
func (i NodeIndex) Right() NodeIndex { return 2*i + 1 }

// Depth returns the level of the index; the root is at depth 0
func (i NodeIndex) Depth() int { return bits.Len32(uint32(i)) - 1 }

// nodeRecord is the non-box half of a tree slot
type nodeRecord struct {
	used    bool
	leaf    bool
	overlap bool // Internal nodes: children boxes overlap
	first   uint32
	count   uint32
}

// Tree is a flattened BVH stored as an implicit binary tree in two parallel
// arrays, plus its own copy of the triangles grouped by leaf. It is
// immutable and safe for concurrent TestRay calls.
type Tree struct {
	boxes     []core.AABB
	nodes     []nodeRecord
	triangles []geometry.Triangle
	height    int
	mode      TraversalMode
	stats     Stats
}

// Hit is the closest intersection found by TestRay
type Hit struct {
	T        float64
	U, V     float64 // Barycentrics of the second and third vertex
	Triangle *geometry.Triangle
}

// Populate flattens a draft. A nil or empty draft yields an empty tree that
// never reports hits. Draft nodes with both triangles and children are
// logged and their triangles skipped.
func Populate(draft *Draft, opts TreeOptions) (*Tree, error) {
	t := &Tree{mode: opts.Traversal}
	if draft == nil || draft.Root == nil {
		return t, nil
	}

	height := measureHeight(draft.Root)
	if height > MaxTreeHeight {
		return nil, fmt.Errorf("%w: height %d > %d", ErrTreeTooDeep, height, MaxTreeHeight)
	}

	size := 1 << height
	t.height = height
	t.boxes = make([]core.AABB, size)
	t.nodes = make([]nodeRecord, size)
	t.triangles = make([]geometry.Triangle, 0, draft.Triangles)

	type item struct {
		node  *DraftNode
		index NodeIndex
	}
	stack := make([]item, 0, 2*MaxTreeHeight)
	stack = append(stack, item{node: draft.Root, index: RootIndex})

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := it.node
		rec := &t.nodes[it.index]
		rec.used = true
		t.boxes[it.index] = n.Bounds
		t.stats.Nodes++

		if n.IsLeaf() {
			rec.leaf = true
			rec.first = uint32(len(t.triangles))
			rec.count = uint32(len(n.Triangles))
			t.triangles = append(t.triangles, n.Triangles...)

			t.stats.Leaves++
			t.stats.MaxLeafSize = max(t.stats.MaxLeafSize, len(n.Triangles))
			if len(n.Triangles) == 0 {
				t.stats.EmptyLeaves++
			}
			continue
		}

		if len(n.Triangles) > 0 {
			logger.Errorf("populate: node %d: %v; skipping %d triangles", it.index, ErrInvalidDraftNode, len(n.Triangles))
			t.stats.InvalidNodes++
		}
		if n.Left != nil && n.Right != nil {
			rec.overlap = n.Left.Bounds.Overlaps(n.Right.Bounds)
		}

		// Push right first so the left subtree is laid out first
		if n.Right != nil {
			stack = append(stack, item{node: n.Right, index: it.index.Right()})
		}
		if n.Left != nil {
			stack = append(stack, item{node: n.Left, index: it.index.Left()})
		}
	}

	t.stats.Height = height
	t.stats.Triangles = len(t.triangles)
	t.stats.Slots = size
	return t, nil
}

// measureHeight counts the levels of a draft without recursion
func measureHeight(root *DraftNode) int {
	type item struct {
		node  *DraftNode
		depth int
	}
	height := 0
	stack := []item{{root, 1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		height = max(height, it.depth)
		if it.node.Left != nil {
			stack = append(stack, item{it.node.Left, it.depth + 1})
		}
		if it.node.Right != nil {
			stack = append(stack, item{it.node.Right, it.depth + 1})
		}
	}
	return height
}

// used reports whether index names a populated slot
func (t *Tree) used(i NodeIndex) bool {
	return int(i) < len(t.nodes) && t.nodes[i].used
}

// TestRay finds the closest triangle hit with t in [tMin, tMax]
func (t *Tree) TestRay(ray core.Ray, tMin, tMax float64) (Hit, bool) {
	if !t.used(RootIndex) {
		return Hit{}, false
	}
	rootDist, ok := t.boxes[RootIndex].HitDistance(ray, tMin, tMax)
	if !ok {
		return Hit{}, false
	}

	type entry struct {
		index NodeIndex
		dist  float64
	}
	var stack [2 * MaxTreeHeight]entry
	sp := 0
	push := func(e entry) {
		if sp < len(stack) {
			stack[sp] = e
			sp++
		}
	}
	push(entry{RootIndex, rootDist})

	var hit Hit
	found := false
	closest := tMax

	for sp > 0 {
		sp--
		e := stack[sp]
		if e.dist > closest {
			continue
		}

		rec := t.nodes[e.index]
		if rec.leaf {
			tris := t.triangles[rec.first : rec.first+rec.count]
			for i := range tris {
				dist, u, v, ok := tris[i].Intersect(ray, tMin, closest)
				if !ok {
					continue
				}
				closest = dist
				hit = Hit{T: dist, U: u, V: v, Triangle: &tris[i]}
				found = true
			}
			continue
		}

		left, right := e.index.Left(), e.index.Right()
		leftDist, leftHit := t.childHit(left, ray, tMin, closest)
		rightDist, rightHit := t.childHit(right, ray, tMin, closest)

		switch {
		case leftHit && rightHit:
			near, far := entry{left, leftDist}, entry{right, rightDist}
			if rightDist < leftDist {
				near, far = far, near
			}
			if rec.overlap || t.mode == TraverseExact {
				push(far)
			}
			push(near)
		case leftHit:
			push(entry{left, leftDist})
		case rightHit:
			push(entry{right, rightDist})
		}
	}
	return hit, found
}

func (t *Tree) childHit(i NodeIndex, ray core.Ray, tMin, tMax float64) (float64, bool) {
	if !t.used(i) {
		return math.Inf(1), false
	}
	return t.boxes[i].HitDistance(ray, tMin, tMax)
}

// NodeBox is one populated slot as reported for debug overlays
type NodeBox struct {
	Index  NodeIndex `json:"index"`
	Bounds core.AABB `json:"bounds"`
	Depth  int       `json:"depth"`
	Leaf   bool      `json:"leaf"`
}

// NodeBoxes lists every populated slot in index order
func (t *Tree) NodeBoxes() []NodeBox {
	boxes := make([]NodeBox, 0, t.stats.Nodes)
	for i := RootIndex; int(i) < len(t.nodes); i++ {
		if !t.nodes[i].used {
			continue
		}
		boxes = append(boxes, NodeBox{
			Index:  i,
			Bounds: t.boxes[i],
			Depth:  i.Depth(),
			Leaf:   t.nodes[i].leaf,
		})
	}
	return boxes
}

// Bounds returns the root box, empty for an empty tree
func (t *Tree) Bounds() core.AABB {
	if !t.used(RootIndex) {
		return core.EmptyAABB()
	}
	return t.boxes[RootIndex]
}

// Triangles returns the tree's triangles grouped by leaf. Callers must not
// modify the slice.
func (t *Tree) Triangles() []geometry.Triangle {
	return t.triangles
}

// Height returns the number of levels, 0 for an empty tree
func (t *Tree) Height() int {
	return t.height
}

// Traversal returns the mode TestRay uses
func (t *Tree) Traversal() TraversalMode {
	return t.mode
}

// Stats returns structural statistics about the tree
func (t *Tree) Stats() Stats {
	return t.stats
}
