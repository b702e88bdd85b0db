// Package bvh builds bounding volume hierarchies over world-space triangles.
// Building happens in two steps: BuildDraft produces a pointer-based
// hierarchy that can be cancelled, and Populate flattens a draft into an
// implicit binary tree that rays are traced against.
package bvh

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/geometry"
	"github.com/df07/go-scene-raytracer/pkg/log"
)

var logger = log.New("bvh")

// MaxTreeHeight bounds the number of levels of a flattened tree. Populate
// allocates 1<<height slots of about 64 bytes each, so a full-height tree
// costs around 4 GiB.
const MaxTreeHeight = 26

// MaxBuildDepth caps BuildOptions.MaxDepth. A draft built at this depth has
// at most 1<<23 slots, about 512 MiB once populated.
const MaxBuildDepth = 22

// Default build settings
const (
	DefaultMaxLeafTriangles = 4
	DefaultMaxDepth         = 22
)

// sahBins is the number of centroid buckets tried per axis by SplitSAH
const sahBins = 12

// SplitPolicy selects how a node's triangles are divided between children
type SplitPolicy uint8

const (
	// SplitMedian sorts by centroid along the longest axis and halves the list
	SplitMedian SplitPolicy = iota
	// SplitSAH picks the binned split with the lowest surface area cost
	SplitSAH
	// SplitMidpoint splits at the spatial middle of the centroid bounds
	SplitMidpoint
)

func (p SplitPolicy) String() string {
	switch p {
	case SplitMedian:
		return "median"
	case SplitSAH:
		return "sah"
	case SplitMidpoint:
		return "midpoint"
	}
	return fmt.Sprintf("split(%d)", uint8(p))
}

// ParseSplitPolicy maps a policy name to a SplitPolicy
func ParseSplitPolicy(name string) (SplitPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "median", "":
		return SplitMedian, nil
	case "sah":
		return SplitSAH, nil
	case "midpoint":
		return SplitMidpoint, nil
	}
	return SplitMedian, fmt.Errorf("unknown split policy %q", name)
}

// BuildOptions tunes BuildDraft
type BuildOptions struct {
	MaxLeafTriangles int // Nodes with this many triangles or fewer become leaves
	MaxDepth         int // Nodes at this depth become leaves; root is depth 0
	Split            SplitPolicy
}

// DefaultBuildOptions returns the standard build settings
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MaxLeafTriangles: DefaultMaxLeafTriangles,
		MaxDepth:         DefaultMaxDepth,
		Split:            SplitMedian,
	}
}

// normalized clamps options into the range the tree can hold
func (o BuildOptions) normalized() BuildOptions {
	if o.MaxLeafTriangles <= 0 {
		o.MaxLeafTriangles = DefaultMaxLeafTriangles
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxDepth > MaxBuildDepth {
		o.MaxDepth = MaxBuildDepth
	}
	return o
}

// DraftNode is one node of a draft hierarchy. A leaf has triangles and no
// children; an internal node has two children and no triangles.
type DraftNode struct {
	Bounds    core.AABB
	Triangles []geometry.Triangle
	Left      *DraftNode
	Right     *DraftNode
}

// IsLeaf reports whether the node has no children
func (n *DraftNode) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// Draft is the result of BuildDraft. It is immutable once returned and can
// be populated into any number of trees.
type Draft struct {
	Root      *DraftNode
	Height    int // Levels, 0 for an empty draft
	Nodes     int
	Leaves    int
	Triangles int
	BuildTime time.Duration
}

// buildPrim is the per-triangle working record of the builder
type buildPrim struct {
	index    int
	centroid core.Vec3
	bounds   core.AABB
}

type builder struct {
	ctx   context.Context
	opts  BuildOptions
	tris  []geometry.Triangle
	draft *Draft
}

// BuildDraft builds a draft hierarchy over tris. The input slice is not
// modified. ctx is checked at every node; on cancellation the partial
// draft is dropped and ctx.Err() returned.
func BuildDraft(ctx context.Context, tris []geometry.Triangle, opts BuildOptions) (*Draft, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	draft := &Draft{}
	if len(tris) == 0 {
		return draft, nil
	}

	prims := make([]buildPrim, len(tris))
	for i := range tris {
		prims[i] = buildPrim{
			index:    i,
			centroid: tris[i].Centroid(),
			bounds:   tris[i].BoundingBox(),
		}
	}

	b := &builder{ctx: ctx, opts: opts.normalized(), tris: tris, draft: draft}
	root, err := b.build(prims, 0)
	if err != nil {
		return nil, err
	}
	draft.Root = root
	draft.Triangles = len(tris)
	draft.BuildTime = time.Since(start)

	logger.Debugf("draft build time: %d ms, height: %d, nodes: %d, leaves: %d, triangles: %d",
		draft.BuildTime.Milliseconds(), draft.Height, draft.Nodes, draft.Leaves, draft.Triangles)
	return draft, nil
}

// build recursively partitions prims. Recursion depth is bounded by MaxDepth.
func (b *builder) build(prims []buildPrim, depth int) (*DraftNode, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, err
	}

	b.draft.Nodes++
	if depth+1 > b.draft.Height {
		b.draft.Height = depth + 1
	}

	bounds := core.EmptyAABB()
	centroids := core.EmptyAABB()
	for i := range prims {
		bounds = bounds.Union(prims[i].bounds)
		centroids = centroids.Extend(prims[i].centroid)
	}

	// Base cases: few triangles, too deep, or nothing left to separate
	if len(prims) <= b.opts.MaxLeafTriangles || depth >= b.opts.MaxDepth || centroids.Size().IsZero() {
		return b.leaf(prims, bounds), nil
	}

	mid := b.partition(prims, centroids)

	// Ensure we don't create empty partitions
	if mid <= 0 || mid >= len(prims) {
		return b.leaf(prims, bounds), nil
	}

	left, err := b.build(prims[:mid], depth+1)
	if err != nil {
		return nil, err
	}
	right, err := b.build(prims[mid:], depth+1)
	if err != nil {
		return nil, err
	}
	return &DraftNode{Bounds: bounds, Left: left, Right: right}, nil
}

func (b *builder) leaf(prims []buildPrim, bounds core.AABB) *DraftNode {
	b.draft.Leaves++
	tris := make([]geometry.Triangle, len(prims))
	for i := range prims {
		tris[i] = b.tris[prims[i].index]
	}
	return &DraftNode{Bounds: bounds, Triangles: tris}
}

// partition reorders prims in place and returns the index of the first
// prim that goes to the right child.
func (b *builder) partition(prims []buildPrim, centroids core.AABB) int {
	switch b.opts.Split {
	case SplitSAH:
		if mid, ok := partitionSAH(prims, centroids); ok {
			return mid
		}
	case SplitMidpoint:
		if mid, ok := partitionMidpoint(prims, centroids); ok {
			return mid
		}
	case SplitMedian:
	}
	return partitionMedian(prims, centroids)
}

// partitionMedian sorts along the longest centroid axis and splits in half
func partitionMedian(prims []buildPrim, centroids core.AABB) int {
	axis := centroids.LongestAxis()
	sort.Slice(prims, func(i, j int) bool {
		return prims[i].centroid.Axis(axis) < prims[j].centroid.Axis(axis)
	})
	return len(prims) / 2
}

// partitionMidpoint splits at the middle of the longest centroid axis
func partitionMidpoint(prims []buildPrim, centroids core.AABB) (int, bool) {
	axis := centroids.LongestAxis()
	splitPos := (centroids.Min.Axis(axis) + centroids.Max.Axis(axis)) * 0.5
	mid := partitionBy(prims, func(p *buildPrim) bool {
		return p.centroid.Axis(axis) < splitPos
	})
	return mid, mid > 0 && mid < len(prims)
}

// partitionSAH scores bucket boundaries on every axis with
// count * surface area and splits at the cheapest one.
func partitionSAH(prims []buildPrim, centroids core.AABB) (int, bool) {
	type bin struct {
		count  int
		bounds core.AABB
	}

	bestAxis, bestBin := -1, 0
	bestCost := 0.0
	extent := centroids.Size()

	for axis := 0; axis < 3; axis++ {
		// Skip axis if there is nothing to separate
		if extent.Axis(axis) <= 0 {
			continue
		}

		var bins [sahBins]bin
		for i := range bins {
			bins[i].bounds = core.EmptyAABB()
		}
		for i := range prims {
			k := binIndex(prims[i].centroid.Axis(axis), centroids.Min.Axis(axis), extent.Axis(axis))
			bins[k].count++
			bins[k].bounds = bins[k].bounds.Union(prims[i].bounds)
		}

		// Sweep from the right to get suffix costs, then from the left
		var rightArea [sahBins]float64
		var rightCount [sahBins]int
		box, count := core.EmptyAABB(), 0
		for k := sahBins - 1; k > 0; k-- {
			box = box.Union(bins[k].bounds)
			count += bins[k].count
			rightArea[k] = box.SurfaceArea()
			rightCount[k] = count
		}

		box, count = core.EmptyAABB(), 0
		for k := 0; k < sahBins-1; k++ {
			box = box.Union(bins[k].bounds)
			count += bins[k].count
			if count == 0 || rightCount[k+1] == 0 {
				continue
			}
			cost := float64(count)*box.SurfaceArea() + float64(rightCount[k+1])*rightArea[k+1]
			if bestAxis == -1 || cost < bestCost {
				bestAxis, bestBin, bestCost = axis, k, cost
			}
		}
	}

	if bestAxis == -1 {
		return 0, false
	}

	minVal, span := centroids.Min.Axis(bestAxis), extent.Axis(bestAxis)
	mid := partitionBy(prims, func(p *buildPrim) bool {
		return binIndex(p.centroid.Axis(bestAxis), minVal, span) <= bestBin
	})
	return mid, mid > 0 && mid < len(prims)
}

func binIndex(value, minVal, span float64) int {
	k := int(sahBins * (value - minVal) / span)
	if k < 0 {
		return 0
	}
	if k >= sahBins {
		return sahBins - 1
	}
	return k
}

// partitionBy moves prims matching left to the front and returns their count
func partitionBy(prims []buildPrim, left func(*buildPrim) bool) int {
	i := 0
	for j := range prims {
		if left(&prims[j]) {
			prims[i], prims[j] = prims[j], prims[i]
			i++
		}
	}
	return i
}
