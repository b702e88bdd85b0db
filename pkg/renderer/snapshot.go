package renderer

import (
	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/material"
)

// Snapshot is an immutable tree and material table published together.
// A job keeps the snapshot it started with until it is restarted.
type Snapshot struct {
	Tree      *bvh.Tree
	Materials []material.Material
	Version   uint64
}

// Empty reports whether the snapshot has no geometry to trace
func (s *Snapshot) Empty() bool {
	return s == nil || s.Tree == nil || len(s.Tree.Triangles()) == 0
}
