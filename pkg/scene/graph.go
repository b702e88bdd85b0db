// Package scene is the editor-side scene graph as the renderer sees it: a
// read-only, depth-first walk over nodes with world transforms, visibility,
// meshes and light parameters.
package scene

import (
	"fmt"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
)

// NodeID identifies a node for the lifetime of the graph
type NodeID uint64

// MeshID identifies a mesh; edits in place bump Mesh.Revision instead
type MeshID uint64

// MaterialID identifies a material; parameter edits keep the ID
type MaterialID uint64

// NodeKind tags what a node carries
type NodeKind uint8

const (
	Group NodeKind = iota
	Model
	Light
	Camera
)

func (k NodeKind) String() string {
	switch k {
	case Group:
		return "group"
	case Model:
		return "model"
	case Light:
		return "light"
	case Camera:
		return "camera"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Material is a named, shared render material. Meshes reference it by
// pointer but the renderer only ever compares IDs and parameters.
type Material struct {
	ID     MaterialID
	Name   string
	Render material.Material
}

// Mesh is indexed triangle geometry in node-local space.
// Normals and UVs are optional; when present they are per-vertex.
type Mesh struct {
	ID        MeshID
	Revision  uint64
	Name      string
	Positions []core.Vec3
	Normals   []core.Vec3
	UVs       []core.Vec2
	Indices   []int
	Material  *Material
}

// TriangleCount returns the number of whole triangles the index list names
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// LightParams describes an area light: a square of side Size centered on
// the node origin and emitting toward the node's -Z axis.
type LightParams struct {
	Size     float64
	Material *Material
}

// Lens describes a camera node. Cameras look down their local -Z axis.
type Lens struct {
	VFov float64 // vertical field of view in degrees
}

// Visit is what a graph walk reports for each node. Meshes, Light and Lens
// are copies taken under the walk's lock; they stay valid after Walk
// returns and are never written by later edits.
type Visit struct {
	ID      NodeID
	Kind    NodeKind
	Name    string
	Depth   int
	World   core.Transform
	Visible bool // false when the node or any ancestor is hidden
	Meshes  []*Mesh
	Light   *LightParams
	Lens    *Lens
}

// Graph is the renderer's view of the scene. Walk visits nodes depth-first,
// parents before children, and stops early when fn returns false.
type Graph interface {
	Walk(fn func(Visit) bool)
}

// FindCamera returns the first visible camera node
func FindCamera(g Graph) (Visit, bool) {
	var found Visit
	ok := false
	g.Walk(func(v Visit) bool {
		if v.Kind == Camera && v.Visible && v.Lens != nil {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}
