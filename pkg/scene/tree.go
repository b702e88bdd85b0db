package scene

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
)

// ErrForeignNode is returned when a node from another tree is passed in
var ErrForeignNode = errors.New("node does not belong to this tree")

// Identities are process-wide so nodes, meshes and materials of different
// trees never alias in a cache that outlives a tree.
var (
	nodeIDs     atomic.Uint64
	meshIDs     atomic.Uint64
	materialIDs atomic.Uint64
)

// Node is one element of an in-memory Tree. Fields are only changed through
// Tree methods so concurrent walks see consistent state.
type Node struct {
	id       NodeID
	name     string
	kind     NodeKind
	local    core.Transform
	hidden   bool
	meshes   []*Mesh
	light    *LightParams
	lens     *Lens
	parent   *Node
	children []*Node
	tree     *Tree
}

// ID returns the node's identity
func (n *Node) ID() NodeID { return n.id }

// Name returns the node's display name
func (n *Node) Name() string { return n.name }

// Kind returns what the node carries
func (n *Node) Kind() NodeKind { return n.kind }

// Tree is a mutable in-memory scene graph. It implements Graph.
type Tree struct {
	mu   sync.RWMutex
	root *Node
}

// NewTree creates a tree with an empty root group
func NewTree() *Tree {
	t := &Tree{}
	t.root = t.newNode(Group, "root")
	return t
}

// Root returns the root group
func (t *Tree) Root() *Node {
	return t.root
}

func (t *Tree) newNode(kind NodeKind, name string) *Node {
	return &Node{id: NodeID(nodeIDs.Add(1)), name: name, kind: kind, local: core.Identity(), tree: t}
}

// NewMaterial registers a material with a fresh identity
func (t *Tree) NewMaterial(name string, render material.Material) *Material {
	return &Material{ID: MaterialID(materialIDs.Add(1)), Name: name, Render: render}
}

// NewMesh registers a mesh with a fresh identity
func (t *Tree) NewMesh(m Mesh) *Mesh {
	m.ID = MeshID(meshIDs.Add(1))
	m.Revision = 1
	return &m
}

// AddGroup adds an empty group under parent
func (t *Tree) AddGroup(parent *Node, name string, local core.Transform) (*Node, error) {
	return t.add(parent, Group, name, local, func(*Node) {})
}

// AddModel adds a model node carrying meshes
func (t *Tree) AddModel(parent *Node, name string, local core.Transform, meshes ...*Mesh) (*Node, error) {
	return t.add(parent, Model, name, local, func(n *Node) {
		n.meshes = append([]*Mesh(nil), meshes...)
	})
}

// AddLight adds an area light node
func (t *Tree) AddLight(parent *Node, name string, local core.Transform, params LightParams) (*Node, error) {
	return t.add(parent, Light, name, local, func(n *Node) {
		p := params
		n.light = &p
	})
}

// AddCamera adds a camera node
func (t *Tree) AddCamera(parent *Node, name string, local core.Transform, lens Lens) (*Node, error) {
	return t.add(parent, Camera, name, local, func(n *Node) {
		l := lens
		n.lens = &l
	})
}

func (t *Tree) add(parent *Node, kind NodeKind, name string, local core.Transform, init func(*Node)) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if parent == nil || parent.tree != t {
		return nil, ErrForeignNode
	}
	n := t.newNode(kind, name)
	n.local = local
	init(n)
	n.parent = parent
	parent.children = append(parent.children, n)
	return n, nil
}

// Remove detaches a node and its subtree. Removing the root is a no-op.
func (t *Tree) Remove(n *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n == nil || n.tree != t {
		return ErrForeignNode
	}
	if n.parent == nil {
		return nil
	}
	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
	return nil
}

// SetTransform replaces a node's local transform
func (t *Tree) SetTransform(n *Node, local core.Transform) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.local = local
}

// SetHidden hides or shows a node and everything below it
func (t *Tree) SetHidden(n *Node, hidden bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.hidden = hidden
}

// SetMeshes replaces the meshes of a model node
func (t *Tree) SetMeshes(n *Node, meshes ...*Mesh) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.meshes = append([]*Mesh(nil), meshes...)
}

// SetMaterial changes a material's parameters, keeping its identity
func (t *Tree) SetMaterial(m *Material, render material.Material) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m.Render = render
}

// AssignMaterial points a mesh at a different material
func (t *Tree) AssignMaterial(mesh *Mesh, m *Material) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mesh.Material = m
	mesh.Revision++
}

// EditMesh mutates mesh geometry and bumps its revision. The vertex and
// index slices are cloned first so copies handed out by earlier walks
// keep their old contents.
func (t *Tree) EditMesh(mesh *Mesh, edit func(*Mesh)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mesh.Positions = slices.Clone(mesh.Positions)
	mesh.Normals = slices.Clone(mesh.Normals)
	mesh.UVs = slices.Clone(mesh.UVs)
	mesh.Indices = slices.Clone(mesh.Indices)
	edit(mesh)
	mesh.Revision++
}

// SetLight changes a light node's parameters
func (t *Tree) SetLight(n *Node, params LightParams) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := params
	n.light = &p
}

// Walk visits every node depth-first with accumulated transforms.
// The tree is read-locked for the duration of the walk.
func (t *Tree) Walk(fn func(Visit) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type frame struct {
		node    *Node
		world   core.Transform
		visible bool
		depth   int
	}

	stack := []frame{{node: t.root, world: t.root.local, visible: !t.root.hidden}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := f.node
		v := Visit{
			ID:      n.id,
			Kind:    n.kind,
			Name:    n.name,
			Depth:   f.depth,
			World:   f.world,
			Visible: f.visible,
			Meshes:  copyMeshes(n.meshes),
			Light:   copyLight(n.light),
			Lens:    copyLens(n.lens),
		}
		if !fn(v) {
			return
		}

		// Push in reverse so children are visited in insertion order
		for i := len(n.children) - 1; i >= 0; i-- {
			c := n.children[i]
			stack = append(stack, frame{
				node:    c,
				world:   f.world.Mul(c.local),
				visible: f.visible && !c.hidden,
				depth:   f.depth + 1,
			})
		}
	}
}

// copyMeshes copies the mesh headers and their materials. Geometry slices
// are shared; EditMesh never writes to a slice a copy may hold.
func copyMeshes(meshes []*Mesh) []*Mesh {
	if len(meshes) == 0 {
		return nil
	}
	out := make([]*Mesh, len(meshes))
	for i, m := range meshes {
		if m == nil {
			continue
		}
		c := *m
		c.Material = copyMaterial(m.Material)
		out[i] = &c
	}
	return out
}

func copyMaterial(m *Material) *Material {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func copyLight(l *LightParams) *LightParams {
	if l == nil {
		return nil
	}
	c := *l
	c.Material = copyMaterial(l.Material)
	return &c
}

func copyLens(l *Lens) *Lens {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// Count returns the number of nodes, root included
func (t *Tree) Count() int {
	count := 0
	t.Walk(func(Visit) bool {
		count++
		return true
	})
	return count
}
