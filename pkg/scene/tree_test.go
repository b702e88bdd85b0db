package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
)

func collect(g Graph) []Visit {
	var visits []Visit
	g.Walk(func(v Visit) bool {
		visits = append(visits, v)
		return true
	})
	return visits
}

func TestTree_WalkDepthFirstWithWorldTransforms(t *testing.T) {
	tree := NewTree()
	a, err := tree.AddGroup(tree.Root(), "a", core.Translate(core.NewVec3(1, 0, 0)))
	require.NoError(t, err)
	b, err := tree.AddGroup(a, "b", core.Translate(core.NewVec3(0, 2, 0)))
	require.NoError(t, err)
	c, err := tree.AddGroup(tree.Root(), "c", core.Identity())
	require.NoError(t, err)

	visits := collect(tree)
	require.Len(t, visits, 4)

	names := []string{visits[0].Name, visits[1].Name, visits[2].Name, visits[3].Name}
	assert.Equal(t, []string{"root", "a", "b", "c"}, names)
	assert.Equal(t, b.ID(), visits[2].ID)
	assert.Equal(t, c.ID(), visits[3].ID)
	assert.Equal(t, 2, visits[2].Depth)
	assert.Equal(t, core.NewVec3(1, 2, 0), visits[2].World.Point(core.Vec3{}))
}

func TestTree_HiddenIsInherited(t *testing.T) {
	tree := NewTree()
	parent, _ := tree.AddGroup(tree.Root(), "parent", core.Identity())
	child, _ := tree.AddGroup(parent, "child", core.Identity())
	tree.SetHidden(parent, true)

	for _, v := range collect(tree) {
		switch v.ID {
		case parent.ID(), child.ID():
			assert.False(t, v.Visible, v.Name)
		default:
			assert.True(t, v.Visible, v.Name)
		}
	}
}

func TestTree_WalkStopsEarly(t *testing.T) {
	tree := NewCornellBox()
	count := 0
	tree.Walk(func(Visit) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}

func TestTree_RemoveDetachesSubtree(t *testing.T) {
	tree := NewTree()
	a, _ := tree.AddGroup(tree.Root(), "a", core.Identity())
	_, _ = tree.AddGroup(a, "b", core.Identity())
	assert.Equal(t, 3, tree.Count())

	require.NoError(t, tree.Remove(a))
	assert.Equal(t, 1, tree.Count())

	other := NewTree()
	assert.ErrorIs(t, other.Remove(a), ErrForeignNode)
	_, err := other.AddGroup(a, "x", core.Identity())
	assert.ErrorIs(t, err, ErrForeignNode)
}

func TestTree_IdentitiesAndRevisions(t *testing.T) {
	tree := NewTree()
	m1 := tree.NewMaterial("a", material.NewDiffuse(core.Splat(0.5)))
	m2 := tree.NewMaterial("b", material.NewDiffuse(core.Splat(0.5)))
	assert.NotEqual(t, m1.ID, m2.ID)

	mesh := tree.NewMesh(QuadMesh("q", core.Vec3{}, core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0), m1))
	assert.Equal(t, uint64(1), mesh.Revision)

	tree.EditMesh(mesh, func(m *Mesh) { m.Positions[0] = core.NewVec3(-1, 0, 0) })
	assert.Equal(t, uint64(2), mesh.Revision)

	tree.AssignMaterial(mesh, m2)
	assert.Equal(t, uint64(3), mesh.Revision)
	assert.Equal(t, m2, mesh.Material)

	id := m1.ID
	tree.SetMaterial(m1, material.NewEmissive(core.Splat(2)))
	assert.Equal(t, id, m1.ID)
	assert.Equal(t, material.Emissive, m1.Render.Kind)
}

func TestPrimitives_NormalsFaceOutward(t *testing.T) {
	meshes := []Mesh{
		BoxMesh("box", core.NewVec3(1, 2, 3), nil),
		SphereMesh("sphere", 2, 6, 12, nil),
	}
	for _, m := range meshes {
		t.Run(m.Name, func(t *testing.T) {
			require.Zero(t, len(m.Indices)%3)
			for i := 0; i < len(m.Indices); i += 3 {
				p0 := m.Positions[m.Indices[i]]
				p1 := m.Positions[m.Indices[i+1]]
				p2 := m.Positions[m.Indices[i+2]]
				n := p1.Subtract(p0).Cross(p2.Subtract(p0))
				centroid := p0.Add(p1).Add(p2).Multiply(1.0 / 3)
				assert.Greater(t, n.Dot(centroid), 0.0, "triangle %d winds inward", i/3)
			}
		})
	}

	box := BoxMesh("box", core.Splat(1), nil)
	assert.Equal(t, 12, box.TriangleCount())
	assert.Len(t, box.Normals, len(box.Positions))
	assert.Len(t, box.UVs, len(box.Positions))
}

func TestCornellBox_Contents(t *testing.T) {
	tree := NewCornellBox()

	var models, lights int
	for _, v := range collect(tree) {
		switch v.Kind {
		case Model:
			models++
			assert.NotEmpty(t, v.Meshes)
		case Light:
			lights++
			require.NotNil(t, v.Light)
			assert.Equal(t, 130.0, v.Light.Size)
			assert.Equal(t, material.Emissive, v.Light.Material.Render.Kind)
			// Emits downward
			down := v.World.Vector(core.NewVec3(0, 0, -1))
			assert.InDelta(t, -1, down.Y, 1e-9)
		}
	}
	assert.Equal(t, 3, models)
	assert.Equal(t, 1, lights)

	cam, ok := FindCamera(tree)
	require.True(t, ok)
	assert.Equal(t, 40.0, cam.Lens.VFov)
	assert.InDelta(t, -800, cam.World.Point(core.Vec3{}).Z, 1e-9)
}

func TestBuiltinScenes(t *testing.T) {
	infos := ListBuiltin()
	require.Len(t, infos, 3)
	assert.Equal(t, "cornell", infos[0].ID)

	for _, info := range infos {
		tree, err := LoadBuiltin(info.ID)
		require.NoError(t, err, info.ID)
		_, ok := FindCamera(tree)
		assert.True(t, ok, "%s has a camera", info.ID)
	}

	_, err := LoadBuiltin("nope")
	assert.Error(t, err)
}

func TestTree_IdentitiesAreUniqueAcrossTrees(t *testing.T) {
	a, b := NewTree(), NewTree()
	assert.NotEqual(t, a.Root().ID(), b.Root().ID())

	ma := a.NewMaterial("m", material.NewDiffuse(core.Splat(0.5)))
	mb := b.NewMaterial("m", material.NewDiffuse(core.Splat(0.5)))
	assert.NotEqual(t, ma.ID, mb.ID)

	qa := a.NewMesh(QuadMesh("q", core.Vec3{}, core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0), ma))
	qb := b.NewMesh(QuadMesh("q", core.Vec3{}, core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0), mb))
	assert.NotEqual(t, qa.ID, qb.ID)
}

func TestTree_WalkReturnsCopies(t *testing.T) {
	tree := NewTree()
	mat := tree.NewMaterial("m", material.NewDiffuse(core.Splat(0.5)))
	mesh := tree.NewMesh(QuadMesh("q", core.Vec3{}, core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0), mat))
	_, err := tree.AddModel(tree.Root(), "model", core.Identity(), mesh)
	require.NoError(t, err)

	visits := collect(tree)
	require.Len(t, visits, 2)
	seen := visits[1].Meshes[0]

	tree.SetMaterial(mat, material.NewEmissive(core.Splat(3)))
	tree.EditMesh(mesh, func(m *Mesh) { m.Positions[0] = core.NewVec3(-4, 0, 0) })

	assert.Equal(t, material.Diffuse, seen.Material.Render.Kind)
	assert.Equal(t, core.Vec3{}, seen.Positions[0])
	assert.Equal(t, uint64(1), seen.Revision)

	again := collect(tree)[1].Meshes[0]
	assert.Equal(t, material.Emissive, again.Material.Render.Kind)
	assert.Equal(t, core.NewVec3(-4, 0, 0), again.Positions[0])
	assert.Equal(t, mesh.ID, again.ID)
}
