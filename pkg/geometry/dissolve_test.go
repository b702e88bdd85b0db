package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
	"github.com/df07/go-scene-raytracer/pkg/scene"
)

func fixedIndex(i int) MaterialIndexer {
	return func(*scene.Material) int { return i }
}

func unitQuad() *scene.Mesh {
	m := scene.QuadMesh("quad", core.Vec3{}, core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0), nil)
	return &m
}

func TestDissolve_ModelAppliesWorldTransform(t *testing.T) {
	visit := scene.Visit{
		ID:      1,
		Kind:    scene.Model,
		World:   core.Translate(core.NewVec3(10, 0, 0)).Mul(core.Scale(core.NewVec3(2, 2, 2))),
		Visible: true,
		Meshes:  []*scene.Mesh{unitQuad()},
	}

	tris, err := Dissolve(visit, fixedIndex(3))
	require.NoError(t, err)
	require.Len(t, tris, 2)

	bounds := core.EmptyAABB()
	for _, tri := range tris {
		bounds = bounds.Union(tri.BoundingBox())
		assert.Equal(t, 3, tri.Material)
		assert.InDelta(t, 1, tri.N[0].Z, 1e-12)
	}
	assert.Equal(t, core.NewVec3(10, 0, 0), bounds.Min)
	assert.Equal(t, core.NewVec3(12, 2, 0), bounds.Max)
}

func TestDissolve_MalformedMeshSkippedOthersKept(t *testing.T) {
	tests := []struct {
		name string
		bad  func(m *scene.Mesh)
	}{
		{"index count", func(m *scene.Mesh) { m.Indices = m.Indices[:5] }},
		{"index range", func(m *scene.Mesh) { m.Indices[2] = 99 }},
		{"negative index", func(m *scene.Mesh) { m.Indices[0] = -1 }},
		{"normal count", func(m *scene.Mesh) { m.Normals = m.Normals[:2] }},
		{"uv count", func(m *scene.Mesh) { m.UVs = m.UVs[:1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := unitQuad()
			tt.bad(bad)

			visit := scene.Visit{Kind: scene.Model, World: core.Identity(), Meshes: []*scene.Mesh{bad, unitQuad()}}
			tris, err := Dissolve(visit, fixedIndex(0))
			assert.ErrorIs(t, err, ErrMalformedMesh)
			assert.Len(t, tris, 2, "the well-formed mesh still contributes")
		})
	}
}

func TestDissolve_MeshWithoutNormalsIsFlatShaded(t *testing.T) {
	mesh := &scene.Mesh{
		Positions: []core.Vec3{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 0}},
		Indices:   []int{0, 1, 2},
	}
	tris, err := Dissolve(scene.Visit{Kind: scene.Model, World: core.Identity(), Meshes: []*scene.Mesh{mesh}}, fixedIndex(0))
	require.NoError(t, err)
	require.Len(t, tris, 1)
	for _, n := range tris[0].N {
		assert.Equal(t, core.NewVec3(0, 1, 0), n)
	}
}

func TestDissolve_LightBecomesEmissiveQuad(t *testing.T) {
	lamp := &scene.Material{ID: 7, Render: material.NewEmissive(core.Splat(5))}
	visit := scene.Visit{
		Kind:  scene.Light,
		World: core.Translate(core.NewVec3(0, 5, 0)).Mul(core.RotateX(-math.Pi / 2)),
		Light: &scene.LightParams{Size: 2, Material: lamp},
	}

	var seen *scene.Material
	tris, err := Dissolve(visit, func(m *scene.Material) int {
		seen = m
		return 4
	})
	require.NoError(t, err)
	require.Len(t, tris, 2)
	assert.Same(t, lamp, seen)

	for _, tri := range tris {
		assert.Equal(t, 4, tri.Material)
		// Faces downward at y=5
		assert.InDelta(t, -1, tri.GeometricNormal().Y, 1e-9)
		for _, p := range tri.P {
			assert.InDelta(t, 5, p.Y, 1e-9)
			assert.LessOrEqual(t, math.Abs(p.X), 1+1e-9)
			assert.LessOrEqual(t, math.Abs(p.Z), 1+1e-9)
		}
	}

	visit.Light = &scene.LightParams{Size: 0, Material: lamp}
	_, err = Dissolve(visit, fixedIndex(0))
	assert.ErrorIs(t, err, ErrMalformedMesh)
}

func TestDissolve_GroupsAndCamerasProduceNothing(t *testing.T) {
	for _, kind := range []scene.NodeKind{scene.Group, scene.Camera} {
		tris, err := Dissolve(scene.Visit{Kind: kind, World: core.Identity()}, fixedIndex(0))
		assert.NoError(t, err)
		assert.Empty(t, tris)
	}
}
