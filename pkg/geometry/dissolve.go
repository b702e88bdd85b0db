package geometry

import (
	"errors"
	"fmt"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/scene"
)

// ErrMalformedMesh marks mesh data that cannot be turned into triangles
var ErrMalformedMesh = errors.New("malformed mesh")

// MaterialIndexer maps a scene material to its slot in the material table.
// A nil material or unknown slot may map to any out-of-range index; the
// kernel shades those as black diffuse.
type MaterialIndexer func(*scene.Material) int

// Dissolve converts one visited node into world-space triangles. Models
// produce their meshes' triangles; lights produce an emissive quad. Other
// kinds produce nothing.
//
// A malformed mesh contributes no triangles but does not stop the other
// meshes of the node; the returned error joins every problem found.
func Dissolve(v scene.Visit, index MaterialIndexer) ([]Triangle, error) {
	switch v.Kind {
	case scene.Model:
		return dissolveModel(v, index)
	case scene.Light:
		return dissolveLight(v, index)
	case scene.Group, scene.Camera:
		return nil, nil
	}
	return nil, nil
}

func dissolveModel(v scene.Visit, index MaterialIndexer) ([]Triangle, error) {
	count := 0
	for _, mesh := range v.Meshes {
		if mesh != nil {
			count += mesh.TriangleCount()
		}
	}

	tris := make([]Triangle, 0, count)
	var errs []error
	for _, mesh := range v.Meshes {
		if mesh == nil {
			continue
		}
		if err := ValidateMesh(mesh); err != nil {
			errs = append(errs, fmt.Errorf("node %d (%s) mesh %d (%s): %w", v.ID, v.Name, mesh.ID, mesh.Name, err))
			continue
		}
		tris = appendMesh(tris, mesh, v.World, index(mesh.Material))
	}
	return tris, errors.Join(errs...)
}

func dissolveLight(v scene.Visit, index MaterialIndexer) ([]Triangle, error) {
	if v.Light == nil {
		return nil, nil
	}
	if v.Light.Size <= 0 || v.Light.Material == nil {
		return nil, fmt.Errorf("node %d (%s): %w: light needs a positive size and a material", v.ID, v.Name, ErrMalformedMesh)
	}

	// Square in the local XY plane, wound so the face normal is -Z
	h := v.Light.Size / 2
	quad := scene.QuadMesh("light", core.NewVec3(-h, -h, 0), core.NewVec3(0, 2*h, 0), core.NewVec3(2*h, 0, 0), v.Light.Material)
	return appendMesh(nil, &quad, v.World, index(v.Light.Material)), nil
}

// ValidateMesh reports index and attribute inconsistencies
func ValidateMesh(m *scene.Mesh) error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: index count %d is not a multiple of 3", ErrMalformedMesh, len(m.Indices))
	}
	if len(m.Normals) != 0 && len(m.Normals) != len(m.Positions) {
		return fmt.Errorf("%w: %d normals for %d positions", ErrMalformedMesh, len(m.Normals), len(m.Positions))
	}
	if len(m.UVs) != 0 && len(m.UVs) != len(m.Positions) {
		return fmt.Errorf("%w: %d uvs for %d positions", ErrMalformedMesh, len(m.UVs), len(m.Positions))
	}
	for i, idx := range m.Indices {
		if idx < 0 || idx >= len(m.Positions) {
			return fmt.Errorf("%w: index %d at %d out of range [0,%d)", ErrMalformedMesh, idx, i, len(m.Positions))
		}
	}
	return nil
}

// appendMesh transforms a validated mesh into world space
func appendMesh(tris []Triangle, m *scene.Mesh, world core.Transform, material int) []Triangle {
	for i := 0; i+2 < len(m.Indices); i += 3 {
		var tri Triangle
		tri.Material = material
		for k := 0; k < 3; k++ {
			idx := m.Indices[i+k]
			tri.P[k] = world.Point(m.Positions[idx])
			if len(m.UVs) != 0 {
				tri.UV[k] = m.UVs[idx]
			}
		}

		if len(m.Normals) != 0 {
			for k := 0; k < 3; k++ {
				tri.N[k] = world.Normal(m.Normals[m.Indices[i+k]])
			}
		} else {
			n := tri.GeometricNormal()
			tri.N = [3]core.Vec3{n, n, n}
		}
		tris = append(tris, tri)
	}
	return tris
}
