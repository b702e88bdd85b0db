package scene

import (
	"math"

	"github.com/df07/go-scene-raytracer/pkg/core"
)

// QuadMesh creates a parallelogram from a corner and two edge vectors.
// The face normal is u × v.
func QuadMesh(name string, corner, u, v core.Vec3, mat *Material) Mesh {
	m := Mesh{Name: name, Material: mat}
	appendQuad(&m, corner, u, v)
	return m
}

// appendQuad adds two triangles covering corner, corner+u, corner+u+v, corner+v
func appendQuad(m *Mesh, corner, u, v core.Vec3) {
	base := len(m.Positions)
	normal := u.Cross(v).Normalize()

	m.Positions = append(m.Positions,
		corner,
		corner.Add(u),
		corner.Add(u).Add(v),
		corner.Add(v),
	)
	m.Normals = append(m.Normals, normal, normal, normal, normal)
	m.UVs = append(m.UVs,
		core.NewVec2(0, 0),
		core.NewVec2(1, 0),
		core.NewVec2(1, 1),
		core.NewVec2(0, 1),
	)
	m.Indices = append(m.Indices,
		base, base+1, base+2,
		base, base+2, base+3,
	)
}

// BoxMesh creates an axis-aligned box centered at the origin with the given
// half extents. Face normals point outward.
func BoxMesh(name string, halfExtent core.Vec3, mat *Material) Mesh {
	sx, sy, sz := halfExtent.X, halfExtent.Y, halfExtent.Z
	x := core.NewVec3(2*sx, 0, 0)
	y := core.NewVec3(0, 2*sy, 0)
	z := core.NewVec3(0, 0, 2*sz)

	m := Mesh{Name: name, Material: mat}
	appendQuad(&m, core.NewVec3(sx, -sy, -sz), y, z)  // +X
	appendQuad(&m, core.NewVec3(-sx, -sy, -sz), z, y) // -X
	appendQuad(&m, core.NewVec3(-sx, sy, -sz), z, x)  // +Y
	appendQuad(&m, core.NewVec3(-sx, -sy, -sz), x, z) // -Y
	appendQuad(&m, core.NewVec3(-sx, -sy, sz), x, y)  // +Z
	appendQuad(&m, core.NewVec3(-sx, -sy, -sz), y, x) // -Z
	return m
}

// SphereMesh creates a UV sphere centered at the origin. rings counts
// latitude bands and segments longitude slices; both are clamped to a
// usable minimum.
func SphereMesh(name string, radius float64, rings, segments int, mat *Material) Mesh {
	rings = max(rings, 2)
	segments = max(segments, 3)

	m := Mesh{Name: name, Material: mat}
	for i := 0; i <= rings; i++ {
		theta := math.Pi * float64(i) / float64(rings)
		sinTheta, cosTheta := math.Sincos(theta)
		for j := 0; j <= segments; j++ {
			phi := 2 * math.Pi * float64(j) / float64(segments)
			sinPhi, cosPhi := math.Sincos(phi)

			n := core.NewVec3(sinTheta*cosPhi, cosTheta, sinTheta*sinPhi)
			m.Positions = append(m.Positions, n.Multiply(radius))
			m.Normals = append(m.Normals, n)
			m.UVs = append(m.UVs, core.NewVec2(float64(j)/float64(segments), float64(i)/float64(rings)))
		}
	}

	stride := segments + 1
	for i := 0; i < rings; i++ {
		for j := 0; j < segments; j++ {
			a := i*stride + j
			b := a + stride
			c := b + 1
			d := a + 1

			// Skip the zero-area triangles that touch the poles
			if i != 0 {
				m.Indices = append(m.Indices, a, d, b)
			}
			if i != rings-1 {
				m.Indices = append(m.Indices, d, c, b)
			}
		}
	}
	return m
}
