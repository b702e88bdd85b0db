// Package geometry holds the world-space triangle the renderer works with
// and the dissolver that turns scene nodes into triangles.
package geometry

import (
	"github.com/df07/go-scene-raytracer/pkg/core"
)

// Triangle is a world-space triangle with per-vertex shading normals and
// texture coordinates. Material is an index into the material table the
// triangle was dissolved against.
type Triangle struct {
	P        [3]core.Vec3 // Vertices
	N        [3]core.Vec3 // Shading normals
	UV       [3]core.Vec2 // Texture coordinates
	Material int
}

// NewTriangle creates a flat-shaded triangle; all shading normals equal the
// geometric normal.
func NewTriangle(v0, v1, v2 core.Vec3, material int) Triangle {
	t := Triangle{P: [3]core.Vec3{v0, v1, v2}, Material: material}
	n := t.GeometricNormal()
	t.N = [3]core.Vec3{n, n, n}
	t.UV = [3]core.Vec2{core.NewVec2(0, 0), core.NewVec2(1, 0), core.NewVec2(0, 1)}
	return t
}

// BoundingBox returns the axis-aligned bounding box for this triangle
func (t *Triangle) BoundingBox() core.AABB {
	return core.NewAABBFromPoints(t.P[0], t.P[1], t.P[2])
}

// Centroid returns the average of the three vertices
func (t *Triangle) Centroid() core.Vec3 {
	return t.P[0].Add(t.P[1]).Add(t.P[2]).Multiply(1.0 / 3.0)
}

// GeometricNormal returns the unit normal given by the winding order
func (t *Triangle) GeometricNormal() core.Vec3 {
	edge1 := t.P[1].Subtract(t.P[0])
	edge2 := t.P[2].Subtract(t.P[0])
	return edge1.Cross(edge2).Normalize()
}

// ShadingNormal interpolates the vertex normals at barycentric (u, v),
// where u weights the second vertex and v the third. Falls back to the
// geometric normal when the interpolated normal vanishes.
func (t *Triangle) ShadingNormal(u, v float64) core.Vec3 {
	w := 1 - u - v
	n := t.N[0].Multiply(w).Add(t.N[1].Multiply(u)).Add(t.N[2].Multiply(v))
	if n.LengthSquared() < 1e-24 {
		return t.GeometricNormal()
	}
	return n.Normalize()
}

// TexCoord interpolates the vertex UVs at barycentric (u, v)
func (t *Triangle) TexCoord(u, v float64) core.Vec2 {
	w := 1 - u - v
	return core.NewVec2(
		t.UV[0].X*w+t.UV[1].X*u+t.UV[2].X*v,
		t.UV[0].Y*w+t.UV[1].Y*u+t.UV[2].Y*v,
	)
}

// Intersect tests a ray against the triangle using the Möller-Trumbore
// algorithm. Both faces are hit. It returns the ray parameter and the
// barycentric coordinates of the hit.
func (t *Triangle) Intersect(ray core.Ray, tMin, tMax float64) (float64, float64, float64, bool) {
	const epsilon = 1e-12

	// Calculate two edge vectors
	edge1 := t.P[1].Subtract(t.P[0])
	edge2 := t.P[2].Subtract(t.P[0])

	// Calculate determinant
	h := ray.Direction.Cross(edge2)
	a := edge1.Dot(h)

	// If determinant is near zero, ray lies in plane of triangle
	if a > -epsilon && a < epsilon {
		return 0, 0, 0, false
	}

	f := 1.0 / a
	s := ray.Origin.Subtract(t.P[0])
	u := f * s.Dot(h)
	if u < 0.0 || u > 1.0 {
		return 0, 0, 0, false
	}

	q := s.Cross(edge1)
	v := f * ray.Direction.Dot(q)
	if v < 0.0 || u+v > 1.0 {
		return 0, 0, 0, false
	}

	dist := f * edge2.Dot(q)
	if dist < tMin || dist > tMax {
		return 0, 0, 0, false
	}
	return dist, u, v, true
}
