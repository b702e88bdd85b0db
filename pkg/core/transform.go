package core

import (
	"math"

	"golang.org/x/image/math/f64"
)

// Transform is an affine 4x4 transform stored row-major.
// Points are column vectors: p' = M * p.
type Transform struct {
	M f64.Mat4
}

// Identity returns the identity transform
func Identity() Transform {
	return Transform{M: f64.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Translate returns a translation by v
func Translate(v Vec3) Transform {
	return Transform{M: f64.Mat4{
		1, 0, 0, v.X,
		0, 1, 0, v.Y,
		0, 0, 1, v.Z,
		0, 0, 0, 1,
	}}
}

// Scale returns a non-uniform scale
func Scale(v Vec3) Transform {
	return Transform{M: f64.Mat4{
		v.X, 0, 0, 0,
		0, v.Y, 0, 0,
		0, 0, v.Z, 0,
		0, 0, 0, 1,
	}}
}

// RotateX returns a rotation around the X axis by angle radians
func RotateX(angle float64) Transform {
	s, c := math.Sincos(angle)
	return Transform{M: f64.Mat4{
		1, 0, 0, 0,
		0, c, -s, 0,
		0, s, c, 0,
		0, 0, 0, 1,
	}}
}

// RotateY returns a rotation around the Y axis by angle radians
func RotateY(angle float64) Transform {
	s, c := math.Sincos(angle)
	return Transform{M: f64.Mat4{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	}}
}

// RotateZ returns a rotation around the Z axis by angle radians
func RotateZ(angle float64) Transform {
	s, c := math.Sincos(angle)
	return Transform{M: f64.Mat4{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Mul returns t * o, i.e. o is applied first
func (t Transform) Mul(o Transform) Transform {
	var r f64.Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += t.M[4*row+k] * o.M[4*k+col]
			}
			r[4*row+col] = sum
		}
	}
	return Transform{M: r}
}

// Point transforms a position
func (t Transform) Point(p Vec3) Vec3 {
	m := &t.M
	return Vec3{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3],
		Y: m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7],
		Z: m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11],
	}
}

// Vector transforms a direction (translation ignored)
func (t Transform) Vector(v Vec3) Vec3 {
	m := &t.M
	return Vec3{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[4]*v.X + m[5]*v.Y + m[6]*v.Z,
		Z: m[8]*v.X + m[9]*v.Y + m[10]*v.Z,
	}
}

// Normal transforms a surface normal with the inverse transpose of the
// linear part and renormalizes it.
func (t Transform) Normal(n Vec3) Vec3 {
	m := &t.M
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[4], m[5], m[6]
	g, h, i := m[8], m[9], m[10]

	// Cofactor matrix equals det * inverse transpose
	c00, c01, c02 := e*i-f*h, f*g-d*i, d*h-e*g
	c10, c11, c12 := c*h-b*i, a*i-c*g, b*g-a*h
	c20, c21, c22 := b*f-c*e, c*d-a*f, a*e-b*d

	det := a*c00 + b*c01 + c*c02
	out := Vec3{
		X: c00*n.X + c01*n.Y + c02*n.Z,
		Y: c10*n.X + c11*n.Y + c12*n.Z,
		Z: c20*n.X + c21*n.Y + c22*n.Z,
	}
	if det < 0 {
		out = out.Negate()
	}
	return out.Normalize()
}

// Equal reports exact element-wise equality
func (t Transform) Equal(o Transform) bool {
	return t.M == o.M
}

// LookAt returns the camera-to-world transform for a camera at eye looking
// toward target. The camera looks down its local -Z axis with +Y up.
func LookAt(eye, target, up Vec3) Transform {
	forward := target.Subtract(eye).Normalize()
	right := forward.Cross(up).Normalize()
	if right.LengthSquared() == 0 {
		right = forward.Cross(NewVec3(1, 0, 0)).Normalize()
	}
	trueUp := right.Cross(forward)
	back := forward.Negate()

	return Transform{M: f64.Mat4{
		right.X, trueUp.X, back.X, eye.X,
		right.Y, trueUp.Y, back.Y, eye.Y,
		right.Z, trueUp.Z, back.Z, eye.Z,
		0, 0, 0, 1,
	}}
}
