package core

import (
	"math"
	"math/rand"
)

// Sampler provides random sampling for rendering algorithms
// Can be swapped out for deterministic testing or different sampling patterns
type Sampler interface {
	Get1D() float64
	Get2D() Vec2
}

// RandomSampler wraps a standard Go random generator.
// It is not safe for concurrent use; each worker owns one.
type RandomSampler struct {
	random *rand.Rand
}

// NewRandomSampler creates a sampler from a Go random generator
func NewRandomSampler(random *rand.Rand) *RandomSampler {
	return &RandomSampler{random: random}
}

// NewSeededSampler creates a sampler with its own deterministic generator
func NewSeededSampler(seed int64) *RandomSampler {
	return NewRandomSampler(rand.New(rand.NewSource(seed)))
}

// Get1D returns a random float64 in [0, 1)
func (r *RandomSampler) Get1D() float64 {
	return r.random.Float64()
}

// Get2D returns two random float64 values in [0, 1)
func (r *RandomSampler) Get2D() Vec2 {
	return NewVec2(r.random.Float64(), r.random.Float64())
}

// SampleCosineHemisphereLocal returns a cosine-weighted direction around +Z
// in a local shading frame.
func SampleCosineHemisphereLocal(sample Vec2) Vec3 {
	a := 2.0 * math.Pi * sample.X
	r := math.Sqrt(sample.Y)

	x := r * math.Cos(a)
	y := r * math.Sin(a)
	z := math.Sqrt(math.Max(0, 1.0-sample.Y))

	return NewVec3(x, y, z)
}

// Frame is an orthonormal basis with N as the local Z axis
type Frame struct {
	T, B, N Vec3
}

// NewFrame builds a tangent frame around normal. The tangent follows the
// projection of hint onto the tangent plane; when hint is parallel to the
// normal an arbitrary perpendicular axis is used instead.
func NewFrame(normal, hint Vec3) Frame {
	n := normal.Normalize()
	t := hint.Subtract(n.Multiply(hint.Dot(n)))
	if t.LengthSquared() < 1e-12 {
		// Find a vector perpendicular to normal
		var nt Vec3
		if math.Abs(n.X) > 0.1 {
			nt = NewVec3(0, 1, 0)
		} else {
			nt = NewVec3(1, 0, 0)
		}
		t = nt.Cross(n)
	}
	t = t.Normalize()
	return Frame{T: t, B: n.Cross(t), N: n}
}

// ToLocal expresses a world-space vector in the frame
func (f Frame) ToLocal(v Vec3) Vec3 {
	return Vec3{v.Dot(f.T), v.Dot(f.B), v.Dot(f.N)}
}

// ToWorld converts a local vector back to world space
func (f Frame) ToWorld(v Vec3) Vec3 {
	return f.T.Multiply(v.X).Add(f.B.Multiply(v.Y)).Add(f.N.Multiply(v.Z))
}
