// Package integrator computes the radiance arriving along a camera ray.
package integrator

import (
	"math"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
)

// Integrator defines the interface for light transport algorithms
type Integrator interface {
	// Trace returns the radiance along ray through the scene described by
	// tree and materials, scattering at most maxBounces times.
	Trace(tree *bvh.Tree, materials []material.Material, sampler core.Sampler, ray core.Ray, maxBounces int) core.Vec3
}

// Sky is the environment seen by rays that leave the scene: a smooth lobe
// of Color around Direction, sharper for larger Exponent. Exponent 0 gives
// a uniform sky.
type Sky struct {
	Direction core.Vec3
	Color     core.Vec3
	Exponent  float64
}

// DefaultSky returns a soft white sky lit from slightly off vertical
func DefaultSky() Sky {
	return Sky{
		Direction: core.NewVec3(0.3, 1.0, 0.2),
		Color:     core.NewVec3(1, 1, 1),
		Exponent:  4,
	}
}

// Radiance returns the sky color seen in unit direction d
func (s Sky) Radiance(d core.Vec3) core.Vec3 {
	l := s.Direction.Normalize()
	t := 0.5 * (1 + d.Dot(l))
	if t < 0 {
		t = 0
	}
	return s.Color.Multiply(math.Pow(t, s.Exponent))
}
