package integrator

import (
	"math"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
)

// DefaultEpsilon is the distance new rays are pushed off a surface
const DefaultEpsilon = 1e-4

// PathTracer implements unidirectional path tracing with Russian roulette.
// Lights are only found by hitting emissive triangles.
type PathTracer struct {
	Sky     Sky
	Epsilon float64
}

// NewPathTracer creates a path tracer with the default sky and epsilon
func NewPathTracer() *PathTracer {
	return &PathTracer{Sky: DefaultSky(), Epsilon: DefaultEpsilon}
}

// TraceRay traces with a default path tracer
func TraceRay(tree *bvh.Tree, materials []material.Material, sampler core.Sampler, ray core.Ray, maxBounces int) core.Vec3 {
	return NewPathTracer().Trace(tree, materials, sampler, ray, maxBounces)
}

// Trace computes the radiance for a single ray. The primary hit is bounce
// 0; up to maxBounces scattered rays follow it.
func (pt *PathTracer) Trace(tree *bvh.Tree, materials []material.Material, sampler core.Sampler, ray core.Ray, maxBounces int) core.Vec3 {
	epsilon := pt.Epsilon
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	radiance := core.Vec3{}
	throughput := core.Splat(1)
	ior := 1.0 // Medium the ray currently travels through
	ray.Direction = ray.Direction.Normalize()

	for bounce := 0; ; bounce++ {
		var hit bvh.Hit
		found := false
		if tree != nil {
			hit, found = tree.TestRay(ray, 0, math.Inf(1))
		}
		if !found {
			radiance = radiance.Add(throughput.MultiplyVec(pt.Sky.Radiance(ray.Direction)))
			break
		}

		tri := hit.Triangle
		mat := lookupMaterial(materials, tri.Material)
		if mat.Kind == material.Emissive {
			radiance = radiance.Add(throughput.MultiplyVec(mat.Emission))
			break
		}
		if bounce >= maxBounces {
			break
		}

		// Shading frame from the interpolated normal, tangent toward the ray
		normal := tri.ShadingNormal(hit.U, hit.V)
		frame := core.NewFrame(normal, ray.Direction)
		wo := frame.ToLocal(ray.Direction.Negate())

		sample, scattered := mat.Sample(wo, ior, sampler)
		if !scattered {
			break
		}
		weight := sample.Weight()
		if weight.IsZero() {
			break
		}
		throughput = throughput.MultiplyVec(weight)
		ior = sample.IOR

		// Offset along the geometric normal to the side the new ray leaves from
		geometric := tri.GeometricNormal()
		if geometric.Dot(normal) < 0 {
			geometric = geometric.Negate()
		}
		if sample.Direction.Z < 0 {
			geometric = geometric.Negate()
		}
		origin := ray.At(hit.T).Add(geometric.Multiply(epsilon))
		ray = core.NewRay(origin, frame.ToWorld(sample.Direction).Normalize())

		// Russian roulette
		survival := math.Min(1, throughput.MaxComponent())
		if survival <= 0 {
			break
		}
		if survival < 1 {
			if sampler.Get1D() >= survival {
				break
			}
			throughput = throughput.Multiply(1 / survival)
		}
	}
	return radiance
}

// lookupMaterial returns the material for a triangle index; anything out of
// range shades as black diffuse.
func lookupMaterial(materials []material.Material, index int) material.Material {
	if index < 0 || index >= len(materials) {
		return material.Neutral()
	}
	return materials[index]
}
