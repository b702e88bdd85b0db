package material

import (
	"math"

	"github.com/df07/go-scene-raytracer/pkg/core"
)

// Sample is the result of sampling a material. All directions are in the
// local shading frame where +Z is the surface normal.
type Sample struct {
	Direction core.Vec3 // New ray direction (unit length)
	BSDF      core.Vec3 // BSDF weight for the sampled direction
	PDF       float64   // Probability density of the sampled direction
	IOR       float64   // Index of refraction of the medium the new ray travels in
	Specular  bool      // Delta distribution (glass)
}

// Weight returns BSDF/PDF, the factor applied to the path throughput
func (s Sample) Weight() core.Vec3 {
	if s.PDF <= 0 {
		return core.Vec3{}
	}
	return s.BSDF.Multiply(1 / s.PDF)
}

// Sample draws a new direction. wo points away from the surface toward
// where the ray came from; ior is the index of the medium the ray arrived
// through. Emissive materials do not scatter and return false.
func (m Material) Sample(wo core.Vec3, ior float64, sampler core.Sampler) (Sample, bool) {
	switch m.Kind {
	case Diffuse:
		return m.sampleDiffuse(wo, ior, sampler), true
	case Glass:
		return m.sampleGlass(wo, ior, sampler), true
	case Emissive:
		return Sample{}, false
	}
	return Sample{}, false
}

// sampleDiffuse draws a cosine-weighted direction on the side wo is on.
// The cosine term cancels against the pdf so the weight is the albedo.
func (m Material) sampleDiffuse(wo core.Vec3, ior float64, sampler core.Sampler) Sample {
	wi := core.SampleCosineHemisphereLocal(sampler.Get2D())
	if wo.Z < 0 {
		wi.Z = -wi.Z
	}
	return Sample{
		Direction: wi,
		BSDF:      m.Albedo,
		PDF:       1,
		IOR:       ior,
	}
}

// sampleGlass picks reflection or refraction with probability given by the
// Fresnel reflectance, so the Fresnel factor cancels out of the weight.
func (m Material) sampleGlass(wo core.Vec3, ior float64, sampler core.Sampler) Sample {
	entering := wo.Z > 0
	etaI, etaT := ior, m.IOR
	if !entering {
		// Single level of nesting: leaving glass always goes back to vacuum
		etaI, etaT = m.IOR, 1.0
	}

	cosI := math.Abs(wo.Z)
	reflectance := FresnelDielectric(cosI, etaI, etaT)

	if sampler.Get1D() < reflectance {
		return Sample{
			Direction: core.NewVec3(-wo.X, -wo.Y, wo.Z),
			BSDF:      m.Albedo,
			PDF:       1,
			IOR:       etaI,
			Specular:  true,
		}
	}

	eta := etaI / etaT
	sin2T := eta * eta * math.Max(0, 1-cosI*cosI)
	cosT := math.Sqrt(math.Max(0, 1-sin2T))
	side := 1.0
	if !entering {
		side = -1.0
	}

	return Sample{
		Direction: core.NewVec3(-eta*wo.X, -eta*wo.Y, -cosT*side),
		BSDF:      m.Albedo,
		PDF:       1,
		IOR:       etaT,
		Specular:  true,
	}
}

// FresnelDielectric returns the unpolarized Fresnel reflectance for light
// arriving at cosI from a medium etaI into a medium etaT. Total internal
// reflection returns 1.
func FresnelDielectric(cosI, etaI, etaT float64) float64 {
	cosI = math.Min(1, math.Max(0, cosI))
	sinI := math.Sqrt(math.Max(0, 1-cosI*cosI))
	sinT := etaI / etaT * sinI
	if sinT >= 1 {
		return 1
	}
	cosT := math.Sqrt(math.Max(0, 1-sinT*sinT))

	rParallel := (etaT*cosI - etaI*cosT) / (etaT*cosI + etaI*cosT)
	rPerpendicular := (etaI*cosI - etaT*cosT) / (etaI*cosI + etaT*cosT)
	return (rParallel*rParallel + rPerpendicular*rPerpendicular) / 2
}
