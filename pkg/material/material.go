// Package material holds the render-side material model. Materials are a
// closed set of kinds; code that handles them switches on Kind.
package material

import (
	"fmt"

	"github.com/df07/go-scene-raytracer/pkg/core"
)

// Kind tags which variant a Material is
type Kind uint8

const (
	Diffuse Kind = iota
	Glass
	Emissive
)

func (k Kind) String() string {
	switch k {
	case Diffuse:
		return "diffuse"
	case Glass:
		return "glass"
	case Emissive:
		return "emissive"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Material is a tagged union of the supported surface models.
// Only the fields relevant to Kind are meaningful:
//   - Diffuse uses Albedo
//   - Glass uses Albedo as a transmission tint and IOR
//   - Emissive uses Emission
type Material struct {
	Kind     Kind
	Albedo   core.Vec3
	IOR      float64
	Emission core.Vec3
}

// NewDiffuse creates a lambertian material
func NewDiffuse(albedo core.Vec3) Material {
	return Material{Kind: Diffuse, Albedo: albedo}
}

// NewGlass creates a clear dielectric with the given index of refraction
func NewGlass(ior float64) Material {
	return Material{Kind: Glass, Albedo: core.Splat(1), IOR: ior}
}

// NewTintedGlass creates a dielectric that filters transmitted and reflected light
func NewTintedGlass(ior float64, tint core.Vec3) Material {
	return Material{Kind: Glass, Albedo: tint, IOR: ior}
}

// NewEmissive creates a light-emitting material
func NewEmissive(emission core.Vec3) Material {
	return Material{Kind: Emissive, Emission: emission}
}

// Neutral is used for unassigned material slots; it absorbs everything.
func Neutral() Material {
	return NewDiffuse(core.Vec3{})
}

// Validate reports parameters the kernel cannot use
func (m Material) Validate() error {
	switch m.Kind {
	case Diffuse:
		if !m.Albedo.IsFinite() {
			return fmt.Errorf("diffuse albedo %v is not finite", m.Albedo)
		}
	case Glass:
		if m.IOR <= 0 {
			return fmt.Errorf("glass ior %g must be positive", m.IOR)
		}
	case Emissive:
		if !m.Emission.IsFinite() {
			return fmt.Errorf("emission %v is not finite", m.Emission)
		}
	default:
		return fmt.Errorf("unknown material kind %v", m.Kind)
	}
	return nil
}
