package loaders

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
	"github.com/df07/go-scene-raytracer/pkg/scene"
)

// LoadPLYScene loads a PLY model and stages it with a light and a camera
func LoadPLYScene(filename string) (*scene.Tree, error) {
	mesh, err := LoadPLY(filename)
	if err != nil {
		return nil, err
	}
	if len(mesh.Indices) == 0 {
		return nil, fmt.Errorf("%s: no faces", filename)
	}
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return NewMeshScene(name, mesh), nil
}

// NewMeshScene places the mesh on a ground quad under a square area
// light, with a camera framing its bounds from the front.
func NewMeshScene(name string, mesh *PLYMesh) *scene.Tree {
	t := scene.NewTree()
	root := t.Root()

	bounds := mesh.Bounds()
	center := bounds.Center()
	radius := max(bounds.Size().Length()/2, 1e-3)

	surface := t.NewMaterial("surface", material.NewDiffuse(core.NewVec3(0.7, 0.7, 0.7)))
	ground := t.NewMaterial("ground", material.NewDiffuse(core.NewVec3(0.4, 0.4, 0.4)))
	lamp := t.NewMaterial("lamp", material.NewEmissive(core.NewVec3(8, 8, 8)))

	model := t.NewMesh(mesh.Mesh(name, surface))
	_, _ = t.AddModel(root, name, core.Identity(), model)

	// Ground spans four radii around the model, just under its lowest point
	g := 4 * radius
	floorY := bounds.Min.Y - 1e-3*radius
	floor := t.NewMesh(scene.QuadMesh("ground",
		core.NewVec3(center.X-g, floorY, center.Z+g), core.NewVec3(2*g, 0, 0), core.NewVec3(0, 0, -2*g), ground))
	_, _ = t.AddModel(root, "ground", core.Identity(), floor)

	lightPos := core.NewVec3(center.X, bounds.Max.Y+2*radius, center.Z)
	_, _ = t.AddLight(root, "key light", core.Translate(lightPos).Mul(core.RotateX(-math.Pi/2)),
		scene.LightParams{Size: 2 * radius, Material: lamp})

	eye := center.Add(core.NewVec3(0, 0.5*radius, 3*radius))
	_, _ = t.AddCamera(root, "camera", core.LookAt(eye, center, core.NewVec3(0, 1, 0)), scene.Lens{VFov: 40})
	return t
}
