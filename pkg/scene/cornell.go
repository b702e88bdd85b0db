package scene

import (
	"math"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
)

// cornellSize is the classic 555 unit box
const cornellSize = 555.0

// NewCornellBox creates the Cornell box: five walls, a ceiling area light,
// a tall white block, a glass sphere and a camera looking in through the
// open side.
func NewCornellBox() *Tree {
	t := NewTree()
	root := t.Root()

	// Create materials
	white := t.NewMaterial("white", material.NewDiffuse(core.NewVec3(0.73, 0.73, 0.73)))
	red := t.NewMaterial("red", material.NewDiffuse(core.NewVec3(0.65, 0.05, 0.05)))
	green := t.NewMaterial("green", material.NewDiffuse(core.NewVec3(0.12, 0.45, 0.15)))
	glass := t.NewMaterial("glass", material.NewGlass(1.5))
	lamp := t.NewMaterial("lamp", material.NewEmissive(core.NewVec3(15, 15, 15)))

	s := cornellSize
	x := core.NewVec3(s, 0, 0)
	y := core.NewVec3(0, s, 0)
	z := core.NewVec3(0, 0, s)

	// Walls face into the box
	floor := t.NewMesh(QuadMesh("floor", core.Vec3{}, z, x, white))
	ceiling := t.NewMesh(QuadMesh("ceiling", y, x, z, white))
	back := t.NewMesh(QuadMesh("back", z, y, x, white))
	left := t.NewMesh(QuadMesh("left", core.Vec3{}, y, z, red))
	right := t.NewMesh(QuadMesh("right", x, z, y, green))
	_, _ = t.AddModel(root, "walls", core.Identity(), floor, ceiling, back, left, right)

	// Light hangs just below the ceiling, emitting downward
	lightTransform := core.Translate(core.NewVec3(s/2, s-1, s/2)).Mul(core.RotateX(-math.Pi / 2))
	_, _ = t.AddLight(root, "ceiling light", lightTransform, LightParams{Size: 130, Material: lamp})

	props, _ := t.AddGroup(root, "props", core.Identity())

	block := t.NewMesh(BoxMesh("block", core.NewVec3(82.5, 165, 82.5), white))
	blockTransform := core.Translate(core.NewVec3(185, 165, 169)).Mul(core.RotateY(15 * math.Pi / 180))
	_, _ = t.AddModel(props, "tall block", blockTransform, block)

	sphere := t.NewMesh(SphereMesh("sphere", 90, 24, 48, glass))
	_, _ = t.AddModel(props, "glass sphere", core.Translate(core.NewVec3(370, 90, 351)), sphere)

	eye := core.NewVec3(278, 278, -800)
	_, _ = t.AddCamera(root, "camera", core.LookAt(eye, core.NewVec3(278, 278, 0), core.NewVec3(0, 1, 0)), Lens{VFov: 40})

	return t
}

// NewEmptyScene creates a scene with only a camera
func NewEmptyScene() *Tree {
	t := NewTree()
	eye := core.NewVec3(0, 1, 5)
	_, _ = t.AddCamera(t.Root(), "camera", core.LookAt(eye, core.Vec3{}, core.NewVec3(0, 1, 0)), Lens{VFov: 45})
	return t
}

// NewSphereGrid creates a ground plane with a grid of small spheres under
// the open sky. Useful for exercising the BVH with many separate objects.
func NewSphereGrid(gridSize int) *Tree {
	t := NewTree()
	root := t.Root()

	ground := t.NewMaterial("ground", material.NewDiffuse(core.NewVec3(0.5, 0.5, 0.5)))
	groundMesh := t.NewMesh(QuadMesh("ground", core.NewVec3(-50, 0, 50), core.NewVec3(100, 0, 0), core.NewVec3(0, 0, -100), ground))
	_, _ = t.AddModel(root, "ground", core.Identity(), groundMesh)

	grid, _ := t.AddGroup(root, "grid", core.Identity())
	spacing := 1.0
	offset := float64(gridSize-1) * spacing / 2
	for i := 0; i < gridSize; i++ {
		for j := 0; j < gridSize; j++ {
			// Checker the albedo so neighbouring spheres are distinguishable
			albedo := core.NewVec3(0.8, 0.3, 0.2)
			if (i+j)%2 == 1 {
				albedo = core.NewVec3(0.2, 0.4, 0.8)
			}
			mat := t.NewMaterial("sphere", material.NewDiffuse(albedo))
			mesh := t.NewMesh(SphereMesh("sphere", 0.35, 8, 16, mat))
			pos := core.NewVec3(float64(i)*spacing-offset, 0.35, float64(j)*spacing-offset)
			_, _ = t.AddModel(grid, "sphere", core.Translate(pos), mesh)
		}
	}

	eye := core.NewVec3(0, float64(gridSize), float64(gridSize)*1.5)
	_, _ = t.AddCamera(root, "camera", core.LookAt(eye, core.Vec3{}, core.NewVec3(0, 1, 0)), Lens{VFov: 40})
	return t
}
