package renderer

import (
	"math"

	"github.com/df07/go-scene-raytracer/pkg/core"
)

// CameraConfig places a pinhole camera
type CameraConfig struct {
	Center core.Vec3 // Eye position
	LookAt core.Vec3 // Point the camera looks at
	Up     core.Vec3 // Approximate up direction
	VFov   float64   // Vertical field of view in degrees
}

// CameraFromView builds a config from a camera node's world transform.
// The camera looks down its local -Z axis with +Y up.
func CameraFromView(world core.Transform, vfov float64) CameraConfig {
	center := world.Point(core.Vec3{})
	return CameraConfig{
		Center: center,
		LookAt: center.Add(world.Vector(core.NewVec3(0, 0, -1))),
		Up:     world.Vector(core.NewVec3(0, 1, 0)),
		VFov:   vfov,
	}
}

// Viewport is the pixel size of the image being rendered
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AspectRatio returns width over height, 1 for a degenerate viewport
func (v Viewport) AspectRatio() float64 {
	if v.Width <= 0 || v.Height <= 0 {
		return 1
	}
	return float64(v.Width) / float64(v.Height)
}

// Empty reports whether the viewport has no pixels
func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

// Camera generates rays for rendering
type Camera struct {
	origin          core.Vec3
	lowerLeftCorner core.Vec3
	horizontal      core.Vec3
	vertical        core.Vec3
	forward         core.Vec3
}

// NewCamera creates a camera for the given config and image aspect ratio
func NewCamera(config CameraConfig, aspectRatio float64) *Camera {
	vfov := config.VFov
	if vfov <= 0 || vfov >= 180 {
		vfov = 40
	}
	if aspectRatio <= 0 {
		aspectRatio = 1
	}

	theta := vfov * math.Pi / 180
	viewportHeight := 2.0 * math.Tan(theta/2)
	viewportWidth := aspectRatio * viewportHeight

	// Orthonormal basis
	w := config.Center.Subtract(config.LookAt).Normalize()
	if w.IsZero() {
		w = core.NewVec3(0, 0, 1)
	}
	up := config.Up
	if up.Cross(w).LengthSquared() < 1e-24 {
		up = core.NewVec3(0, 1, 0)
		if math.Abs(w.Y) > 0.999 {
			up = core.NewVec3(0, 0, 1)
		}
	}
	u := up.Cross(w).Normalize()
	v := w.Cross(u)

	origin := config.Center
	horizontal := u.Multiply(viewportWidth)
	vertical := v.Multiply(viewportHeight)
	lowerLeftCorner := origin.Subtract(horizontal.Multiply(0.5)).
		Subtract(vertical.Multiply(0.5)).
		Subtract(w)

	return &Camera{
		origin:          origin,
		horizontal:      horizontal,
		vertical:        vertical,
		lowerLeftCorner: lowerLeftCorner,
		forward:         w.Negate(),
	}
}

// GetRay generates a ray for screen coordinates (s, t) where 0 <= s,t <= 1
// and (0, 0) is the lower left corner.
func (c *Camera) GetRay(s, t float64) core.Ray {
	direction := c.lowerLeftCorner.
		Add(c.horizontal.Multiply(s)).
		Add(c.vertical.Multiply(t)).
		Subtract(c.origin)

	return core.NewRay(c.origin, direction.Normalize())
}

// GetPixelRay generates a ray through continuous image coordinates where
// (0, 0) is the top left corner of the image and pixel (i, j) covers
// [i, i+1) x [j, j+1).
func (c *Camera) GetPixelRay(x, y float64, viewport Viewport) core.Ray {
	s := x / float64(viewport.Width)
	t := 1 - y/float64(viewport.Height)
	return c.GetRay(s, t)
}

// GetCameraForward returns the unit viewing direction
func (c *Camera) GetCameraForward() core.Vec3 {
	return c.forward
}
