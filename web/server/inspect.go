package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/material"
	"github.com/df07/go-scene-raytracer/pkg/renderer"
)

// InspectResponse represents the JSON response for object inspection
type InspectResponse struct {
	Hit           bool                   `json:"hit"`
	MaterialType  string                 `json:"materialType,omitempty"`
	MaterialIndex int                    `json:"materialIndex"`
	Point         [3]float64             `json:"point"`
	Normal        [3]float64             `json:"normal"`
	Distance      float64                `json:"distance"`
	UV            [2]float64             `json:"uv"` // Barycentric coordinates
	FrontFace     bool                   `json:"frontFace"`
	Properties    map[string]interface{} `json:"properties,omitempty"`
}

// extractMaterialInfo extracts the parameters relevant to the material kind
func extractMaterialInfo(mat material.Material) (string, map[string]interface{}) {
	properties := make(map[string]interface{})

	switch mat.Kind {
	case material.Diffuse:
		properties["albedo"] = toArray(mat.Albedo)
		properties["color"] = hexColor(mat.Albedo)
		return "diffuse", properties

	case material.Glass:
		properties["refractiveIndex"] = mat.IOR
		properties["tint"] = toArray(mat.Albedo)
		properties["color"] = hexColor(mat.Albedo)
		return "glass", properties

	case material.Emissive:
		properties["emission"] = toArray(mat.Emission)
		properties["color"] = hexColor(mat.Emission.Clamp(0, 1))
		return "emissive", properties

	default:
		return "unknown", properties
	}
}

func hexColor(c core.Vec3) string {
	c = c.Clamp(0, 1)
	return fmt.Sprintf("#%02x%02x%02x", int(c.X*255), int(c.Y*255), int(c.Z*255))
}

// inspectPixel casts a ray through the center of the pixel and returns the
// closest triangle hit
func inspectPixel(snapshot *renderer.Snapshot, camera renderer.CameraConfig, viewport renderer.Viewport, pixelX, pixelY int) InspectResponse {
	if snapshot.Empty() {
		return InspectResponse{MaterialIndex: -1}
	}

	cam := renderer.NewCamera(camera, viewport.AspectRatio())
	ray := cam.GetPixelRay(float64(pixelX)+0.5, float64(pixelY)+0.5, viewport)

	hit, ok := snapshot.Tree.TestRay(ray, 1e-4, math.Inf(1))
	if !ok {
		return InspectResponse{MaterialIndex: -1}
	}
	return describeHit(ray, hit, snapshot.Materials)
}

func describeHit(ray core.Ray, hit bvh.Hit, materials []material.Material) InspectResponse {
	tri := hit.Triangle
	normal := tri.ShadingNormal(hit.U, hit.V)
	frontFace := ray.Direction.Dot(tri.GeometricNormal()) < 0
	if !frontFace {
		normal = normal.Negate()
	}

	resp := InspectResponse{
		Hit:           true,
		MaterialIndex: tri.Material,
		Point:         toArray(ray.At(hit.T)),
		Normal:        toArray(normal),
		Distance:      hit.T,
		UV:            [2]float64{hit.U, hit.V},
		FrontFace:     frontFace,
	}
	if tri.Material >= 0 && tri.Material < len(materials) {
		resp.MaterialType, resp.Properties = extractMaterialInfo(materials[tri.Material])
	} else {
		resp.MaterialType = "unknown"
	}
	return resp
}

// handleInspect handles ray casting inspection requests
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	camera, viewport := s.camera, s.viewport
	s.mu.Unlock()

	// Parse pixel coordinates
	pixelX, err := strconv.Atoi(r.URL.Query().Get("x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid x coordinate")
		return
	}
	pixelY, err := strconv.Atoi(r.URL.Query().Get("y"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid y coordinate")
		return
	}

	// Validate pixel coordinates
	if pixelX < 0 || pixelX >= viewport.Width || pixelY < 0 || pixelY >= viewport.Height {
		writeError(w, http.StatusBadRequest, "Pixel coordinates out of bounds")
		return
	}

	snapshot := s.session.Snapshot()
	if snapshot == nil {
		writeError(w, http.StatusServiceUnavailable, "No tree yet")
		return
	}

	writeJSON(w, http.StatusOK, inspectPixel(snapshot, camera, viewport, pixelX, pixelY))
}
