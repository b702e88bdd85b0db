package scene

import (
	"fmt"
	"sort"
)

// SceneInfo describes a built-in scene
type SceneInfo struct {
	ID          string `json:"id"`          // Unique identifier
	DisplayName string `json:"displayName"` // UI display name
	Description string `json:"description"` // Optional description
}

type builtin struct {
	info  SceneInfo
	build func() *Tree
}

var builtins = map[string]builtin{
	"cornell": {
		info:  SceneInfo{ID: "cornell", DisplayName: "Cornell Box", Description: "Classic Cornell box with an area light, a block and a glass sphere"},
		build: NewCornellBox,
	},
	"spheregrid": {
		info:  SceneInfo{ID: "spheregrid", DisplayName: "Sphere Grid", Description: "Grid of diffuse spheres under the sky"},
		build: func() *Tree { return NewSphereGrid(10) },
	},
	"empty": {
		info:  SceneInfo{ID: "empty", DisplayName: "Empty", Description: "Nothing but sky"},
		build: NewEmptyScene,
	},
}

// ListBuiltin returns the built-in scenes sorted by ID
func ListBuiltin() []SceneInfo {
	scenes := make([]SceneInfo, 0, len(builtins))
	for _, b := range builtins {
		scenes = append(scenes, b.info)
	}
	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].ID < scenes[j].ID
	})
	return scenes
}

// LoadBuiltin builds a fresh copy of the named built-in scene
func LoadBuiltin(id string) (*Tree, error) {
	b, ok := builtins[id]
	if !ok {
		return nil, fmt.Errorf("unknown scene %q", id)
	}
	return b.build(), nil
}
