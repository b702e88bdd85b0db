// Package cache keeps the render-side copy of the scene: world-space
// triangles per node and a dense material table, updated incrementally by
// diffing the scene graph on every pass.
package cache

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/geometry"
	"github.com/df07/go-scene-raytracer/pkg/log"
	"github.com/df07/go-scene-raytracer/pkg/material"
	"github.com/df07/go-scene-raytracer/pkg/scene"
)

var logger = log.New("cache")

// DefaultMaterialGarbageLimit is the number of stale material entries
// tolerated before the material table is rebuilt densely.
const DefaultMaterialGarbageLimit = 64

// Options tunes the cache
type Options struct {
	MaterialGarbageLimit int
	Parallelism          int // Concurrent dissolves; 0 means one per CPU
}

// DefaultOptions returns the standard cache settings
func DefaultOptions() Options {
	return Options{MaterialGarbageLimit: DefaultMaterialGarbageLimit}
}

// meshKey is what a mesh entry is compared by. Pointers are never compared.
type meshKey struct {
	ID       scene.MeshID
	Revision uint64
	Material scene.MaterialID
}

type lightKey struct {
	Size     float64
	Material scene.MaterialID
}

type meshEntry struct {
	generation uint64
	visit      scene.Visit
	world      core.Transform
	meshes     []meshKey
	light      lightKey
	triangles  []geometry.Triangle
	dirty      bool
}

type materialEntry struct {
	generation uint64
	index      int
	params     material.Material
}

// Cache is not safe for concurrent use; one owner drives UpdateFromScene
// and the queries.
type Cache struct {
	opts       Options
	generation uint64

	meshes    map[scene.NodeID]*meshEntry
	materials map[scene.MaterialID]*materialEntry
	nextIndex int
	garbage   int

	stats Stats
}

// New creates an empty cache
func New(opts Options) *Cache {
	if opts.MaterialGarbageLimit <= 0 {
		opts.MaterialGarbageLimit = DefaultMaterialGarbageLimit
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	return &Cache{
		opts:      opts,
		meshes:    make(map[scene.NodeID]*meshEntry),
		materials: make(map[scene.MaterialID]*materialEntry),
	}
}

// UpdateFromScene diffs the graph against the cache. materialsChanged is
// set when any material entry was added or changed parameters (or the
// table was compacted); meshesChanged when any node's triangles were
// regenerated or removed.
func (c *Cache) UpdateFromScene(graph scene.Graph) (materialsChanged, meshesChanged bool) {
	c.generation++
	gen := c.generation

	// Collect the visible nodes that carry geometry
	var visits []scene.Visit
	graph.Walk(func(v scene.Visit) bool {
		if !v.Visible {
			return true
		}
		switch v.Kind {
		case scene.Model:
			if len(v.Meshes) > 0 {
				visits = append(visits, v)
			}
		case scene.Light:
			if v.Light != nil {
				visits = append(visits, v)
			}
		case scene.Group, scene.Camera:
		}
		return true
	})

	materialsChanged, rebuilt := c.updateMaterials(visits, gen)

	// Mesh pass
	var dirty []*meshEntry
	for _, v := range visits {
		entry, ok := c.meshes[v.ID]
		if !ok {
			entry = &meshEntry{dirty: true}
			c.meshes[v.ID] = entry
		}
		entry.generation = gen
		entry.visit = v

		keys, light := keysOf(v)
		if rebuilt || !entry.world.Equal(v.World) || !equalKeys(entry.meshes, keys) || entry.light != light {
			entry.dirty = true
		}
		entry.world = v.World
		entry.meshes = keys
		entry.light = light

		if entry.dirty {
			dirty = append(dirty, entry)
		}
	}
	c.dissolve(dirty)
	meshesChanged = len(dirty) > 0

	// Evict entries not seen this pass
	evicted := 0
	for id, entry := range c.meshes {
		if entry.generation != gen {
			delete(c.meshes, id)
			evicted++
		}
	}
	if evicted > 0 {
		meshesChanged = true
	}

	c.stats.Generation = gen
	c.stats.Dissolved = len(dirty)
	c.stats.Evicted = evicted
	c.stats.Nodes = len(c.meshes)
	c.stats.Materials = len(c.materials)
	c.stats.Garbage = c.garbage
	c.stats.Triangles = 0
	for _, entry := range c.meshes {
		c.stats.Triangles += len(entry.triangles)
	}

	if materialsChanged || meshesChanged {
		logger.Debugf("generation %d: %d dissolved, %d evicted, %d materials (%d stale)",
			gen, len(dirty), evicted, len(c.materials), c.garbage)
	}
	return materialsChanged, meshesChanged
}

// updateMaterials assigns indices to every material referenced this pass.
// It reports whether any entry changed and whether the table was rebuilt.
func (c *Cache) updateMaterials(visits []scene.Visit, gen uint64) (changed, rebuilt bool) {
	var referenced []*scene.Material
	for _, v := range visits {
		for _, m := range materialsOf(v) {
			entry, ok := c.materials[m.ID]
			if ok && entry.generation == gen {
				continue
			}
			referenced = append(referenced, m)

			if !ok {
				entry = &materialEntry{index: c.nextIndex, params: m.Render}
				c.nextIndex++
				c.materials[m.ID] = entry
				changed = true
			} else if entry.params != m.Render {
				entry.params = m.Render
				changed = true
			}
			entry.generation = gen
		}
	}

	c.garbage = 0
	for _, entry := range c.materials {
		if entry.generation != gen {
			c.garbage++
		}
	}
	if c.garbage <= c.opts.MaterialGarbageLimit {
		return changed, false
	}

	// Too many stale slots: compact to the referenced set in first-use order
	logger.Infof("compacting material table: %d stale of %d", c.garbage, len(c.materials))
	c.materials = make(map[scene.MaterialID]*materialEntry, len(referenced))
	for i, m := range referenced {
		c.materials[m.ID] = &materialEntry{generation: gen, index: i, params: m.Render}
	}
	c.nextIndex = len(referenced)
	c.garbage = 0
	c.stats.Rebuilds++
	return true, true
}

// dissolve regenerates the triangles of dirty entries in parallel.
// The material map is only read while the goroutines run.
func (c *Cache) dissolve(dirty []*meshEntry) {
	if len(dirty) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for _, entry := range dirty {
		g.Go(func() error {
			tris, err := geometry.Dissolve(entry.visit, c.indexOf)
			if err != nil {
				logger.Errorf("dissolve: %v", err)
			}
			entry.triangles = tris
			entry.dirty = false
			return nil
		})
	}
	_ = g.Wait()
}

// indexOf maps a material to its table slot; unknown or nil maps to -1
func (c *Cache) indexOf(m *scene.Material) int {
	if m == nil {
		return -1
	}
	if entry, ok := c.materials[m.ID]; ok {
		return entry.index
	}
	return -1
}

// Triangles returns every cached triangle in a fresh slice, ordered by node
// ID so equal scenes produce equal output.
func (c *Cache) Triangles() []geometry.Triangle {
	ids := make([]scene.NodeID, 0, len(c.meshes))
	total := 0
	for id, entry := range c.meshes {
		ids = append(ids, id)
		total += len(entry.triangles)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tris := make([]geometry.Triangle, 0, total)
	for _, id := range ids {
		tris = append(tris, c.meshes[id].triangles...)
	}
	return tris
}

// Materials returns the material table indexed by triangle material index.
// Unused slots hold the neutral material.
func (c *Cache) Materials() []material.Material {
	out := make([]material.Material, c.nextIndex)
	for i := range out {
		out[i] = material.Neutral()
	}
	for _, entry := range c.materials {
		if entry.index >= 0 && entry.index < len(out) {
			out[entry.index] = entry.params
		}
	}
	return out
}

// Bounds returns the world bounds of all cached triangles
func (c *Cache) Bounds() core.AABB {
	box := core.EmptyAABB()
	for _, entry := range c.meshes {
		for i := range entry.triangles {
			box = box.Union(entry.triangles[i].BoundingBox())
		}
	}
	return box
}

// Stats returns counters from the last update
func (c *Cache) Stats() Stats {
	return c.stats
}

// MaterialIndex returns the table slot of a material, if it is cached
func (c *Cache) MaterialIndex(id scene.MaterialID) (int, bool) {
	entry, ok := c.materials[id]
	if !ok {
		return 0, false
	}
	return entry.index, true
}

func keysOf(v scene.Visit) ([]meshKey, lightKey) {
	var keys []meshKey
	for _, m := range v.Meshes {
		if m == nil {
			continue
		}
		key := meshKey{ID: m.ID, Revision: m.Revision}
		if m.Material != nil {
			key.Material = m.Material.ID
		}
		keys = append(keys, key)
	}

	var light lightKey
	if v.Kind == scene.Light && v.Light != nil {
		light.Size = v.Light.Size
		if v.Light.Material != nil {
			light.Material = v.Light.Material.ID
		}
	}
	return keys, light
}

func materialsOf(v scene.Visit) []*scene.Material {
	var out []*scene.Material
	for _, m := range v.Meshes {
		if m != nil && m.Material != nil {
			out = append(out, m.Material)
		}
	}
	if v.Kind == scene.Light && v.Light != nil && v.Light.Material != nil {
		out = append(out, v.Light.Material)
	}
	return out
}

func equalKeys(a, b []meshKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
