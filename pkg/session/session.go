// Package session drives progressive rendering of a live scene. Each call
// to Tick diffs the scene, schedules BVH rebuilds on background tasks and
// restarts the rendering job once a complete snapshot is available.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/cache"
	"github.com/df07/go-scene-raytracer/pkg/integrator"
	"github.com/df07/go-scene-raytracer/pkg/log"
	"github.com/df07/go-scene-raytracer/pkg/renderer"
	"github.com/df07/go-scene-raytracer/pkg/scene"
	"github.com/df07/go-scene-raytracer/pkg/task"
)

var logger = log.New("session")

// Options collects the settings of every stage
type Options struct {
	Cache   cache.Options
	Build   bvh.BuildOptions
	Tree    bvh.TreeOptions
	Job     renderer.JobConfig
	Sky     integrator.Sky
	Epsilon float64
}

// DefaultOptions returns sensible default values
func DefaultOptions() Options {
	return Options{
		Cache:   cache.DefaultOptions(),
		Build:   bvh.DefaultBuildOptions(),
		Tree:    bvh.TreeOptions{Traversal: bvh.TraverseExact},
		Job:     renderer.DefaultJobConfig(),
		Sky:     integrator.DefaultSky(),
		Epsilon: integrator.DefaultEpsilon,
	}
}

func (o Options) integrator() integrator.Integrator {
	return &integrator.PathTracer{Sky: o.Sky, Epsilon: o.Epsilon}
}

// Session owns the cache, the pending build tasks, the latest snapshot and
// the renderer. It is safe to call from several goroutines but Tick is
// meant to be called from one frame loop.
type Session struct {
	mu       sync.Mutex
	opts     Options
	cache    *cache.Cache
	renderer *renderer.Renderer

	draftTask    *task.Task[*bvh.Draft]
	assembleTask *task.Task[*renderer.Snapshot]
	draft        *bvh.Draft
	snapshot     *renderer.Snapshot
	version      uint64
	stale        bool // Geometry changed since the current snapshot was built
	forceRebuild bool

	camera   renderer.CameraConfig
	viewport renderer.Viewport
	hasView  bool

	builds     int
	assemblies int
	restarts   int
	closed     bool
}

// New creates a session. Nothing happens until the first Tick.
func New(opts Options) *Session {
	return &Session{
		opts:         opts,
		cache:        cache.New(opts.Cache),
		renderer:     renderer.New(opts.Job, opts.integrator()),
		forceRebuild: true,
	}
}

// CameraFromScene returns the camera config of the first camera node
func CameraFromScene(g scene.Graph) (renderer.CameraConfig, bool) {
	v, ok := scene.FindCamera(g)
	if !ok || v.Lens == nil {
		return renderer.CameraConfig{}, false
	}
	return renderer.CameraFromView(v.World, v.Lens.VFov), true
}

// Tick runs one pass of the update loop and never blocks on rendering work
func (s *Session) Tick(graph scene.Graph, camera renderer.CameraConfig, viewport renderer.Viewport) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.statusLocked()
	}

	materialsChanged, meshesChanged := s.cache.UpdateFromScene(graph)
	if s.forceRebuild {
		meshesChanged = true
		s.forceRebuild = false
	}

	switch {
	case meshesChanged:
		// The running job must not outlive the geometry it was built for
		s.renderer.Stop()
		s.stale = true
		s.releaseTasksLocked()
		s.startDraftLocked()
	case materialsChanged && s.draftTask == nil && s.draft != nil:
		s.releaseAssembleLocked()
		s.startAssembleLocked(s.draft)
	}

	if s.draftTask != nil && s.draftTask.IsReady() {
		draft, err := s.draftTask.Wait()
		s.draftTask = nil
		switch {
		case errors.Is(err, context.Canceled):
			logger.Debug("draft build cancelled")
		case err != nil:
			logger.Errorf("draft build failed: %v", err)
		default:
			s.draft = draft
			s.startAssembleLocked(draft)
		}
	}

	restart := false
	if s.assembleTask != nil && s.assembleTask.IsReady() {
		snapshot, err := s.assembleTask.Wait()
		s.assembleTask = nil
		switch {
		case errors.Is(err, context.Canceled):
			logger.Debug("assembly cancelled")
		case err != nil:
			logger.Errorf("assembly failed: %v", err)
		case s.draftTask == nil:
			s.version++
			snapshot.Version = s.version
			s.snapshot = snapshot
			s.stale = false
			restart = true
			logger.Infof("published snapshot v%d: %d triangles, %d materials, bvh height %d",
				snapshot.Version, len(snapshot.Tree.Triangles()), len(snapshot.Materials), snapshot.Tree.Height())
		}
	}

	if !s.hasView || camera != s.camera || viewport != s.viewport {
		s.camera, s.viewport, s.hasView = camera, viewport, true
		restart = true
	}

	if restart && s.snapshot != nil && !s.stale {
		s.renderer.Start(s.snapshot, s.camera, s.viewport)
		s.restarts++
	}

	return s.statusLocked()
}

func (s *Session) startDraftLocked() {
	tris := s.cache.Triangles()
	opts := s.opts.Build
	s.builds++
	logger.Debugf("building draft over %d triangles", len(tris))
	s.draftTask = task.Run(func(ctx context.Context) (*bvh.Draft, error) {
		return bvh.BuildDraft(ctx, tris, opts)
	})
}

func (s *Session) startAssembleLocked(draft *bvh.Draft) {
	materials := s.cache.Materials()
	opts := s.opts.Tree
	s.assemblies++
	s.assembleTask = task.Run(func(ctx context.Context) (*renderer.Snapshot, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tree, err := bvh.Populate(draft, opts)
		if err != nil {
			return nil, err
		}
		return &renderer.Snapshot{Tree: tree, Materials: materials}, nil
	})
}

func (s *Session) releaseAssembleLocked() {
	if s.assembleTask != nil {
		s.assembleTask.Release()
		s.assembleTask = nil
	}
}

func (s *Session) releaseTasksLocked() {
	if s.draftTask != nil {
		s.draftTask.Release()
		s.draftTask = nil
	}
	s.releaseAssembleLocked()
}

// ApplyConfig swaps every setting. The next Tick rebuilds from scratch and
// restarts the job.
func (s *Session) ApplyConfig(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Cache != s.opts.Cache {
		s.cache = cache.New(opts.Cache)
	}
	s.opts = opts
	s.renderer.SetConfig(opts.Job)
	s.renderer.SetIntegrator(opts.integrator())
	s.forceRebuild = true
	logger.Notice("configuration applied, scheduling rebuild")
}

// Options returns the active settings
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Renderer returns the renderer owned by the session
func (s *Session) Renderer() *renderer.Renderer {
	return s.renderer
}

// Snapshot returns the most recently published snapshot, or nil
func (s *Session) Snapshot() *renderer.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Image returns the image of the running job, or nil
func (s *Session) Image() *renderer.SampledImage {
	return s.renderer.Image()
}

// Close stops pending builds and waits for the rendering job to exit
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.releaseTasksLocked()
	s.mu.Unlock()

	s.renderer.Close()
}
