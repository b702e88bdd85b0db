package renderer

import (
	"sync"

	"github.com/df07/go-scene-raytracer/pkg/integrator"
	"github.com/df07/go-scene-raytracer/pkg/task"
)

// Renderer owns at most one active rendering job. Starting a new job stops
// the previous one without waiting for it; the stopped job is handed to a
// reaper that holds it until its goroutines have exited.
type Renderer struct {
	mu     sync.Mutex
	config JobConfig
	integ  integrator.Integrator
	reaper *task.Reaper
	job    *Job
}

// New creates a renderer that has no job yet
func New(config JobConfig, integ integrator.Integrator) *Renderer {
	if integ == nil {
		integ = integrator.NewPathTracer()
	}
	return &Renderer{
		config: config.normalized(),
		integ:  integ,
		reaper: task.DefaultReaper(),
	}
}

// SetConfig changes the job settings. It takes effect on the next Start.
func (r *Renderer) SetConfig(config JobConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = config.normalized()
}

// Config returns the current job settings
func (r *Renderer) Config() JobConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// SetIntegrator changes the light transport used by the next Start
func (r *Renderer) SetIntegrator(integ integrator.Integrator) {
	if integ == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integ = integ
}

// Start stops any prior job and starts rendering the snapshot
func (r *Renderer) Start(snapshot *Snapshot, camera CameraConfig, viewport Viewport) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retireLocked()
	r.job = StartJob(snapshot, camera, viewport, r.integ, r.config)
	return r.job
}

// Stop stops the active job, if any, without waiting for it
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retireLocked()
}

func (r *Renderer) retireLocked() {
	if r.job == nil {
		return
	}
	r.job.Stop()
	r.reaper.Adopt(r.job)
	r.job = nil
}

// Job returns the active job, or nil
func (r *Renderer) Job() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job
}

// Image returns the active job's image, or nil
func (r *Renderer) Image() *SampledImage {
	if job := r.Job(); job != nil {
		return job.Image()
	}
	return nil
}

// Close stops the active job and waits for it to exit
func (r *Renderer) Close() {
	r.mu.Lock()
	job := r.job
	r.job = nil
	r.mu.Unlock()

	if job != nil {
		job.Close()
	}
}
