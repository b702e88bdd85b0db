package renderer

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/integrator"
	"github.com/df07/go-scene-raytracer/pkg/log"
)

var logger = log.New("renderer")

const (
	minBackoff = time.Millisecond
	maxBackoff = 32 * time.Millisecond
	splatWait  = 50 * time.Millisecond
)

// JobConfig controls the shape of a rendering job
type JobConfig struct {
	Workers    int   // Worker goroutines tracing samples
	Buckets    int   // Buckets shared between the clean and dirty pools
	TileSize   int   // Edge of the screen tile filled per bucket
	MaxBounces int   // Path length limit handed to the integrator
	Seed       int64 // Worker i seeds its generator with Seed+i
}

// DefaultJobConfig returns sensible default values
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Workers:    4,
		Buckets:    32,
		TileSize:   DefaultTileSize,
		MaxBounces: 8,
		Seed:       1,
	}
}

func (c JobConfig) normalized() JobConfig {
	d := DefaultJobConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Buckets <= 0 {
		c.Buckets = d.Buckets
	}
	if c.TileSize <= 0 {
		c.TileSize = d.TileSize
	}
	if c.MaxBounces < 0 {
		c.MaxBounces = 0
	}
	return c
}

// Job renders one snapshot from one camera into one image until stopped.
// Workers fill clean buckets and submit them as dirty; a single splatter
// drains dirty buckets into the image and recycles them.
type Job struct {
	config   JobConfig
	snapshot *Snapshot
	camera   *Camera
	viewport Viewport
	integ    integrator.Integrator

	image *SampledImage
	clean *BucketPool
	dirty *BucketPool
	tiles []Tile

	active   atomic.Bool
	nextTile atomic.Uint64
	group    errgroup.Group
	done     chan struct{}
	stopOnce sync.Once

	started     time.Time
	finished    atomic.Int64 // Unix nanos, zero while running
	samples     atomic.Int64
	buckets     atomic.Int64
	starvations atomic.Int64
}

// StartJob allocates the image and bucket pools and launches the worker and
// splatter goroutines. An empty viewport yields a job that is already done.
func StartJob(snapshot *Snapshot, camera CameraConfig, viewport Viewport, integ integrator.Integrator, config JobConfig) *Job {
	config = config.normalized()
	if snapshot == nil {
		snapshot = &Snapshot{}
	}
	if integ == nil {
		integ = integrator.NewPathTracer()
	}

	j := &Job{
		config:   config,
		snapshot: snapshot,
		camera:   NewCamera(camera, viewport.AspectRatio()),
		viewport: viewport,
		integ:    integ,
		image:    NewSampledImage(viewport.Width, viewport.Height),
		clean:    NewBucketPool(config.Buckets),
		dirty:    NewBucketPool(config.Buckets),
		tiles:    NewTileGrid(viewport.Width, viewport.Height, config.TileSize),
		done:     make(chan struct{}),
		started:  time.Now(),
	}

	bucketSize := config.TileSize * config.TileSize
	for i := 0; i < config.Buckets; i++ {
		j.clean.Submit(NewBucket(bucketSize))
	}

	if len(j.tiles) == 0 {
		j.finished.Store(time.Now().UnixNano())
		close(j.done)
		return j
	}

	j.active.Store(true)
	for i := 0; i < config.Workers; i++ {
		id := i
		j.group.Go(func() error {
			j.work(id)
			return nil
		})
	}
	j.group.Go(func() error {
		j.splat()
		return nil
	})

	go func() {
		_ = j.group.Wait()
		j.finished.Store(time.Now().UnixNano())
		close(j.done)
		logger.Debugf("job finished after %d samples", j.samples.Load())
	}()

	logger.Infof("started job: %dx%d, %d workers, %d buckets of %d samples, snapshot v%d",
		viewport.Width, viewport.Height, config.Workers, config.Buckets, bucketSize, snapshot.Version)
	return j
}

// work is the worker loop
func (j *Job) work(id int) {
	sampler := core.NewRandomSampler(rand.New(rand.NewSource(j.config.Seed + int64(id))))

	backoff := minBackoff
	starving := false
	for j.active.Load() {
		b, ok := j.clean.TryAcquire()
		if !ok {
			if !starving {
				starving = true
				j.starvations.Add(1)
				logger.Warningf("worker %d: clean bucket pool is empty, backing off", id)
			}
			time.Sleep(backoff)
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		starving = false
		backoff = minBackoff

		if !j.fill(b, sampler) {
			b.Reset()
			j.clean.Submit(b)
			return
		}
		if !j.dirty.Submit(b) {
			logger.Errorf("worker %d: dirty pool overflow, bucket dropped", id)
		}
	}
}

// fill traces one jittered sample per pixel of the next tile, cycling over
// the tile until the bucket is full. It returns false if the job was
// stopped midway.
func (j *Job) fill(b *Bucket, sampler core.Sampler) bool {
	tile := j.tiles[(j.nextTile.Add(1)-1)%uint64(len(j.tiles))]
	bounds := tile.Bounds

	for b.Len() < b.Cap() {
		for y := bounds.Min.Y; y < bounds.Max.Y && b.Len() < b.Cap(); y++ {
			if !j.active.Load() {
				return false
			}
			for x := bounds.Min.X; x < bounds.Max.X && b.Len() < b.Cap(); x++ {
				jitter := sampler.Get2D()
				px := float64(x) + jitter.X
				py := float64(y) + jitter.Y

				ray := j.camera.GetPixelRay(px, py, j.viewport)
				c := j.integ.Trace(j.snapshot.Tree, j.snapshot.Materials, sampler, ray, j.config.MaxBounces)
				b.Add(Sample{X: px, Y: py, Color: c})
			}
		}
	}
	j.samples.Add(int64(b.Len()))
	return true
}

// splat is the splatter loop
func (j *Job) splat() {
	for j.active.Load() {
		b, ok := j.dirty.AcquireTimeout(splatWait)
		if !ok {
			continue
		}
		j.image.Splat(b)
		b.Reset()
		j.clean.Submit(b)
		j.buckets.Add(1)
	}
}

// Stop asks every goroutine to exit and returns immediately
func (j *Job) Stop() {
	j.stopOnce.Do(func() {
		j.active.Store(false)
	})
}

// Close stops the job and waits for every goroutine to exit
func (j *Job) Close() {
	j.Stop()
	<-j.done
}

// Done is closed once every goroutine has exited
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Active reports whether the job is still producing samples
func (j *Job) Active() bool {
	return j.active.Load()
}

// Image returns the accumulation buffer
func (j *Job) Image() *SampledImage {
	return j.image
}

// Snapshot returns the snapshot the job renders
func (j *Job) Snapshot() *Snapshot {
	return j.snapshot
}

// Viewport returns the image size of the job
func (j *Job) Viewport() Viewport {
	return j.viewport
}

// PoolLevels returns the number of buckets resting in the clean and dirty
// pools. Once the job is done they sum to the configured bucket count.
func (j *Job) PoolLevels() (clean, dirty int) {
	return j.clean.Len(), j.dirty.Len()
}

// Stats returns a snapshot of the job's counters
func (j *Job) Stats() JobStats {
	end := time.Now()
	if f := j.finished.Load(); f != 0 {
		end = time.Unix(0, f)
	}
	elapsed := end.Sub(j.started)

	s := JobStats{
		Workers:     j.config.Workers,
		Samples:     j.samples.Load(),
		Buckets:     j.buckets.Load(),
		Starvations: j.starvations.Load(),
		Elapsed:     elapsed,
		Active:      j.active.Load(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.SamplesPerSecond = float64(s.Samples) / secs
	}
	return s
}
