// Package config loads renderer settings from TOML files
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/cache"
	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/integrator"
	"github.com/df07/go-scene-raytracer/pkg/log"
	"github.com/df07/go-scene-raytracer/pkg/renderer"
	"github.com/df07/go-scene-raytracer/pkg/session"
)

// Config is the contents of a settings file
type Config struct {
	Render RenderConfig `toml:"render"`
	BVH    BVHConfig    `toml:"bvh"`
	Sky    SkyConfig    `toml:"sky"`
	Cache  CacheConfig  `toml:"cache"`
	Log    LogConfig    `toml:"log"`
}

type RenderConfig struct {
	Workers    int     `toml:"workers"`
	Buckets    int     `toml:"buckets"`
	TileSize   int     `toml:"tile_size"`
	MaxBounces int     `toml:"max_bounces"`
	Epsilon    float64 `toml:"epsilon"`
	Seed       int64   `toml:"seed"`
}

type BVHConfig struct {
	MaxLeafTriangles int    `toml:"max_leaf_triangles"`
	MaxDepth         int    `toml:"max_depth"`
	Split            string `toml:"split"`     // median, sah or midpoint
	Traversal        string `toml:"traversal"` // exact or greedy
}

type SkyConfig struct {
	Direction [3]float64 `toml:"direction"`
	Color     [3]float64 `toml:"color"`
	Exponent  float64    `toml:"exponent"`
}

type CacheConfig struct {
	MaterialGarbageLimit int `toml:"material_garbage_limit"`
	Parallelism          int `toml:"parallelism"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in settings
func Default() *Config {
	job := renderer.DefaultJobConfig()
	build := bvh.DefaultBuildOptions()
	sky := integrator.DefaultSky()
	c := cache.DefaultOptions()

	return &Config{
		Render: RenderConfig{
			Workers:    job.Workers,
			Buckets:    job.Buckets,
			TileSize:   job.TileSize,
			MaxBounces: job.MaxBounces,
			Epsilon:    integrator.DefaultEpsilon,
			Seed:       job.Seed,
		},
		BVH: BVHConfig{
			MaxLeafTriangles: build.MaxLeafTriangles,
			MaxDepth:         build.MaxDepth,
			Split:            build.Split.String(),
			Traversal:        bvh.TraverseExact.String(),
		},
		Sky: SkyConfig{
			Direction: toArray(sky.Direction),
			Color:     toArray(sky.Color),
			Exponent:  sky.Exponent,
		},
		Cache: CacheConfig{
			MaterialGarbageLimit: c.MaterialGarbageLimit,
			Parallelism:          c.Parallelism,
		},
		Log: LogConfig{Level: "notice"},
	}
}

// Load reads and validates a settings file
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses TOML on top of the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("decoding config: %s", strict.String())
		}
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode writes the settings as TOML
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Render.Workers > 0, "render.workers must be positive, got %d", c.Render.Workers)
	check(c.Render.Buckets > 0, "render.buckets must be positive, got %d", c.Render.Buckets)
	check(c.Render.TileSize > 0, "render.tile_size must be positive, got %d", c.Render.TileSize)
	check(c.Render.MaxBounces >= 0, "render.max_bounces must not be negative, got %d", c.Render.MaxBounces)
	check(c.Render.Epsilon > 0, "render.epsilon must be positive, got %g", c.Render.Epsilon)

	check(c.BVH.MaxLeafTriangles > 0, "bvh.max_leaf_triangles must be positive, got %d", c.BVH.MaxLeafTriangles)
	check(c.BVH.MaxDepth > 0 && c.BVH.MaxDepth <= bvh.MaxBuildDepth,
		"bvh.max_depth must be in [1, %d], got %d", bvh.MaxBuildDepth, c.BVH.MaxDepth)
	if _, err := bvh.ParseSplitPolicy(c.BVH.Split); err != nil {
		errs = append(errs, fmt.Errorf("bvh.split: %w", err))
	}
	if _, err := bvh.ParseTraversalMode(c.BVH.Traversal); err != nil {
		errs = append(errs, fmt.Errorf("bvh.traversal: %w", err))
	}

	check(!fromArray(c.Sky.Direction).IsZero(), "sky.direction must not be zero")
	check(c.Sky.Exponent >= 0, "sky.exponent must not be negative, got %g", c.Sky.Exponent)

	check(c.Cache.MaterialGarbageLimit >= 0, "cache.material_garbage_limit must not be negative, got %d", c.Cache.MaterialGarbageLimit)
	check(c.Cache.Parallelism >= 0, "cache.parallelism must not be negative, got %d", c.Cache.Parallelism)

	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// JobConfig converts the render section
func (c *Config) JobConfig() renderer.JobConfig {
	return renderer.JobConfig{
		Workers:    c.Render.Workers,
		Buckets:    c.Render.Buckets,
		TileSize:   c.Render.TileSize,
		MaxBounces: c.Render.MaxBounces,
		Seed:       c.Render.Seed,
	}
}

// BuildOptions converts the bvh section. An invalid split falls back to the default.
func (c *Config) BuildOptions() bvh.BuildOptions {
	opts := bvh.BuildOptions{
		MaxLeafTriangles: c.BVH.MaxLeafTriangles,
		MaxDepth:         c.BVH.MaxDepth,
		Split:            bvh.DefaultBuildOptions().Split,
	}
	if split, err := bvh.ParseSplitPolicy(c.BVH.Split); err == nil {
		opts.Split = split
	}
	return opts
}

// TreeOptions converts the traversal setting
func (c *Config) TreeOptions() bvh.TreeOptions {
	mode, err := bvh.ParseTraversalMode(c.BVH.Traversal)
	if err != nil {
		mode = bvh.TraverseExact
	}
	return bvh.TreeOptions{Traversal: mode}
}

// SkyModel converts the sky section
func (c *Config) SkyModel() integrator.Sky {
	return integrator.Sky{
		Direction: fromArray(c.Sky.Direction),
		Color:     fromArray(c.Sky.Color),
		Exponent:  c.Sky.Exponent,
	}
}

// CacheOptions converts the cache section
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		MaterialGarbageLimit: c.Cache.MaterialGarbageLimit,
		Parallelism:          c.Cache.Parallelism,
	}
}

// LogLevel converts the log section, defaulting to notice
func (c *Config) LogLevel() log.Level {
	if level, ok := log.ParseLevel(c.Log.Level); ok {
		return level
	}
	return log.Notice
}

// SessionOptions gathers every section into session settings
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Cache:   c.CacheOptions(),
		Build:   c.BuildOptions(),
		Tree:    c.TreeOptions(),
		Job:     c.JobConfig(),
		Sky:     c.SkyModel(),
		Epsilon: c.Render.Epsilon,
	}
}

func toArray(v core.Vec3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func fromArray(a [3]float64) core.Vec3 {
	return core.NewVec3(a[0], a[1], a[2])
}
