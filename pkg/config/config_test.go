package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/log"
	"github.com/df07/go-scene-raytracer/pkg/renderer"
	"github.com/df07/go-scene-raytracer/pkg/session"
)

const sample = `
[render]
workers = 2
buckets = 16
tile_size = 4
max_bounces = 5
epsilon = 1e-3
seed = 9

[bvh]
max_leaf_triangles = 2
max_depth = 12
split = "sah"
traversal = "greedy"

[sky]
direction = [0.0, 1.0, 0.0]
color = [0.5, 0.6, 0.7]
exponent = 0.0

[cache]
material_garbage_limit = 10

[log]
level = "debug"
`

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, renderer.DefaultJobConfig(), cfg.JobConfig())
	assert.Equal(t, bvh.DefaultBuildOptions(), cfg.BuildOptions())
	assert.Equal(t, bvh.TraverseExact, cfg.TreeOptions().Traversal)
	assert.Equal(t, log.Notice, cfg.LogLevel())
	assert.Equal(t, session.DefaultOptions(), cfg.SessionOptions())
}

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, renderer.JobConfig{Workers: 2, Buckets: 16, TileSize: 4, MaxBounces: 5, Seed: 9}, cfg.JobConfig())
	assert.Equal(t, bvh.BuildOptions{MaxLeafTriangles: 2, MaxDepth: 12, Split: bvh.SplitSAH}, cfg.BuildOptions())
	assert.Equal(t, bvh.TraverseGreedy, cfg.TreeOptions().Traversal)
	assert.Equal(t, 10, cfg.CacheOptions().MaterialGarbageLimit)
	assert.Equal(t, log.Debug, cfg.LogLevel())

	sky := cfg.SkyModel()
	assert.Equal(t, core.NewVec3(0, 1, 0), sky.Direction)
	assert.Equal(t, core.NewVec3(0.5, 0.6, 0.7), sky.Color)
	assert.Equal(t, 0.0, sky.Exponent)

	opts := cfg.SessionOptions()
	assert.Equal(t, 1e-3, opts.Epsilon)
	assert.Equal(t, 2, opts.Job.Workers)
}

func TestDecode_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader("[render]\nworkers = 8\n"))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Render.Workers)
	assert.Equal(t, Default().Render.Buckets, cfg.Render.Buckets)
	assert.Equal(t, Default().BVH, cfg.BVH)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"syntax", "[render\nworkers = 1", "decoding config"},
		{"unknown key", "[render]\nthreads = 4\n", "threads"},
		{"wrong type", "[render]\nworkers = \"four\"\n", "decoding config"},
		{"zero workers", "[render]\nworkers = 0\n", "render.workers"},
		{"negative bounces", "[render]\nmax_bounces = -1\n", "render.max_bounces"},
		{"depth too large", "[bvh]\nmax_depth = 40\n", "bvh.max_depth"},
		{"depth past memory cap", "[bvh]\nmax_depth = 23\n", "must be in [1, 22]"},
		{"bad split", "[bvh]\nsplit = \"octree\"\n", "bvh.split"},
		{"bad traversal", "[bvh]\ntraversal = \"fast\"\n", "bvh.traversal"},
		{"zero sky", "[sky]\ndirection = [0.0, 0.0, 0.0]\n", "sky.direction"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestDecode_DepthAtMemoryCap(t *testing.T) {
	cfg, err := Decode(strings.NewReader(fmt.Sprintf("[bvh]\nmax_depth = %d\n", bvh.MaxBuildDepth)))
	require.NoError(t, err)
	assert.Equal(t, bvh.MaxBuildDepth, cfg.BuildOptions().MaxDepth)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Render.Workers = 0
	cfg.Render.TileSize = 0
	cfg.BVH.Split = "nope"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render.workers")
	assert.Contains(t, err.Error(), "render.tile_size")
	assert.Contains(t, err.Error(), "bvh.split")
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))

	again, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "render.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Render.Workers)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte("[render]\nworkers = -3\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "render.toml")
	require.NoError(t, os.WriteFile(path, []byte("[render]\nworkers = 1\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(cfg *Config) { changes <- cfg })
	}()

	// An invalid file is skipped
	require.NoError(t, os.WriteFile(path, []byte("[render]\nworkers = 0\n"), 0o644))
	time.Sleep(3 * settleDelay)
	assert.Empty(t, changes)

	// Other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0o644))

	require.NoError(t, os.WriteFile(path, []byte("[render]\nworkers = 6\n"), 0o644))
	select {
	case cfg := <-changes:
		assert.Equal(t, 6, cfg.Render.Workers)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
