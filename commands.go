package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/cache"
	"github.com/df07/go-scene-raytracer/pkg/config"
	"github.com/df07/go-scene-raytracer/pkg/loaders"
	"github.com/df07/go-scene-raytracer/pkg/log"
	"github.com/df07/go-scene-raytracer/pkg/renderer"
	"github.com/df07/go-scene-raytracer/pkg/scene"
	"github.com/df07/go-scene-raytracer/pkg/session"
	"github.com/df07/go-scene-raytracer/web/server"
)

const (
	defaultRenderDuration = 5 * time.Second

	// Upper bound on the time spent building before the first job starts
	buildTimeout = time.Minute

	tickInterval = 10 * time.Millisecond
)

// setupLogging loads the settings file and applies the log level. The
// verbosity flags override the configured level.
func setupLogging(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := ctx.GlobalString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	log.SetLevel(cfg.LogLevel())
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}
	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
	return cfg, nil
}

// RenderFrame renders a scene for a fixed duration and saves the result.
func RenderFrame(ctx *cli.Context) error {
	cfg, err := setupLogging(ctx)
	if err != nil {
		return err
	}

	viewport := renderer.Viewport{Width: ctx.Int("width"), Height: ctx.Int("height")}
	if viewport.Empty() {
		return fmt.Errorf("invalid frame size %dx%d", viewport.Width, viewport.Height)
	}

	img, status, err := renderScene(context.Background(), cfg, ctx.String("scene"), viewport, ctx.Duration("duration"))
	if err != nil {
		return err
	}
	if err := savePNG(ctx.String("out"), img); err != nil {
		return err
	}
	logger.Noticef("wrote %s", ctx.String("out"))

	displayStatus(status)
	return nil
}

// renderScene runs a session on a built-in scene until its job has been
// rendering for duration, then stops it and returns the image.
func renderScene(ctx context.Context, cfg *config.Config, sceneID string, viewport renderer.Viewport, duration time.Duration) (*image.RGBA, session.Status, error) {
	tree, err := loadScene(sceneID)
	if err != nil {
		return nil, session.Status{}, err
	}
	camera, ok := session.CameraFromScene(tree)
	if !ok {
		return nil, session.Status{}, fmt.Errorf("scene %q has no camera", sceneID)
	}

	sess := session.New(cfg.SessionOptions())
	defer sess.Close()

	buildCtx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	start := time.Now()
	status := sess.Tick(tree, camera, viewport)
	for status.Phase != session.PhaseRendering {
		select {
		case <-buildCtx.Done():
			return nil, status, fmt.Errorf("waiting for the first job: %w", buildCtx.Err())
		case <-ticker.C:
			status = sess.Tick(tree, camera, viewport)
		}
	}
	logger.Infof("job started after %s with %d triangles", time.Since(start).Round(time.Millisecond), status.BVH.Triangles)

	deadline := time.NewTimer(duration)
	defer deadline.Stop()
	for waiting := true; waiting; {
		select {
		case <-ctx.Done():
			return nil, status, ctx.Err()
		case <-deadline.C:
			waiting = false
		case <-ticker.C:
			status = sess.Tick(tree, camera, viewport)
		}
	}

	status = sess.Status()
	img := sess.Image()
	if img == nil {
		return nil, status, errors.New("session has no image")
	}
	return img.Snapshot(), status, nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

func displayStatus(status session.Status) {
	logger.Noticef("session\n%s", formatTable([]string{"Session", ""}, status.Rows()))
	logger.Noticef("scene cache\n%s", formatTable([]string{"Cache", ""}, status.Cache.Rows()))
	logger.Noticef("bvh\n%s", formatTable([]string{"BVH", ""}, status.BVH.Rows()))
	logger.Noticef("rendering job\n%s", formatTable([]string{"Job", ""}, status.Job.Rows()))
}

func formatTable(header []string, rows [][]string) string {
	var buf bytes.Buffer
	writeTable(&buf, header, rows)
	return buf.String()
}

func writeTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

// Serve runs the web front end until interrupted.
func Serve(ctx *cli.Context) error {
	cfg, err := setupLogging(ctx)
	if err != nil {
		return err
	}

	sess := session.New(cfg.SessionOptions())
	defer sess.Close()

	srv, err := server.NewServer(sess, ctx.String("scene"), server.DefaultOptions())
	if err != nil {
		return err
	}
	log.SetSink(io.MultiWriter(os.Stdout, srv.Console()))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, runCtx := errgroup.WithContext(runCtx)
	if path := ctx.GlobalString("config"); path != "" && ctx.Bool("watch") {
		watcher, err := config.NewWatcher(path)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watcher.Run(runCtx, func(cfg *config.Config) {
				log.SetLevel(cfg.LogLevel())
				sess.ApplyConfig(cfg.SessionOptions())
			})
		})
	}

	addr := ctx.String("addr")
	logger.Noticef("serving on %s", addr)
	g.Go(func() error {
		return srv.Run(runCtx, addr)
	})
	return g.Wait()
}

// DescribeBVH builds the tree for a scene without rendering it.
func DescribeBVH(ctx *cli.Context) error {
	cfg, err := setupLogging(ctx)
	if err != nil {
		return err
	}
	if ctx.NArg() != 1 {
		return errors.New("missing scene id argument")
	}

	cacheStats, draft, tree, err := buildTree(context.Background(), cfg, ctx.Args().First())
	if err != nil {
		return err
	}

	rows := append(cacheStats.Rows(), tree.Stats().Rows()...)
	rows = append(rows, []string{"Build time", draft.BuildTime.String()})
	writeTable(os.Stdout, []string{"Statistic", "Value"}, rows)
	return nil
}

// buildTree runs the cache, draft and populate stages for a scene
func buildTree(ctx context.Context, cfg *config.Config, sceneID string) (cache.Stats, *bvh.Draft, *bvh.Tree, error) {
	tree, err := loadScene(sceneID)
	if err != nil {
		return cache.Stats{}, nil, nil, err
	}

	c := cache.New(cfg.CacheOptions())
	c.UpdateFromScene(tree)

	draft, err := bvh.BuildDraft(ctx, c.Triangles(), cfg.BuildOptions())
	if err != nil {
		return c.Stats(), nil, nil, fmt.Errorf("building draft: %w", err)
	}
	flat, err := bvh.Populate(draft, cfg.TreeOptions())
	if err != nil {
		return c.Stats(), draft, nil, fmt.Errorf("populating tree: %w", err)
	}
	return c.Stats(), draft, flat, nil
}

// ListScenes prints the built-in scenes.
func ListScenes(ctx *cli.Context) error {
	if _, err := setupLogging(ctx); err != nil {
		return err
	}
	var rows [][]string
	for _, info := range scene.ListBuiltin() {
		rows = append(rows, []string{info.ID, info.DisplayName, info.Description})
	}
	writeTable(os.Stdout, []string{"ID", "Name", "Description"}, rows)
	return nil
}

// loadScene resolves a built-in scene id or a path to a PLY model. Lookup
// errors list the valid ids.
func loadScene(id string) (*scene.Tree, error) {
	if strings.EqualFold(filepath.Ext(id), ".ply") {
		return loaders.LoadPLYScene(id)
	}
	tree, err := scene.LoadBuiltin(id)
	if err != nil {
		var ids []string
		for _, info := range scene.ListBuiltin() {
			ids = append(ids, info.ID)
		}
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(ids, ", "))
	}
	return tree, nil
}
