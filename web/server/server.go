package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/df07/go-scene-raytracer/pkg/bvh"
	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/log"
	"github.com/df07/go-scene-raytracer/pkg/renderer"
	"github.com/df07/go-scene-raytracer/pkg/scene"
	"github.com/df07/go-scene-raytracer/pkg/session"
)

var logger = log.New("server")

const maxImageSize = 2000

// Options configures the web front end
type Options struct {
	FrameInterval time.Duration     // Session tick and stream frame period
	Viewport      renderer.Viewport // Initial image size
}

// DefaultOptions returns sensible default values
func DefaultOptions() Options {
	return Options{
		FrameInterval: 250 * time.Millisecond,
		Viewport:      renderer.Viewport{Width: 400, Height: 400},
	}
}

// Server presents a live session over HTTP. A frame loop ticks the session
// while handlers read its image and move the camera.
type Server struct {
	session  *session.Session
	console  *Console
	interval time.Duration

	mu       sync.Mutex
	sceneID  string
	tree     *scene.Tree
	camera   renderer.CameraConfig
	viewport renderer.Viewport
}

// NewServer creates a server for the session and loads a built-in scene
func NewServer(sess *session.Session, sceneID string, opts Options) (*Server, error) {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultOptions().FrameInterval
	}
	if opts.Viewport.Empty() {
		opts.Viewport = DefaultOptions().Viewport
	}

	s := &Server{
		session:  sess,
		console:  NewConsole(),
		interval: opts.FrameInterval,
		viewport: opts.Viewport,
	}
	if err := s.LoadScene(sceneID); err != nil {
		return nil, err
	}
	return s, nil
}

// Console returns the log sink that feeds the stream endpoint
func (s *Server) Console() *Console {
	return s.console
}

// LoadScene swaps in a built-in scene and resets the camera to the scene's own
func (s *Server) LoadScene(id string) error {
	tree, err := scene.LoadBuiltin(id)
	if err != nil {
		return err
	}
	camera, ok := session.CameraFromScene(tree)
	if !ok {
		camera = renderer.CameraConfig{
			Center: core.NewVec3(0, 0, 5),
			Up:     core.NewVec3(0, 1, 0),
			VFov:   40,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sceneID, s.tree, s.camera = id, tree, camera
	logger.Noticef("loaded scene %q", id)
	return nil
}

// Tick runs one frame of the session with the current scene and camera
func (s *Server) Tick() session.Status {
	s.mu.Lock()
	tree, camera, viewport := s.tree, s.camera, s.viewport
	s.mu.Unlock()
	return s.session.Tick(tree, camera, viewport)
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/scenes", s.handleScenes)
	mux.HandleFunc("/api/scene", s.handleScene)
	mux.HandleFunc("/api/camera", s.handleCamera)
	mux.HandleFunc("/api/image", s.handleImage)
	mux.HandleFunc("/api/bvh", s.handleBVH)
	mux.HandleFunc("/api/inspect", s.handleInspect)
	mux.HandleFunc("/api/stream", s.handleStream)
	return mux
}

// Run serves on addr and ticks the session until ctx is done
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.Handler()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.Tick()
			}
		}
	})
	g.Go(func() error {
		logger.Noticef("Starting web server on http://localhost%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of /api/status
type StatusResponse struct {
	Scene  string         `json:"scene"`
	Camera CameraRequest  `json:"camera"`
	Status session.Status `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{Scene: s.sceneID, Camera: cameraRequestFrom(s.camera, s.viewport)}
	s.mu.Unlock()
	resp.Status = s.session.Status()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scene.ListBuiltin())
}

// handleScene switches to another built-in scene
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scene request: "+err.Error())
		return
	}
	if err := s.LoadScene(req.ID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scene": req.ID})
}

// CameraRequest moves the camera or resizes the image. Omitted fields keep
// their current values.
type CameraRequest struct {
	Center *[3]float64 `json:"center,omitempty"`
	LookAt *[3]float64 `json:"lookAt,omitempty"`
	Up     *[3]float64 `json:"up,omitempty"`
	VFov   *float64    `json:"vfov,omitempty"`
	Width  *int        `json:"width,omitempty"`
	Height *int        `json:"height,omitempty"`
}

func cameraRequestFrom(c renderer.CameraConfig, v renderer.Viewport) CameraRequest {
	center, lookAt, up := toArray(c.Center), toArray(c.LookAt), toArray(c.Up)
	vfov, width, height := c.VFov, v.Width, v.Height
	return CameraRequest{Center: &center, LookAt: &lookAt, Up: &up, VFov: &vfov, Width: &width, Height: &height}
}

// apply merges the request into a camera and viewport
func (req CameraRequest) apply(c renderer.CameraConfig, v renderer.Viewport) (renderer.CameraConfig, renderer.Viewport, error) {
	if req.Center != nil {
		c.Center = fromArray(*req.Center)
	}
	if req.LookAt != nil {
		c.LookAt = fromArray(*req.LookAt)
	}
	if req.Up != nil {
		c.Up = fromArray(*req.Up)
	}
	if req.VFov != nil {
		if *req.VFov <= 0 || *req.VFov >= 180 {
			return c, v, fmt.Errorf("vfov must be between 0 and 180, got: %g", *req.VFov)
		}
		c.VFov = *req.VFov
	}
	if req.Width != nil {
		if *req.Width < 1 || *req.Width > maxImageSize {
			return c, v, fmt.Errorf("width must be between 1 and %d, got: %d", maxImageSize, *req.Width)
		}
		v.Width = *req.Width
	}
	if req.Height != nil {
		if *req.Height < 1 || *req.Height > maxImageSize {
			return c, v, fmt.Errorf("height must be between 1 and %d, got: %d", maxImageSize, *req.Height)
		}
		v.Height = *req.Height
	}
	if c.Center.Subtract(c.LookAt).IsZero() {
		return c, v, errors.New("center and lookAt must differ")
	}
	return c, v, nil
}

// handleCamera reports the camera on GET and moves it on POST. The next
// frame restarts the rendering job.
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		resp := cameraRequestFrom(s.camera, s.viewport)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req CameraRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid camera request: "+err.Error())
			return
		}
		s.mu.Lock()
		camera, viewport, err := req.apply(s.camera, s.viewport)
		if err == nil {
			s.camera, s.viewport = camera, viewport
		}
		s.mu.Unlock()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cameraRequestFrom(camera, viewport))
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

// handleImage serves the current accumulation as a PNG
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img := s.session.Image()
	if img == nil {
		writeError(w, http.StatusServiceUnavailable, "No image yet")
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Snapshot()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode image: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// BVHResponse is the body of /api/bvh
type BVHResponse struct {
	Version uint64        `json:"version"`
	Height  int           `json:"height"`
	Stats   bvh.Stats     `json:"stats"`
	Boxes   []bvh.NodeBox `json:"boxes"`
}

// handleBVH serves the node boxes of the published tree, optionally
// limited to a maximum depth
func (s *Server) handleBVH(w http.ResponseWriter, r *http.Request) {
	snapshot := s.session.Snapshot()
	if snapshot == nil || snapshot.Tree == nil {
		writeError(w, http.StatusServiceUnavailable, "No tree yet")
		return
	}
	maxDepth, err := parseIntParam(r.URL.Query(), "depth", bvh.MaxTreeHeight, 0, bvh.MaxTreeHeight)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := BVHResponse{
		Version: snapshot.Version,
		Height:  snapshot.Tree.Height(),
		Stats:   snapshot.Tree.Stats(),
		Boxes:   []bvh.NodeBox{},
	}
	for _, box := range snapshot.Tree.NodeBoxes() {
		if box.Depth <= maxDepth {
			resp.Boxes = append(resp.Boxes, box)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// imageToBase64PNG converts an image to base64-encoded PNG
func imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func toArray(v core.Vec3) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func fromArray(a [3]float64) core.Vec3 {
	return core.NewVec3(a[0], a[1], a[2])
}
