package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-scene-raytracer/pkg/renderer"
	"github.com/df07/go-scene-raytracer/pkg/session"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	opts := session.DefaultOptions()
	opts.Job = renderer.JobConfig{Workers: 2, Buckets: 4, TileSize: 4, MaxBounces: 2, Seed: 1}
	sess := session.New(opts)
	t.Cleanup(sess.Close)

	srv, err := NewServer(sess, "cornell", Options{
		FrameInterval: 10 * time.Millisecond,
		Viewport:      renderer.Viewport{Width: 16, Height: 16},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

// waitRendering ticks the server until a job is producing samples
func waitRendering(t *testing.T, srv *Server) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := srv.Tick()
		img := srv.session.Image()
		return st.Phase == session.PhaseRendering && img != nil && img.Samples() > 0
	}, 5*time.Second, 2*time.Millisecond)
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, v any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestNewServer_UnknownScene(t *testing.T) {
	_, err := NewServer(session.New(session.DefaultOptions()), "nope", DefaultOptions())
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleScenes(t *testing.T) {
	_, ts := newTestServer(t)

	var scenes []map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/scenes", &scenes))
	require.NotEmpty(t, scenes)
	ids := make([]string, len(scenes))
	for i, s := range scenes {
		ids[i] = s["id"]
	}
	assert.Contains(t, ids, "cornell")
}

func TestHandleImage_BeforeAndAfterRendering(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/image")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	waitRendering(t, srv)

	resp, err = http.Get(ts.URL + "/api/image")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestHandleStatus(t *testing.T) {
	srv, ts := newTestServer(t)
	waitRendering(t, srv)

	var body struct {
		Scene  string `json:"scene"`
		Status struct {
			Phase   string `json:"phase"`
			Version uint64 `json:"version"`
		} `json:"status"`
		Camera CameraRequest `json:"camera"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/status", &body))
	assert.Equal(t, "cornell", body.Scene)
	assert.Equal(t, "rendering", body.Status.Phase)
	assert.Equal(t, uint64(1), body.Status.Version)
	require.NotNil(t, body.Camera.VFov)
	assert.Equal(t, 40.0, *body.Camera.VFov)
}

func TestHandleBVH(t *testing.T) {
	srv, ts := newTestServer(t)

	var errBody map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/bvh", &errBody))

	waitRendering(t, srv)

	var full BVHResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/bvh", &full))
	assert.Equal(t, uint64(1), full.Version)
	assert.Positive(t, full.Height)
	assert.Equal(t, full.Stats.Nodes, len(full.Boxes))

	var shallow BVHResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/bvh?depth=1", &shallow))
	assert.LessOrEqual(t, len(shallow.Boxes), 3)
	for _, box := range shallow.Boxes {
		assert.LessOrEqual(t, box.Depth, 1)
	}

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/bvh?depth=x", &errBody))
}

func TestHandleCamera(t *testing.T) {
	srv, ts := newTestServer(t)
	waitRendering(t, srv)
	restarts := srv.session.Status().Restarts

	var cam CameraRequest
	status := postJSON(t, ts.URL+"/api/camera", `{"center":[278,278,-600],"vfov":50,"width":8}`, &cam)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, [3]float64{278, 278, -600}, *cam.Center)
	assert.Equal(t, 50.0, *cam.VFov)
	assert.Equal(t, 8, *cam.Width)
	assert.Equal(t, 16, *cam.Height)

	// The next frame restarts the job with the new view
	st := srv.Tick()
	assert.Equal(t, restarts+1, st.Restarts)
	assert.Equal(t, renderer.Viewport{Width: 8, Height: 16}, st.Viewport)

	var got CameraRequest
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/camera", &got))
	assert.Equal(t, 50.0, *got.VFov)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"vfov":`},
		{"fov too wide", `{"vfov":180}`},
		{"too large", `{"width":5000}`},
		{"degenerate", `{"center":[0,0,0],"lookAt":[0,0,0]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/api/camera", tt.body, &body))
			assert.NotEmpty(t, body["error"])
		})
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/camera", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleScene(t *testing.T) {
	srv, ts := newTestServer(t)
	waitRendering(t, srv)

	var body map[string]string
	assert.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/scene", `{"id":"empty"}`, &body))
	assert.Equal(t, "empty", body["scene"])

	require.Eventually(t, func() bool {
		st := srv.Tick()
		return st.Version == 2 && st.Phase == session.PhaseRendering
	}, 5*time.Second, 2*time.Millisecond)
	assert.Equal(t, 0, srv.session.Status().BVH.Triangles)

	assert.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/api/scene", `{"id":"nope"}`, &body))
}

func TestHandleInspect(t *testing.T) {
	srv, ts := newTestServer(t)
	waitRendering(t, srv)

	// The center of the Cornell box view hits the back wall or a prop
	var hit InspectResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/inspect?x=8&y=8", &hit))
	assert.True(t, hit.Hit)
	assert.True(t, hit.FrontFace)
	assert.Positive(t, hit.Distance)
	assert.NotEmpty(t, hit.MaterialType)
	assert.NotEqual(t, "unknown", hit.MaterialType)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/inspect?x=99&y=0", &errBody))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/inspect?x=a&y=0", &errBody))
}

func TestHandleStream(t *testing.T) {
	srv, ts := newTestServer(t)
	waitRendering(t, srv)

	resp, err := http.Get(ts.URL + "/api/stream?frames=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []FrameUpdate
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1<<20), 1<<24)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "frame":
			var f FrameUpdate
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
			frames = append(frames, f)
		}
	}
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(1), frames[0].Version)
	assert.Equal(t, 16, frames[0].Width)
	assert.NotEmpty(t, frames[0].ImageData)
}

func TestHandleStream_ForwardsConsole(t *testing.T) {
	srv, ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return srv.Console().Subscribers() == 1 }, 5*time.Second, time.Millisecond)
	srv.Console().Write([]byte("[session] [WARNING] hello console\n"))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1<<20), 1<<24)
	found := false
	event := ""
	for !found && scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "console":
			var msg ConsoleMessage
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
			assert.Equal(t, "warning", msg.Level)
			found = bytes.Contains([]byte(msg.Message), []byte("hello console"))
		}
	}
	assert.True(t, found)
}

func TestRun_ServesAndStops(t *testing.T) {
	opts := session.DefaultOptions()
	opts.Job = renderer.JobConfig{Workers: 1, Buckets: 2, TileSize: 2, MaxBounces: 1}
	sess := session.New(opts)
	defer sess.Close()

	srv, err := NewServer(sess, "empty", Options{FrameInterval: 5 * time.Millisecond, Viewport: renderer.Viewport{Width: 4, Height: 4}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	// The frame loop drives the session on its own
	require.Eventually(t, func() bool {
		return sess.Status().Phase == session.PhaseRendering
	}, 5*time.Second, 2*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
}
