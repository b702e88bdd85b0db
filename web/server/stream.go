package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SSEEvent is one server-sent event
type SSEEvent struct {
	Type string `json:"type"` // "frame", "console", "error"
	Data string `json:"data"` // JSON-encoded data
}

// FrameUpdate is a single progressive image sent via SSE
type FrameUpdate struct {
	Version          uint64  `json:"version"`
	Phase            string  `json:"phase"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Samples          int64   `json:"samples"`
	SamplesPerSecond float64 `json:"samplesPerSecond"`
	ElapsedMs        int64   `json:"elapsedMs"`
	ImageData        string  `json:"imageData"` // Base64 encoded PNG, empty before the first job
}

// handleStream sends a frame every interval plus console messages until
// the client disconnects. The optional frames parameter ends the stream
// after that many frames.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	limit, err := parseIntParam(r.URL.Query(), "frames", 0, 0, 1<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	console, unsubscribe := s.console.Subscribe(50)
	defer unsubscribe()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// This loop is the only writer, so events never interleave
	sent := 0
	for {
		var event SSEEvent
		select {
		case <-ctx.Done():
			return
		case msg := <-console:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			event = SSEEvent{Type: "console", Data: string(data)}
		case <-ticker.C:
			event, err = s.frameEvent()
			if err != nil {
				event = SSEEvent{Type: "error", Data: err.Error()}
			}
			sent++
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
			// Client disconnected during write
			return
		}
		flusher.Flush()

		if limit > 0 && sent >= limit {
			return
		}
	}
}

func (s *Server) frameEvent() (SSEEvent, error) {
	status := s.session.Status()
	update := FrameUpdate{
		Version:          status.Version,
		Phase:            status.Phase.String(),
		Width:            status.Viewport.Width,
		Height:           status.Viewport.Height,
		Samples:          status.Job.Samples,
		SamplesPerSecond: status.Job.SamplesPerSecond,
		ElapsedMs:        status.Job.Elapsed.Milliseconds(),
	}
	if img := s.session.Image(); img != nil {
		data, err := imageToBase64PNG(img.Snapshot())
		if err != nil {
			return SSEEvent{}, fmt.Errorf("failed to encode image: %w", err)
		}
		update.ImageData = data
	}

	data, err := json.Marshal(update)
	if err != nil {
		return SSEEvent{}, err
	}
	return SSEEvent{Type: "frame", Data: string(data)}, nil
}

// setSSEHeaders sets the required headers for Server-Sent Events
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}
