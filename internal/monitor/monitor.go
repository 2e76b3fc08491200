// Package monitor serves an annotated MJPEG preview of the analysis while a
// run is in progress. It is strictly an observer: publishing never blocks the
// pipeline, and slow or absent viewers just miss frames.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/facetrace/facetrace/internal/logger"
	"github.com/facetrace/facetrace/pkg/types"
)

var boxColor = color.RGBA{R: 0, G: 220, B: 60, A: 255}

// Monitor fans annotated frames out to MJPEG clients and tracks the latest
// status snapshot.
type Monitor struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int

	lastFrameIdx int
	lastFaces    []types.Face
	published    int
}

// New creates an idle monitor with no clients.
func New() *Monitor {
	return &Monitor{clients: make(map[int]chan []byte)}
}

// Publish annotates the frame with the analyzed faces and broadcasts it.
// With no clients connected the JPEG encode is skipped entirely.
func (m *Monitor) Publish(frame types.Frame, faces []types.Face) {
	m.mu.Lock()
	m.lastFrameIdx = frame.Index
	m.lastFaces = faces
	clientCount := len(m.clients)
	m.mu.Unlock()

	if clientCount == 0 {
		return
	}

	data, err := renderAnnotated(frame, faces)
	if err != nil {
		logger.Debug("Monitor", "failed to render frame %d: %v", frame.Index, err)
		return
	}
	m.broadcast(data)
	m.mu.Lock()
	m.published++
	m.mu.Unlock()
}

// Clear drops stale annotations after a detector failure. Clients see the
// bare frame rather than boxes carried over from an earlier frame.
func (m *Monitor) Clear(frame types.Frame) {
	m.Publish(frame, nil)
}

func (m *Monitor) subscribe() (int, <-chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan []byte, 2) // Small buffer; slow clients drop frames
	m.clients[id] = ch

	logger.Debug("Monitor", "client #%d subscribed (total: %d)", id, len(m.clients))
	return id, ch
}

func (m *Monitor) unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.clients[id]; ok {
		close(ch)
		delete(m.clients, id)
		logger.Debug("Monitor", "client #%d unsubscribed (remaining: %d)", id, len(m.clients))
	}
}

func (m *Monitor) broadcast(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.clients {
		select {
		case ch <- data:
		default:
			// Client too slow, skip this frame for this client
		}
	}
}

// Handler returns the HTTP mux serving /stream (MJPEG) and /status (JSON).
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", m.handleStream)
	mux.HandleFunc("/status", m.handleStatus)
	return mux
}

// StartServer serves the monitor endpoints on addr in a background goroutine.
func (m *Monitor) StartServer(addr string) {
	go func() {
		logger.Info("Monitor", "preview available at http://%s/stream", addr)
		if err := http.ListenAndServe(addr, m.Handler()); err != nil {
			logger.Error("Monitor", "server failed: %v", err)
		}
	}()
}

func (m *Monitor) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	id, frames := m.subscribe()
	defer m.unsubscribe(id)

	for {
		var data []byte
		select {
		case <-r.Context().Done():
			return
		case d, ok := <-frames:
			if !ok {
				return
			}
			data = d
		case <-time.After(5 * time.Second):
			// No frame recently; nothing to refresh, keep waiting.
			continue
		}

		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			logger.Debug("Monitor", "client disconnected during write: %v", err)
			return
		}
		if _, err := w.Write(data); err != nil {
			logger.Debug("Monitor", "client disconnected during frame write: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (m *Monitor) handleStatus(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	status := struct {
		FrameIndex int          `json:"frame_index"`
		Faces      []types.Face `json:"faces"`
		Published  int          `json:"published"`
		Clients    int          `json:"clients"`
	}{
		FrameIndex: m.lastFrameIdx,
		Faces:      m.lastFaces,
		Published:  m.published,
		Clients:    len(m.clients),
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// renderAnnotated draws face boxes and labels on a copy of the frame and
// encodes it as JPEG.
func renderAnnotated(frame types.Frame, faces []types.Face) ([]byte, error) {
	b := frame.Img.Bounds()
	canvas := image.NewRGBA(b)
	draw.Draw(canvas, b, frame.Img, b.Min, draw.Src)

	for _, face := range faces {
		drawRect(canvas, face.Box.X, face.Box.Y, face.Box.W, face.Box.H, 2)

		label := face.Name
		if face.Emotion != "" {
			if label != "" {
				label += " / "
			}
			label += fmt.Sprintf("%s (%.0f)", face.Emotion, face.EmotionScore)
		}
		if label != "" {
			labelY := face.Box.Y - 6
			if labelY < 12 {
				labelY = face.Box.Y + face.Box.H + 14
			}
			drawLabel(canvas, face.Box.X, labelY, label)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawRect(img *image.RGBA, x, y, w, h, thickness int) {
	for t := 0; t < thickness; t++ {
		for i := x; i <= x+w; i++ {
			img.Set(i, y+t, boxColor)
			img.Set(i, y+h-t, boxColor)
		}
		for j := y; j <= y+h; j++ {
			img.Set(x+t, j, boxColor)
			img.Set(x+w-t, j, boxColor)
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(boxColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
