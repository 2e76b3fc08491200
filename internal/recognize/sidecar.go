// Package recognize holds the external inference collaborators: emotion
// classification and identity resolution over crops the pipeline accepted.
package recognize

import (
	"fmt"
	"image"
	"io"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// SidecarClient talks to the Python inference sidecar over a Unix socket.
// One short-lived connection per request; the protocol is a single
// msgpack-encoded request followed by a single msgpack-encoded response.
type SidecarClient struct {
	socketPath string
	timeout    time.Duration
}

// sidecarRequest carries an RGB crop plus the operation to run on it.
type sidecarRequest struct {
	Op         string `msgpack:"op"` // "emotion" or "embed"
	Width      int    `msgpack:"w"`
	Height     int    `msgpack:"h"`
	Data       []byte `msgpack:"d"`    // RGB uint8, row-major, shape (H, W, 3)
	SkipDetect bool   `msgpack:"skip"` // Fast path: crop is already a face, no re-detection
}

// sidecarResponse is the union of both operation results.
type sidecarResponse struct {
	Label  string             `msgpack:"label,omitempty"`
	Scores map[string]float64 `msgpack:"scores,omitempty"`
	Vector []float64          `msgpack:"vector,omitempty"`
	Err    string             `msgpack:"err,omitempty"`
}

// NewSidecarClient creates a client for the inference sidecar.
func NewSidecarClient(socketPath string) *SidecarClient {
	return &SidecarClient{
		socketPath: socketPath,
		timeout:    2 * time.Second,
	}
}

func (c *SidecarClient) call(req sidecarRequest) (*sidecarResponse, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to inference sidecar: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		// Half-close so the sidecar sees EOF and replies.
		uc.CloseWrite()
	}

	respData, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp sidecarResponse
	if err := msgpack.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("sidecar error: %s", resp.Err)
	}
	return &resp, nil
}

// imageToRGB flattens an image into the row-major RGB byte layout the
// sidecar expects.
func imageToRGB(img image.Image) (data []byte, w, h int) {
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	data = make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			data = append(data, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return data, w, h
}
