package monitor

import (
	"bytes"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facetrace/facetrace/pkg/types"
)

func testFrame(idx int) types.Frame {
	return types.Frame{
		Index:  idx,
		Img:    image.NewRGBA(image.Rect(0, 0, 320, 240)),
		Width:  320,
		Height: 240,
	}
}

func TestPublishWithoutClientsIsCheap(t *testing.T) {
	m := New()
	// No clients: nothing to broadcast, but the status snapshot updates.
	m.Publish(testFrame(7), []types.Face{{Box: types.Detection{X: 10, Y: 10, W: 50, H: 50}}})

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastFrameIdx != 7 {
		t.Errorf("lastFrameIdx = %d, want 7", m.lastFrameIdx)
	}
	if m.published != 0 {
		t.Errorf("published = %d, want 0 without clients", m.published)
	}
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	m := New()
	id, frames := m.subscribe()
	defer m.unsubscribe(id)

	m.Publish(testFrame(0), nil)

	select {
	case data := <-frames:
		if len(data) == 0 {
			t.Error("received empty JPEG payload")
		}
		// JPEG SOI marker.
		if data[0] != 0xFF || data[1] != 0xD8 {
			t.Errorf("payload does not start with a JPEG marker: % x", data[:2])
		}
	default:
		t.Fatal("no frame delivered to subscriber")
	}
}

func TestSlowClientDropsFramesWithoutBlocking(t *testing.T) {
	m := New()
	id, frames := m.subscribe()
	defer m.unsubscribe(id)

	// More publishes than the client buffer holds; Publish must not block.
	for i := 0; i < 10; i++ {
		m.Publish(testFrame(i), nil)
	}

	received := 0
	for {
		select {
		case <-frames:
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received > 2 {
		t.Errorf("received %d buffered frames, want 1-2", received)
	}
}

func TestStatusEndpoint(t *testing.T) {
	m := New()
	m.Publish(testFrame(42), []types.Face{
		{Box: types.Detection{X: 5, Y: 5, W: 20, H: 20}, Emotion: "happy", Name: "alice"},
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status struct {
		FrameIndex int          `json:"frame_index"`
		Faces      []types.Face `json:"faces"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.FrameIndex != 42 {
		t.Errorf("frame_index = %d, want 42", status.FrameIndex)
	}
	if len(status.Faces) != 1 || status.Faces[0].Name != "alice" {
		t.Errorf("faces = %+v, want alice", status.Faces)
	}
}

func TestRenderAnnotatedProducesValidJPEG(t *testing.T) {
	frame := testFrame(0)
	faces := []types.Face{
		{Box: types.Detection{X: 50, Y: 50, W: 100, H: 100}, Emotion: "neutral", EmotionScore: 88, Name: "bob"},
		// A box whose label would land above the frame falls below instead.
		{Box: types.Detection{X: 10, Y: 2, W: 40, H: 40}},
	}

	data, err := renderAnnotated(frame, faces)
	if err != nil {
		t.Fatalf("renderAnnotated: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Error("output is not a JPEG")
	}
}
