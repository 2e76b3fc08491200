package source

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"
)

func TestSourceOrderedDelivery(t *testing.T) {
	src, err := Open(context.Background(), &SyntheticProvider{
		FrameWidth:  64,
		FrameHeight: 48,
		FrameCount:  20,
	}, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	idx := 0
	for frame := range src.Frames() {
		if frame.Index != idx {
			t.Fatalf("frame index %d, want %d", frame.Index, idx)
		}
		if frame.Width != 64 || frame.Height != 48 {
			t.Fatalf("frame dims %dx%d, want 64x48", frame.Width, frame.Height)
		}
		idx++
	}
	if idx != 20 {
		t.Errorf("received %d frames, want 20", idx)
	}
	if src.Err() != nil {
		t.Errorf("Err = %v, want nil at clean end-of-stream", src.Err())
	}
}

// A tiny channel forces the producer to block; every frame must still arrive
// in order once the consumer drains.
func TestSourceBackpressureNeverDrops(t *testing.T) {
	src, err := Open(context.Background(), &SyntheticProvider{
		FrameWidth:  32,
		FrameHeight: 32,
		FrameCount:  50,
	}, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	count := 0
	for frame := range src.Frames() {
		if frame.Index != count {
			t.Fatalf("frame index %d, want %d (dropped or reordered)", frame.Index, count)
		}
		count++
		// Slow consumer.
		time.Sleep(time.Millisecond)
	}
	if count != 50 {
		t.Errorf("received %d frames, want 50", count)
	}
}

func TestSourceUnavailable(t *testing.T) {
	_, err := Open(context.Background(), &SyntheticProvider{
		OpenErr: errors.New("no such device"),
	}, 4)
	if err == nil {
		t.Fatal("expected error for unavailable provider")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestSourceCancellationUnblocksProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src, err := Open(ctx, &SyntheticProvider{
		FrameWidth:  32,
		FrameHeight: 32,
		FrameCount:  1000,
	}, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Consume nothing; the producer is blocked on the full channel.
	cancel()

	done := make(chan struct{})
	go func() {
		src.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not exit after cancellation")
	}

	// The channel is closed as the end-of-stream sentinel; draining
	// terminates.
	for range src.Frames() {
	}
}

// errAfterProvider yields n good frames and then a non-EOF error.
type errAfterProvider struct {
	n        int
	produced int
}

func (p *errAfterProvider) Open() (int, int, error) { return 32, 32, nil }

func (p *errAfterProvider) Next() (image.Image, error) {
	if p.produced >= p.n {
		return nil, errors.New("decode failed")
	}
	p.produced++
	return image.NewRGBA(image.Rect(0, 0, 32, 32)), nil
}

func (p *errAfterProvider) Close() error { return nil }

func TestSourceMidStreamReadError(t *testing.T) {
	src, err := Open(context.Background(), &errAfterProvider{n: 3}, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	count := 0
	for range src.Frames() {
		count++
	}
	if count != 3 {
		t.Errorf("received %d frames before failure, want 3", count)
	}
	if src.Err() == nil {
		t.Error("Err = nil, want the mid-stream read error")
	}
	if errors.Is(src.Err(), io.EOF) {
		t.Error("EOF must not be surfaced as a read error")
	}
}
