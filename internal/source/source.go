// Package source decouples frame acquisition from frame consumption.
//
// A dedicated producer goroutine reads frames from a Provider as fast as the
// provider allows and pushes them into a bounded channel. When the channel is
// full the producer blocks (backpressure); frames are never dropped and
// ordering is preserved. End-of-stream is signaled by closing the channel.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/facetrace/facetrace/internal/logger"
	"github.com/facetrace/facetrace/pkg/types"
)

// ErrUnavailable is returned when the underlying frame provider cannot be
// opened. It is fatal and raised before any frame is produced.
var ErrUnavailable = errors.New("frame source unavailable")

// Provider supplies decoded frames in order. Implementations are not safe
// for concurrent use; the Source owns the provider after Open.
type Provider interface {
	// Open prepares the provider and reports the native frame dimensions.
	Open() (width, height int, err error)
	// Next returns the next decoded frame, or io.EOF when exhausted.
	Next() (image.Image, error)
	// Close releases provider resources.
	Close() error
}

// Source is the producer side of the frame pipeline.
type Source struct {
	frames chan types.Frame
	width  int
	height int

	mu      sync.Mutex
	readErr error

	cancel context.CancelFunc
	done   chan struct{}
}

// Open validates the provider and starts the background producer. The
// returned Source yields frames via Frames() until the provider is
// exhausted, fails, or ctx is cancelled.
func Open(ctx context.Context, p Provider, capacity int) (*Source, error) {
	if capacity <= 0 {
		capacity = 128
	}

	w, h, err := p.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Source{
		frames: make(chan types.Frame, capacity),
		width:  w,
		height: h,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.produce(ctx, p)
	return s, nil
}

// produce reads frames until EOF, error, or cancellation. It owns the
// provider and the write side of the channel.
func (s *Source) produce(ctx context.Context, p Provider) {
	defer close(s.done)
	defer close(s.frames)
	defer p.Close()

	idx := 0
	for {
		img, err := p.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
				logger.Error("Source", "frame read failed at index %d: %v", idx, err)
			}
			return
		}

		frame := types.Frame{
			Index:  idx,
			Img:    img,
			Width:  s.width,
			Height: s.height,
		}

		// Blocking send is the backpressure contract: a slow consumer
		// stalls the producer instead of losing frames.
		select {
		case s.frames <- frame:
			idx++
		case <-ctx.Done():
			return
		}
	}
}

// Frames returns the ordered frame channel. It is closed at end-of-stream,
// on a read failure, or after Close.
func (s *Source) Frames() <-chan types.Frame {
	return s.frames
}

// Width returns the native frame width.
func (s *Source) Width() int { return s.width }

// Height returns the native frame height.
func (s *Source) Height() int { return s.height }

// Err reports a mid-stream read failure, if any. io.EOF is not an error.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Close stops the producer and waits for it to exit. Any consumer blocked
// on Frames() observes the closed channel as end-of-stream.
func (s *Source) Close() {
	s.cancel()
	<-s.done
}
