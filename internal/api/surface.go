package api

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/starford/pixgrade/internal/checksum"
	"github.com/starford/pixgrade/internal/sse"
	"github.com/starford/pixgrade/internal/viewer"
)

// Surface publishes viewer frames to browser clients. It implements
// viewer.Surface: the session loop calls Show, HTTP handlers read the last
// published frame.
type Surface struct {
	broker *sse.Broker

	mu      sync.RWMutex
	state   StateResponse
	png     []byte
	etag    string
	closed  bool
	closeCh chan struct{}
}

// NewSurface creates a Surface that announces frames on broker. broker may
// be nil.
func NewSurface(broker *sse.Broker) *Surface {
	return &Surface{broker: broker, closeCh: make(chan struct{})}
}

// Show encodes frame and makes it the current frame.
func (s *Surface) Show(snap viewer.Snapshot, frame image.Image) error {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, frame); err != nil {
		return fmt.Errorf("api: encode frame: %w", err)
	}

	s.mu.Lock()
	s.state = StateResponse{Snapshot: snap, Version: s.state.Version + 1}
	s.png = buf.Bytes()
	s.etag = checksum.ETag(s.png)
	state := s.state
	s.mu.Unlock()

	if s.broker != nil {
		s.broker.PublishFrame(state)
	}
	return nil
}

// Close marks the viewer as gone. Further key events are rejected.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()

	if s.broker != nil {
		s.broker.Publish(sse.Event{Type: sse.EventViewerClosed, Data: map[string]string{}})
	}
}

// Done is closed once Close has been called.
func (s *Surface) Done() <-chan struct{} {
	return s.closeCh
}

// Frame is one published frame: the encoded PNG, its entity tag and the
// viewer state it shows, read together.
type Frame struct {
	PNG   []byte
	ETag  string
	State StateResponse
}

// Frame returns the current frame. ok is false before the first Show.
func (s *Surface) Frame() (f Frame, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Frame{PNG: s.png, ETag: s.etag, State: s.state}, s.png != nil
}
