// Package sse implements a Server-Sent Events broker that notifies viewer
// pages about new frames.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// keepAlive is how often an idle stream receives a comment line, so
// proxies and browsers do not time the connection out.
var keepAlive = 15 * time.Second

const (
	// EventFrameUpdated announces that a new frame is available.
	EventFrameUpdated = "frame.updated"
	// EventViewerClosed announces that the viewer loop has exited.
	EventViewerClosed = "viewer.closed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal loop owns the client set and the frame coalescing
// state; public methods talk to it through channels.
type Broker struct {
	frameMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	frameCh       chan any
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. Frames published less than frameInterval
// apart are coalesced into one trailing frame.updated event carrying the
// latest data.
func NewBroker(frameInterval time.Duration) *Broker {
	if frameInterval <= 0 {
		frameInterval = 50 * time.Millisecond
	}

	b := &Broker{
		frameMin:      frameInterval,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		frameCh:       make(chan any, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// Encode formats an event in the text/event-stream wire format.
func Encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event.Type, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastFrame time.Time
		pending   any
		hasFrame  bool
		timer     *time.Timer
		timerCh   <-chan time.Time
	)

	send := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client; drop rather than block the loop
			}
		}
	}
	broadcast := func(event Event) {
		if raw, err := Encode(event); err == nil {
			send(raw)
		}
	}

	// latest is replayed to new subscribers so a page that connects
	// between frames still learns the current state.
	var latest []byte
	flushFrame := func(now time.Time) {
		lastFrame = now
		hasFrame = false
		raw, err := Encode(Event{Type: EventFrameUpdated, Data: pending})
		pending = nil
		if err != nil {
			return
		}
		latest = raw
		send(raw)
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if latest != nil {
				ch <- latest
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case data := <-b.frameCh:
			pending, hasFrame = data, true
			now := time.Now()
			wait := b.frameMin - now.Sub(lastFrame)
			if wait <= 0 {
				flushFrame(now)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(wait)
				timerCh = timer.C
			} else if timerCh == nil {
				timer.Reset(wait)
				timerCh = timer.C
			}

		case <-timerCh:
			timerCh = nil
			if hasFrame {
				flushFrame(time.Now())
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. If a frame has
// already been announced, the channel starts with that event.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients immediately.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishFrame announces a new frame described by data, subject to
// coalescing.
func (b *Broker) PublishFrame(data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.frameCh <- data:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
