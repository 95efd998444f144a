// Package stream fans generation output out to subscribers keyed by stream
// ID. Producers publish through a Broadcaster; the HTTP layer subscribes a
// websocket per stream ID. Publishing to a stream nobody watches is a no-op,
// so persistence never depends on delivery.
package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/logging"
)

// Event payload types.
const (
	EventContent    = "content"
	EventToolStatus = "tool_status"
	EventDone       = "done"
	EventError      = "error"
)

// ToolStatus announces a tool-call state change mid-stream.
type ToolStatus struct {
	Tool   string `json:"tool"`
	Status string `json:"status"`
}

// Event is one frame delivered to stream subscribers. Exactly one payload
// field is set; marshaling an Event yields the wire shape directly.
type Event struct {
	Type       string      `json:"-"`
	Content    string      `json:"content,omitempty"`
	ToolStatus *ToolStatus `json:"tool_status,omitempty"`
	Done       bool        `json:"done,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// subscriber channels are buffered; a consumer that falls this far behind
// starts losing frames rather than stalling the generation.
const subscriberBuffer = 256

// NewStreamID returns a fresh stream identifier.
func NewStreamID() string {
	return uuid.New().String()
}

// subscriber is one consumer of a stream. The per-subscriber mutex
// serializes sends against close so a consumer cancelling mid-stream can
// never race a producer into a send on a closed channel.
type subscriber struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// send delivers ev unless the subscriber is already closed. Returns false
// when the buffer is full and the event was dropped.
func (s *subscriber) send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// close closes the channel exactly once.
func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub routes events from producers to subscribers by stream ID.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]*subscriber
	log  *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		subs: make(map[string][]*subscriber),
		log:  log.Sub("stream"),
	}
}

// Subscribe registers a consumer for a stream ID. The returned channel
// receives events in publish order and is closed when the stream ends or
// cancel is called. cancel is safe to call more than once and safe to call
// concurrently with publishes.
func (h *Hub) Subscribe(streamID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.subs[streamID] = append(h.subs[streamID], sub)
	h.mu.Unlock()

	cancel := func() { h.unsubscribe(streamID, sub) }
	return sub.ch, cancel
}

func (h *Hub) unsubscribe(streamID string, sub *subscriber) {
	h.mu.Lock()
	subs := h.subs[streamID]
	for i, s := range subs {
		if s == sub {
			h.subs[streamID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[streamID]) == 0 {
		delete(h.subs, streamID)
	}
	h.mu.Unlock()

	sub.close()
}

// Publish delivers an event to every subscriber of streamID. A terminal
// event closes the stream afterward. No subscribers, no work.
func (h *Hub) Publish(streamID string, ev Event) {
	if streamID == "" {
		return
	}

	h.mu.RLock()
	subs := append([]*subscriber(nil), h.subs[streamID]...)
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.send(ev) {
			h.log.Warn().Str("stream", streamID).Str("type", ev.Type).
				Msg("subscriber buffer full, dropping event")
		}
	}

	if ev.Terminal() {
		h.closeStream(streamID)
	}
}

// SubscriberCount returns how many consumers are attached to a stream.
func (h *Hub) SubscriberCount(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[streamID])
}

func (h *Hub) closeStream(streamID string) {
	h.mu.Lock()
	subs := h.subs[streamID]
	delete(h.subs, streamID)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
