package stream

// Broadcaster publishes one generation's output to a single stream ID. A
// broadcaster with an empty stream ID (or nil hub) swallows everything,
// which is how synchronous, non-streamed dispatches run.
type Broadcaster struct {
	hub      *Hub
	streamID string
}

// NewBroadcaster binds a broadcaster to a stream ID on hub.
func NewBroadcaster(hub *Hub, streamID string) *Broadcaster {
	return &Broadcaster{hub: hub, streamID: streamID}
}

// StreamID returns the bound stream ID, or "".
func (b *Broadcaster) StreamID() string {
	if b == nil {
		return ""
	}
	return b.streamID
}

func (b *Broadcaster) active() bool {
	return b != nil && b.hub != nil && b.streamID != ""
}

// Chunk publishes an incremental content delta.
func (b *Broadcaster) Chunk(content string) {
	if !b.active() || content == "" {
		return
	}
	b.hub.Publish(b.streamID, Event{Type: EventContent, Content: content})
}

// ToolStatus publishes a tool-call state change.
func (b *Broadcaster) ToolStatus(tool, status string) {
	if !b.active() {
		return
	}
	b.hub.Publish(b.streamID, Event{
		Type:       EventToolStatus,
		ToolStatus: &ToolStatus{Tool: tool, Status: status},
	})
}

// Done signals successful completion and closes the stream. Publish this
// only after the result is persisted, so a client acting on it can read
// what it was told is there.
func (b *Broadcaster) Done() {
	if !b.active() {
		return
	}
	b.hub.Publish(b.streamID, Event{Type: EventDone, Done: true})
}

// Fail publishes a terminal error and closes the stream.
func (b *Broadcaster) Fail(msg string) {
	if !b.active() {
		return
	}
	b.hub.Publish(b.streamID, Event{Type: EventError, Error: msg})
}
