package stream

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/quill/internal/logging"
)

func testHub() *Hub {
	return NewHub(logging.New(io.Discard, "silent"))
}

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d", len(out), n)
		}
	}
	return out
}

func TestPublishDeliversInOrder(t *testing.T) {
	h := testHub()
	id := NewStreamID()
	ch, cancel := h.Subscribe(id)
	defer cancel()

	b := NewBroadcaster(h, id)
	b.Chunk("The ")
	b.Chunk("quick ")
	b.Chunk("fox")
	b.Done()

	events := collect(t, ch, 4)
	require.Len(t, events, 4)
	assert.Equal(t, "The ", events[0].Content)
	assert.Equal(t, "quick ", events[1].Content)
	assert.Equal(t, "fox", events[2].Content)
	assert.True(t, events[3].Done)

	// Terminal event closed the stream
	_, open := <-ch
	assert.False(t, open)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	h := testHub()
	b := NewBroadcaster(h, NewStreamID())
	b.Chunk("nobody listening")
	b.Done()
	assert.Zero(t, h.SubscriberCount(b.StreamID()))
}

func TestEmptyStreamIDSwallowsEverything(t *testing.T) {
	h := testHub()
	b := NewBroadcaster(h, "")
	b.Chunk("silent")
	b.ToolStatus("navigate", "running")
	b.Done()
	b.Fail("ignored")

	var nilB *Broadcaster
	nilB.Chunk("also fine")
	assert.Empty(t, nilB.StreamID())
}

func TestMultipleSubscribersEachGetEverything(t *testing.T) {
	h := testHub()
	id := NewStreamID()
	a, cancelA := h.Subscribe(id)
	defer cancelA()
	b, cancelB := h.Subscribe(id)
	defer cancelB()
	assert.Equal(t, 2, h.SubscriberCount(id))

	bc := NewBroadcaster(h, id)
	bc.Chunk("x")
	bc.Done()

	assert.Len(t, collect(t, a, 2), 2)
	assert.Len(t, collect(t, b, 2), 2)
}

func TestErrorIsTerminal(t *testing.T) {
	h := testHub()
	id := NewStreamID()
	ch, cancel := h.Subscribe(id)
	defer cancel()

	bc := NewBroadcaster(h, id)
	bc.Fail("generation timed out")

	events := collect(t, ch, 1)
	require.Len(t, events, 1)
	assert.Equal(t, "generation timed out", events[0].Error)
	assert.True(t, events[0].Terminal())

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.SubscriberCount(id))
}

func TestCancelUnsubscribes(t *testing.T) {
	h := testHub()
	id := NewStreamID()
	ch, cancel := h.Subscribe(id)
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.SubscriberCount(id))
}

func TestCancelIsIdempotent(t *testing.T) {
	h := testHub()
	id := NewStreamID()
	_, cancel := h.Subscribe(id)
	cancel()
	cancel()
	assert.Zero(t, h.SubscriberCount(id))
}

func TestCancelDuringPublishNeverPanics(t *testing.T) {
	h := testHub()
	id := NewStreamID()

	const subscribers = 32
	cancels := make([]func(), subscribers)
	for i := range cancels {
		_, cancels[i] = h.Subscribe(id)
	}

	bc := NewBroadcaster(h, id)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			bc.Chunk("x")
		}
		bc.Done()
	}()

	var wg sync.WaitGroup
	for _, cancel := range cancels {
		wg.Add(1)
		go func(cancel func()) {
			defer wg.Done()
			cancel()
		}(cancel)
	}
	wg.Wait()
	<-done

	assert.Zero(t, h.SubscriberCount(id))
}

func TestCancelAfterTerminalIsNoop(t *testing.T) {
	h := testHub()
	id := NewStreamID()
	ch, cancel := h.Subscribe(id)

	bc := NewBroadcaster(h, id)
	bc.Done()

	events := collect(t, ch, 1)
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)

	// The stream already closed the channel; cancelling must not close twice.
	cancel()
	assert.Zero(t, h.SubscriberCount(id))
}

func TestToolStatusEvent(t *testing.T) {
	h := testHub()
	id := NewStreamID()
	ch, cancel := h.Subscribe(id)
	defer cancel()

	bc := NewBroadcaster(h, id)
	bc.ToolStatus("extract_links", "completed")

	events := collect(t, ch, 1)
	require.NotNil(t, events[0].ToolStatus)
	assert.Equal(t, "extract_links", events[0].ToolStatus.Tool)
	assert.Equal(t, "completed", events[0].ToolStatus.Status)
}

func TestEventWireShapes(t *testing.T) {
	cases := []struct {
		ev   Event
		want string
	}{
		{Event{Type: EventContent, Content: "hi"}, `{"content":"hi"}`},
		{Event{Type: EventToolStatus, ToolStatus: &ToolStatus{Tool: "navigate", Status: "running"}},
			`{"tool_status":{"tool":"navigate","status":"running"}}`},
		{Event{Type: EventDone, Done: true}, `{"done":true}`},
		{Event{Type: EventError, Error: "nope"}, `{"error":"nope"}`},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.ev)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(b))
	}
}
