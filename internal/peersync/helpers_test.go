package peersync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/roach88/tether/internal/testutil"
)

// testEpoch is 2023-11-14T22:13:20Z.
const testEpoch = int64(1_700_000_000_000)

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

// newTestEngine creates an engine whose ids are "peer_<prefix>1",
// "pending_<prefix>2" and so on. The engine is closed on cleanup.
func newTestEngine(t *testing.T, transport Transport, prefix string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithIDGenerator(testutil.NewSequentialIDs(prefix))}, opts...)
	e := New(transport, opts...)
	t.Cleanup(e.Close)
	return e
}

// recordingChannel captures sent messages.
type recordingChannel struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *recordingChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *recordingChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *recordingChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingChannel) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

func (c *recordingChannel) messages(t *testing.T) []Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.sent))
	for _, data := range c.sent {
		m, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", data, err)
		}
		out = append(out, m)
	}
	return out
}

type nopLink struct{}

func (nopLink) Complete(context.Context, SessionDescription) error { return nil }
func (nopLink) Close() error                                       { return nil }

// attachPeer registers an open peer backed by a recording channel. The
// sync_request sent on open is discarded.
func attachPeer(t *testing.T, e *Engine, id string) (*peer, *recordingChannel) {
	t.Helper()
	ch := &recordingChannel{}
	p, _ := e.newPeer(id)
	e.addPeer(p, nopLink{})
	e.onOpen(p, ch)
	ch.reset()
	return p, ch
}

func mustEncode(t *testing.T, m Message) []byte {
	t.Helper()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	return data
}
