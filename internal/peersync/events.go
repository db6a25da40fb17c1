package peersync

import (
	"sync"

	"github.com/roach88/tether/internal/model"
)

// PeerEvent reports a peer lifecycle or sync boundary.
type PeerEvent struct {
	PeerID string
}

// DataEvent reports an entry adopted from a peer.
type DataEvent struct {
	PeerID string
	Key    string
	Entry  model.SyncEntry
}

// ConflictEvent reports an update with the local version but a newer
// timestamp. The engine does not apply it; the application may settle it
// with Engine.Resolve.
type ConflictEvent struct {
	PeerID string
	Key    string
	Local  model.SyncEntry
	Remote model.SyncEntry
}

// topic is a typed subscriber list. Handlers run synchronously on the
// publishing goroutine, outside any engine lock.
type topic[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

func (t *topic[T]) subscribe(fn func(T)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(T))
	}
	id := t.next
	t.next++
	t.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
		})
	}
}

func (t *topic[T]) publish(v T) {
	t.mu.Lock()
	handlers := make([]func(T), 0, len(t.subs))
	for i := 0; i < t.next; i++ {
		if fn, ok := t.subs[i]; ok {
			handlers = append(handlers, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range handlers {
		fn(v)
	}
}

type events struct {
	peerConnected    topic[PeerEvent]
	peerDisconnected topic[PeerEvent]
	syncStarted      topic[PeerEvent]
	syncCompleted    topic[PeerEvent]
	conflictDetected topic[ConflictEvent]
	dataReceived     topic[DataEvent]
}

// SubscribePeerConnected registers fn for channel-open events. The returned
// func unsubscribes.
func (e *Engine) SubscribePeerConnected(fn func(PeerEvent)) func() {
	return e.events.peerConnected.subscribe(fn)
}

// SubscribePeerDisconnected registers fn for peer removal.
func (e *Engine) SubscribePeerDisconnected(fn func(PeerEvent)) func() {
	return e.events.peerDisconnected.subscribe(fn)
}

// SubscribeSyncStarted registers fn for incoming sync requests.
func (e *Engine) SubscribeSyncStarted(fn func(PeerEvent)) func() {
	return e.events.syncStarted.subscribe(fn)
}

// SubscribeSyncCompleted registers fn for processed sync responses.
func (e *Engine) SubscribeSyncCompleted(fn func(PeerEvent)) func() {
	return e.events.syncCompleted.subscribe(fn)
}

// SubscribeConflictDetected registers fn for unresolved same-version updates.
func (e *Engine) SubscribeConflictDetected(fn func(ConflictEvent)) func() {
	return e.events.conflictDetected.subscribe(fn)
}

// SubscribeDataReceived registers fn for entries adopted from peers.
func (e *Engine) SubscribeDataReceived(fn func(DataEvent)) func() {
	return e.events.dataReceived.subscribe(fn)
}
