package peersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelClosed is returned when sending on a closed or unopened channel.
var ErrChannelClosed = errors.New("channel is not open")

// memoryInboxSize bounds undelivered messages per endpoint.
const memoryInboxSize = 256

// MemoryNetwork connects Transports inside one process. Offers are matched to
// answers by an opaque token carried in the SDP field.
//
// It backs tests and the single-process demo; real peers use the WebRTC
// transport.
type MemoryNetwork struct {
	mu     sync.Mutex
	next   int
	offers map[string]*memLink
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{offers: make(map[string]*memLink)}
}

// Transport returns a Transport attached to the network.
func (n *MemoryNetwork) Transport() Transport {
	return &memoryTransport{net: n}
}

type memoryTransport struct {
	net *MemoryNetwork
}

func (t *memoryTransport) Offer(_ context.Context, events ChannelEvents) (Link, SessionDescription, error) {
	link := newMemLink(events)
	link.net = t.net

	t.net.mu.Lock()
	t.net.next++
	link.token = fmt.Sprintf("mem-%d", t.net.next)
	t.net.offers[link.token] = link
	t.net.mu.Unlock()

	return link, SessionDescription{Type: "offer", SDP: link.token}, nil
}

func (t *memoryTransport) Answer(_ context.Context, offer SessionDescription, events ChannelEvents) (Link, SessionDescription, error) {
	if offer.Type != "offer" {
		return nil, SessionDescription{}, fmt.Errorf("expected offer, got %q", offer.Type)
	}

	t.net.mu.Lock()
	remote, ok := t.net.offers[offer.SDP]
	delete(t.net.offers, offer.SDP)
	t.net.mu.Unlock()
	if !ok {
		return nil, SessionDescription{}, fmt.Errorf("unknown offer %q", offer.SDP)
	}

	link := newMemLink(events)
	link.token = offer.SDP
	link.peer = remote

	remote.mu.Lock()
	remote.peer = link
	remote.mu.Unlock()

	return link, SessionDescription{Type: "answer", SDP: offer.SDP}, nil
}

// memLink is both the Link and the Channel of one endpoint.
type memLink struct {
	events ChannelEvents
	inbox  chan []byte
	done   chan struct{}

	mu     sync.Mutex
	net    *MemoryNetwork
	token  string
	peer   *memLink
	opened bool
	closed bool
}

func newMemLink(events ChannelEvents) *memLink {
	return &memLink{
		events: events,
		inbox:  make(chan []byte, memoryInboxSize),
		done:   make(chan struct{}),
	}
}

func (l *memLink) Complete(_ context.Context, answer SessionDescription) error {
	l.mu.Lock()
	peer := l.peer
	token := l.token
	closed := l.closed
	l.mu.Unlock()

	switch {
	case closed:
		return ErrChannelClosed
	case answer.Type != "answer":
		return fmt.Errorf("expected answer, got %q", answer.Type)
	case answer.SDP != token || peer == nil:
		return fmt.Errorf("answer %q does not match offer %q", answer.SDP, token)
	}

	peer.open()
	l.open()
	return nil
}

func (l *memLink) open() {
	l.mu.Lock()
	if l.closed || l.opened {
		l.mu.Unlock()
		return
	}
	l.opened = true
	l.mu.Unlock()

	// OnOpen runs before any OnMessage.
	if l.events.OnOpen != nil {
		l.events.OnOpen(l)
	}
	go l.run()
}

func (l *memLink) run() {
	for {
		select {
		case msg := <-l.inbox:
			if l.events.OnMessage != nil {
				l.events.OnMessage(msg)
			}
		case <-l.done:
			return
		}
	}
}

func (l *memLink) Send(data []byte) error {
	l.mu.Lock()
	ok := l.opened && !l.closed
	peer := l.peer
	l.mu.Unlock()
	if !ok || peer == nil {
		return ErrChannelClosed
	}

	msg := append([]byte(nil), data...)
	select {
	case peer.inbox <- msg:
		return nil
	case <-peer.done:
		return ErrChannelClosed
	}
}

func (l *memLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened && !l.closed
}

// Close closes both ends. OnClose fires on each end that had opened. Close
// may be called again from inside OnClose.
func (l *memLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	wasOpen := l.opened
	l.closed = true
	peer := l.peer
	n := l.net
	l.mu.Unlock()
	close(l.done)

	if n != nil {
		n.mu.Lock()
		if n.offers[l.token] == l {
			delete(n.offers, l.token)
		}
		n.mu.Unlock()
	}

	if wasOpen && l.events.OnClose != nil {
		l.events.OnClose()
	}
	if peer != nil {
		peer.Close()
	}
	return nil
}
