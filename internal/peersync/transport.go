package peersync

import "context"

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ChannelEvents receives callbacks for one peer's data channel. Callbacks may
// run on any goroutine; OnMessage calls for one channel are serialized.
type ChannelEvents struct {
	OnOpen    func(Channel)
	OnMessage func([]byte)
	OnClose   func()
}

// Channel is an ordered, reliable message pipe to one peer.
type Channel interface {
	Send(data []byte) error
	IsOpen() bool
	Close() error
}

// Link is the connection underneath a channel.
type Link interface {
	// Complete applies the remote answer to a link created by Offer.
	Complete(ctx context.Context, answer SessionDescription) error
	Close() error
}

// Transport creates links. Offer creates the data channel locally; Answer
// receives it from the offering side. Either way the channel is handed to
// ChannelEvents.OnOpen once usable.
type Transport interface {
	Offer(ctx context.Context, events ChannelEvents) (Link, SessionDescription, error)
	Answer(ctx context.Context, offer SessionDescription, events ChannelEvents) (Link, SessionDescription, error)
}
