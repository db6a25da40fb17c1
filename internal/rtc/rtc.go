// Package rtc implements peersync.Transport over WebRTC data channels.
//
// Signaling is non-trickle: Offer and Answer wait for ICE gathering to finish
// so the returned SDP carries every candidate and can be exchanged as a
// single copy-paste code.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/roach88/tether/internal/peersync"
)

// ChannelLabel is the data channel label both sides use.
const ChannelLabel = "sync"

// DefaultICEServers are public STUN servers.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Transport creates WebRTC peer connections with one ordered data channel.
type Transport struct {
	config webrtc.Configuration
	logger *slog.Logger
}

var _ peersync.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithICEServers replaces the ICE server list. No servers means host
// candidates only.
func WithICEServers(urls ...string) Option {
	return func(t *Transport) {
		t.config.ICEServers = nil
		if len(urls) > 0 {
			t.config.ICEServers = []webrtc.ICEServer{{URLs: urls}}
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New creates a transport using DefaultICEServers.
func New(opts ...Option) *Transport {
	t := &Transport{
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: DefaultICEServers}},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Offer creates a peer connection and the "sync" data channel, then returns
// the gathered offer.
func (t *Transport) Offer(ctx context.Context, events peersync.ChannelEvents) (peersync.Link, peersync.SessionDescription, error) {
	l, err := t.newLink(events)
	if err != nil {
		return nil, peersync.SessionDescription{}, err
	}

	ordered := true
	dc, err := l.pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		l.Close()
		return nil, peersync.SessionDescription{}, fmt.Errorf("create data channel: %w", err)
	}
	l.bind(dc)

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		l.Close()
		return nil, peersync.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	desc, err := l.gather(ctx, offer)
	if err != nil {
		l.Close()
		return nil, peersync.SessionDescription{}, err
	}
	return l, desc, nil
}

// Answer applies a remote offer and returns the gathered answer. The data
// channel arrives through OnDataChannel once the connection is up.
func (t *Transport) Answer(ctx context.Context, offer peersync.SessionDescription, events peersync.ChannelEvents) (peersync.Link, peersync.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer.String() {
		return nil, peersync.SessionDescription{}, fmt.Errorf("expected offer, got %q", offer.Type)
	}

	l, err := t.newLink(events)
	if err != nil {
		return nil, peersync.SessionDescription{}, err
	}
	l.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			t.logger.Warn("ignoring unexpected data channel", "label", dc.Label())
			return
		}
		l.bind(dc)
	})

	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		l.Close()
		return nil, peersync.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		l.Close()
		return nil, peersync.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	desc, err := l.gather(ctx, answer)
	if err != nil {
		l.Close()
		return nil, peersync.SessionDescription{}, err
	}
	return l, desc, nil
}

func (t *Transport) newLink(events peersync.ChannelEvents) (*link, error) {
	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	l := &link{pc: pc, events: events}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.logger.Debug("peer connection state", "state", s.String())
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			l.fireClose()
		}
	})
	return l, nil
}

// link owns one peer connection and its data channel.
type link struct {
	pc     *webrtc.PeerConnection
	events peersync.ChannelEvents

	mu     sync.Mutex
	opened bool
	closed atomic.Bool
}

func (l *link) bind(dc *webrtc.DataChannel) {
	ch := &channel{dc: dc}
	dc.OnOpen(func() {
		l.mu.Lock()
		l.opened = true
		l.mu.Unlock()
		if l.events.OnOpen != nil {
			l.events.OnOpen(ch)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if l.events.OnMessage != nil {
			l.events.OnMessage(msg.Data)
		}
	})
	dc.OnClose(l.fireClose)
}

// fireClose reports OnClose once, and only for a channel that opened. It may
// be reentered from inside OnClose.
func (l *link) fireClose() {
	l.mu.Lock()
	opened := l.opened
	l.mu.Unlock()
	if !opened || !l.closed.CompareAndSwap(false, true) {
		return
	}
	if l.events.OnClose != nil {
		l.events.OnClose()
	}
}

func (l *link) gather(ctx context.Context, desc webrtc.SessionDescription) (peersync.SessionDescription, error) {
	done := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(desc); err != nil {
		return peersync.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return peersync.SessionDescription{}, fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	local := l.pc.LocalDescription()
	if local == nil {
		return peersync.SessionDescription{}, errors.New("no local description after gathering")
	}
	return peersync.SessionDescription{Type: local.Type.String(), SDP: local.SDP}, nil
}

// Complete applies the remote answer.
func (l *link) Complete(_ context.Context, answer peersync.SessionDescription) error {
	if answer.Type != webrtc.SDPTypeAnswer.String() {
		return fmt.Errorf("expected answer, got %q", answer.Type)
	}
	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// Close closes the peer connection, which also closes the data channel.
func (l *link) Close() error {
	if err := l.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

// channel adapts a pion data channel to peersync.Channel. Messages go out as
// text frames so browser peers receive strings.
type channel struct {
	dc *webrtc.DataChannel
}

func (c *channel) Send(data []byte) error {
	if err := c.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("send on %s: %w", c.dc.Label(), err)
	}
	return nil
}

func (c *channel) IsOpen() bool {
	return c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *channel) Close() error {
	return c.dc.Close()
}
