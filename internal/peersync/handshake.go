package peersync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tether/internal/model"
)

// CreateOffer starts an outgoing connection. The peer is tracked under a
// pending id until CompleteConnection learns the remote id.
func (e *Engine) CreateOffer(ctx context.Context) (SessionDescription, string, error) {
	const op = "peersync.create_offer"

	pendingID := pendingPrefix + e.ids.Generate()
	p, events := e.newPeer(pendingID)

	link, offer, err := e.transport.Offer(ctx, events)
	if err != nil {
		return SessionDescription{}, "", model.ConnectionFailure(op, err)
	}
	e.addPeer(p, link)
	e.logger.Debug("offer created", "pending", pendingID)
	return offer, pendingID, nil
}

// AcceptOffer answers an offer from remoteID.
func (e *Engine) AcceptOffer(ctx context.Context, offer SessionDescription, remoteID string) (SessionDescription, error) {
	const op = "peersync.accept_offer"

	if remoteID == "" {
		return SessionDescription{}, model.ConnectionFailure(op, errors.New("missing remote peer id"))
	}
	p, events := e.newPeer(remoteID)

	link, answer, err := e.transport.Answer(ctx, offer, events)
	if err != nil {
		return SessionDescription{}, model.ConnectionFailure(op, err)
	}
	e.addPeer(p, link)
	e.logger.Debug("offer accepted", "peer", remoteID)
	return answer, nil
}

// CompleteConnection applies the answer to the pending connection and
// re-keys it under remoteID.
func (e *Engine) CompleteConnection(ctx context.Context, answer SessionDescription, pendingID, remoteID string) error {
	const op = "peersync.complete_connection"

	if remoteID == "" {
		return model.ConnectionFailure(op, errors.New("missing remote peer id"))
	}

	e.mu.Lock()
	p, ok := e.peers[pendingID]
	if !ok {
		e.mu.Unlock()
		return model.ConnectionFailure(op, fmt.Errorf("no pending connection %q", pendingID))
	}
	delete(e.peers, pendingID)
	p.id = remoteID
	old := e.peers[remoteID]
	e.peers[remoteID] = p
	link := p.link
	e.mu.Unlock()

	if old != nil {
		e.dropPeer(old)
	}

	if err := link.Complete(ctx, answer); err != nil {
		e.dropPeer(p)
		return model.ConnectionFailure(op, err)
	}
	e.logger.Debug("connection completed", "peer", remoteID, "pending", pendingID)
	return nil
}

// connectionCode is the out-of-band blob exchanged between users. It always
// carries the sender's real peer id.
type connectionCode struct {
	PeerID    string              `json:"peerId"`
	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

func encodeCode(c connectionCode) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeCode(code string) (connectionCode, error) {
	var c connectionCode
	raw, err := base64.StdEncoding.DecodeString(code)
	if err != nil {
		return c, fmt.Errorf("decode connection code: %w", err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parse connection code: %w", err)
	}
	if c.PeerID == "" {
		return c, errors.New("connection code has no peer id")
	}
	return c, nil
}

// GenerateConnectionCode creates an offer and wraps it in a shareable code.
// The returned pending id is needed to complete the connection.
func (e *Engine) GenerateConnectionCode(ctx context.Context) (string, string, error) {
	offer, pendingID, err := e.CreateOffer(ctx)
	if err != nil {
		return "", "", err
	}
	code, err := encodeCode(connectionCode{PeerID: e.id, Offer: &offer, Timestamp: e.now()})
	if err != nil {
		e.DisconnectPeer(pendingID)
		return "", "", model.ConnectionFailure("peersync.generate_code", err)
	}
	return code, pendingID, nil
}

// ConnectWithCode accepts a connection code and returns the answer code to
// send back to its author.
func (e *Engine) ConnectWithCode(ctx context.Context, code string) (string, error) {
	const op = "peersync.connect_with_code"

	c, err := decodeCode(code)
	if err != nil {
		return "", model.ConnectionFailure(op, err)
	}
	if c.Offer == nil {
		return "", model.ConnectionFailure(op, errors.New("connection code has no offer"))
	}
	if c.PeerID == e.id {
		return "", model.ConnectionFailure(op, errors.New("cannot connect to self"))
	}

	answer, err := e.AcceptOffer(ctx, *c.Offer, c.PeerID)
	if err != nil {
		return "", err
	}
	out, err := encodeCode(connectionCode{PeerID: e.id, Answer: &answer, Timestamp: e.now()})
	if err != nil {
		e.DisconnectPeer(c.PeerID)
		return "", model.ConnectionFailure(op, err)
	}
	return out, nil
}

// CompleteConnectionWithCode applies an answer code to the pending
// connection and returns the remote peer id.
func (e *Engine) CompleteConnectionWithCode(ctx context.Context, code, pendingID string) (string, error) {
	const op = "peersync.complete_with_code"

	c, err := decodeCode(code)
	if err != nil {
		return "", model.ConnectionFailure(op, err)
	}
	if c.Answer == nil {
		return "", model.ConnectionFailure(op, errors.New("connection code has no answer"))
	}
	if err := e.CompleteConnection(ctx, *c.Answer, pendingID, c.PeerID); err != nil {
		return "", err
	}
	return c.PeerID, nil
}
