package orchestrator

import (
	"context"
)

// GenerateShareCode creates a connection code for another device. The
// pending id must be passed to CompleteConnection with the answer.
func (o *Orchestrator) GenerateShareCode(ctx context.Context) (code, pendingID string, err error) {
	if !o.peersEnabled() {
		return "", "", ErrPeerSyncDisabled
	}
	return o.peers.GenerateConnectionCode(ctx)
}

// ConnectWithCode accepts a share code and returns the answer code.
func (o *Orchestrator) ConnectWithCode(ctx context.Context, code string) (string, error) {
	if !o.peersEnabled() {
		return "", ErrPeerSyncDisabled
	}
	return o.peers.ConnectWithCode(ctx, code)
}

// CompleteConnection applies an answer code and returns the remote peer id.
func (o *Orchestrator) CompleteConnection(ctx context.Context, answerCode, pendingID string) (string, error) {
	if !o.peersEnabled() {
		return "", ErrPeerSyncDisabled
	}
	return o.peers.CompleteConnectionWithCode(ctx, answerCode, pendingID)
}

// ConnectedPeers lists connected peer ids; empty when peer sync is off.
func (o *Orchestrator) ConnectedPeers() []string {
	if !o.peersEnabled() {
		return []string{}
	}
	return o.peers.ConnectedPeers()
}

// PeerID returns this device's peer id, or "" without a peer engine.
func (o *Orchestrator) PeerID() string {
	if o.peers == nil {
		return ""
	}
	return o.peers.ID()
}
