package orchestrator

import (
	"context"
	"fmt"

	"github.com/roach88/tether/internal/store"
)

// PeerStats summarizes the peer engine.
type PeerStats struct {
	PeerID         string `json:"peerId"`
	ConnectedPeers int    `json:"connectedPeers"`
	LocalDataKeys  int    `json:"localDataKeys"`
}

// Stats is a point-in-time view of every component.
type Stats struct {
	Store  *store.Stats `json:"store"`
	Peers  PeerStats    `json:"peers"`
	Config Config       `json:"config"`
}

// Stats gathers store and peer statistics. Store is nil when the store is
// disabled.
func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Config: o.Config()}

	if st.Config.EnableLocalStore {
		s, err := o.store.Stats(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
		st.Store = &s
	}
	if o.peers != nil {
		st.Peers = PeerStats{
			PeerID:        o.peers.ID(),
			LocalDataKeys: len(o.peers.LocalKeys()),
		}
		if st.Config.EnablePeerSync {
			st.Peers.ConnectedPeers = len(o.peers.ConnectedPeers())
		}
	}
	return st, nil
}
