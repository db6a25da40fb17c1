package orchestrator

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/anchor"
	"github.com/roach88/tether/internal/peersync"
	"github.com/roach88/tether/internal/store"
	"github.com/roach88/tether/internal/testutil"
)

// testEpoch is 2023-11-14T22:13:20Z.
const testEpoch = int64(1_700_000_000_000)

type testNode struct {
	o      *Orchestrator
	store  *store.Store
	peers  *peersync.Engine
	anchor *anchor.BoltAnchor
	clock  *testutil.ManualClock
}

// newTestNode builds an orchestrator with every component on and auto-sync
// off. mutate may adjust the config before construction. The node is closed
// on cleanup.
func newTestNode(t *testing.T, net *peersync.MemoryNetwork, prefix string, mutate func(*Config)) *testNode {
	t.Helper()
	return newTestNodeAt(t, t.TempDir(), net, prefix, mutate)
}

// newTestNodeAt is newTestNode over the databases in dir, so a node can be
// closed and reopened on the same data.
func newTestNodeAt(t *testing.T, dir string, net *peersync.MemoryNetwork, prefix string, mutate func(*Config)) *testNode {
	t.Helper()
	clock := testutil.NewManualClock(testEpoch)

	st, err := store.Open(filepath.Join(dir, "tether.db"), store.WithClock(clock))
	require.NoError(t, err)
	an, err := anchor.OpenBolt(filepath.Join(dir, "anchor.db"))
	require.NoError(t, err)
	peers := peersync.New(net.Transport(), peersync.WithIDGenerator(testutil.NewSequentialIDs(prefix)))

	cfg := DefaultConfig()
	cfg.AutoSync = false
	if mutate != nil {
		mutate(&cfg)
	}

	o, err := New(cfg, Deps{Store: st, Peers: peers, Anchor: an, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })

	return &testNode{o: o, store: st, peers: peers, anchor: an, clock: clock}
}

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

// connect links a to b through share codes.
func connect(t *testing.T, a, b *Orchestrator) {
	t.Helper()
	ctx := t.Context()

	code, pendingID, err := a.GenerateShareCode(ctx)
	require.NoError(t, err)
	answer, err := b.ConnectWithCode(ctx, code)
	require.NoError(t, err)
	remoteID, err := a.CompleteConnection(ctx, answer, pendingID)
	require.NoError(t, err)
	require.Equal(t, b.PeerID(), remoteID)
}
