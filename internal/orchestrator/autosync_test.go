package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/peersync"
)

func TestStartAutoSyncIsReentrant(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", func(c *Config) { c.SyncInterval = time.Hour })

	first := n.o.StartAutoSync()
	assert.Same(t, first, n.o.StartAutoSync())

	first.Stop()
	first.Stop()
	second := n.o.StartAutoSync()
	assert.NotSame(t, first, second)

	n.o.StopAutoSync()
	n.o.StopAutoSync()
	assert.Nil(t, n.o.autoSync)
}

func TestSyncTickPushesStoredPlayer(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", nil)
	ctx := t.Context()

	n.o.syncTick(ctx)
	_, ok := n.peers.LocalData(model.PlayerKey)
	assert.False(t, ok, "nothing stored, nothing pushed")

	_, err := n.store.SavePlayer(ctx, raw(`{"level":4}`))
	require.NoError(t, err)

	n.o.syncTick(ctx)
	entry, ok := n.peers.LocalData(model.PlayerKey)
	require.True(t, ok)
	assert.JSONEq(t, `{"level":4}`, string(entry.Data))
	assert.Equal(t, int64(1), entry.Version)

	n.o.syncTick(ctx)
	again, _ := n.peers.LocalData(model.PlayerKey)
	assert.Equal(t, entry, again, "unchanged data is not pushed again")
}

func TestSyncTickUsesCurrentVersion(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", nil)
	ctx := t.Context()

	for _, level := range []string{`{"level":1}`, `{"level":2}`, `{"level":3}`} {
		require.NoError(t, n.o.Save(ctx, model.PlayerKey, raw(level)))
	}
	n.peers.SetLocalData(model.PlayerKey, raw(`{"level":0}`), 1)

	n.o.syncTick(ctx)
	entry, ok := n.peers.LocalData(model.PlayerKey)
	require.True(t, ok)
	assert.JSONEq(t, `{"level":3}`, string(entry.Data))
	assert.Equal(t, int64(3), entry.Version)
}

func TestSyncTickUsesRecordVersion(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", nil)
	ctx := t.Context()

	n.o.advanceVersion(10)
	_, err := n.store.SavePlayer(ctx, raw(`{"level":2}`))
	require.NoError(t, err)

	n.o.syncTick(ctx)
	entry, ok := n.peers.LocalData(model.PlayerKey)
	require.True(t, ok)
	assert.Equal(t, int64(1), entry.Version, "the shared counter is not the record's version")

	require.NoError(t, n.o.Save(ctx, model.PlayerKey, raw(`{"level":3}`)))
	entry, _ = n.peers.LocalData(model.PlayerKey)
	assert.Equal(t, int64(11), entry.Version)
}

func TestAutoSyncLoopRuns(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", func(c *Config) { c.SyncInterval = 5 * time.Millisecond })
	_, err := n.store.SavePlayer(t.Context(), raw(`{"level":7}`))
	require.NoError(t, err)

	n.o.StartAutoSync()
	assert.Eventually(t, func() bool {
		_, ok := n.peers.LocalData(model.PlayerKey)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	n.o.StopAutoSync()
}

func TestAutoSyncSkippedWithoutStore(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", func(c *Config) { c.EnableLocalStore = false })
	_, err := n.store.SavePlayer(t.Context(), raw(`{"level":7}`))
	require.NoError(t, err)

	n.o.syncTick(t.Context())
	_, ok := n.peers.LocalData(model.PlayerKey)
	assert.False(t, ok)
}
