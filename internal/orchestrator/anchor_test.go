package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/anchor"
	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/peersync"
)

func TestPublishAndRestoreSnapshot(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", nil)
	ctx := t.Context()
	seed(t, n)

	receipt, err := n.o.PublishSnapshot(ctx, "")
	require.NoError(t, err)
	assert.True(t, anchor.ValidCID(receipt.CID), "cid %q", receipt.CID)
	assert.Positive(t, receipt.Size)

	data, err := n.o.FetchSnapshot(ctx, receipt.CID)
	require.NoError(t, err)
	assert.Equal(t, receipt.CID, model.ContentID(data))
	snap, err := model.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada","level":3,"skills":{"go":2}}`, string(snap.Player))

	require.NoError(t, n.o.Save(ctx, model.PlayerKey, raw(`{"name":"Ada","level":1}`)))

	result, err := n.o.RestoreSnapshot(ctx, receipt.CID, "")
	require.NoError(t, err)
	assert.True(t, result.Success, "errors: %v", result.Errors)

	got, err := n.o.Load(ctx, model.PlayerKey)
	require.NoError(t, err)
	assert.JSONEq(t, string(snap.Player), string(got))
}

func TestPublishEncryptedSnapshot(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", nil)
	ctx := t.Context()
	seed(t, n)

	receipt, err := n.o.PublishSnapshot(ctx, "hunter2")
	require.NoError(t, err)

	result, err := n.o.RestoreSnapshot(ctx, receipt.CID, "wrong")
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Errors: []string{MsgDecryptFailed}}, result)

	result, err = n.o.RestoreSnapshot(ctx, receipt.CID, "hunter2")
	require.NoError(t, err)
	assert.True(t, result.Success, "errors: %v", result.Errors)
}

func TestFetchUnknownSnapshot(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", nil)

	_, err := n.o.FetchSnapshot(t.Context(), model.ContentID([]byte("never stored")))
	assert.ErrorIs(t, err, anchor.ErrNotFound)

	_, err = n.o.RestoreSnapshot(t.Context(), model.ContentID([]byte("never stored")), "")
	assert.ErrorIs(t, err, anchor.ErrNotFound)
}

func TestAnchorDisabled(t *testing.T) {
	n := newTestNode(t, peersync.NewMemoryNetwork(), "a", func(c *Config) { c.EnableContentAnchor = false })

	_, err := n.o.PublishSnapshot(t.Context(), "")
	assert.ErrorIs(t, err, ErrAnchorDisabled)
	_, err = n.o.FetchSnapshot(t.Context(), model.ContentID(nil))
	assert.ErrorIs(t, err, ErrAnchorDisabled)
	_, err = n.o.RestoreSnapshot(t.Context(), model.ContentID(nil), "")
	assert.ErrorIs(t, err, ErrAnchorDisabled)
}
