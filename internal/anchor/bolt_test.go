package anchor

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/roach88/tether/internal/model"
)

func openTestBolt(t *testing.T) *BoltAnchor {
	t.Helper()
	a, err := OpenBolt(filepath.Join(t.TempDir(), "anchor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestBoltPutGet(t *testing.T) {
	a := openTestBolt(t)
	data := []byte(strings.Repeat(`{"player":{"level":3}}`, 50))

	r, err := a.Put(t.Context(), data)
	require.NoError(t, err)
	assert.Equal(t, model.ContentID(data), r.CID)
	assert.Equal(t, len(data), r.Size)
	assert.True(t, strings.HasPrefix(r.URL, "bolt://"))
	assert.True(t, strings.HasSuffix(r.URL, "#"+r.CID))

	got, err := a.Get(t.Context(), r.CID)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := a.Has(t.Context(), r.CID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoltPutIsIdempotent(t *testing.T) {
	a := openTestBolt(t)

	r1, err := a.Put(t.Context(), []byte("same"))
	require.NoError(t, err)
	r2, err := a.Put(t.Context(), []byte("same"))
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	var n int
	require.NoError(t, a.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(blobBucket).Stats().KeyN
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestBoltNotFound(t *testing.T) {
	a := openTestBolt(t)
	missing := model.ContentID([]byte("never stored"))

	_, err := a.Get(t.Context(), missing)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := a.Has(t.Context(), missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltRejectsMalformedCID(t *testing.T) {
	a := openTestBolt(t)

	for _, cid := range []string{"", "sha256-xyz", "md5-" + strings.Repeat("a", 64), "sha256-" + strings.Repeat("A", 64)} {
		_, err := a.Get(t.Context(), cid)
		assert.Error(t, err, cid)
		assert.NotErrorIs(t, err, ErrNotFound, cid)
	}
}

func TestBoltDetectsCorruption(t *testing.T) {
	a := openTestBolt(t)
	r, err := a.Put(t.Context(), []byte("original"))
	require.NoError(t, err)

	require.NoError(t, a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blobBucket).Put([]byte(r.CID), snappy.Encode(nil, []byte("tampered")))
	}))

	_, err = a.Get(t.Context(), r.CID)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchor.db")
	a, err := OpenBolt(path)
	require.NoError(t, err)
	r, err := a.Put(t.Context(), []byte("durable"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := OpenBolt(path)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(t.Context(), r.CID)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), got)
}
