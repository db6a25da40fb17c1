package anchor

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"go.etcd.io/bbolt"

	"github.com/roach88/tether/internal/model"
)

var blobBucket = []byte("blobs")

// BoltAnchor keeps snappy-compressed blobs in a bbolt file.
//
// Thread-safety: BoltAnchor is safe for concurrent use.
type BoltAnchor struct {
	db   *bbolt.DB
	path string
}

var _ Anchor = (*BoltAnchor)(nil)

// OpenBolt opens or creates the anchor file at path.
func OpenBolt(path string) (*BoltAnchor, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open anchor %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create blob bucket: %w", err)
	}
	return &BoltAnchor{db: db, path: path}, nil
}

// Put stores data. Storing the same bytes twice writes once.
func (a *BoltAnchor) Put(_ context.Context, data []byte) (Receipt, error) {
	cid := model.ContentID(data)
	err := a.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(blobBucket)
		if b.Get([]byte(cid)) != nil {
			return nil
		}
		return b.Put([]byte(cid), snappy.Encode(nil, data))
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("put blob: %w", err)
	}
	return Receipt{CID: cid, URL: a.url(cid), Size: len(data)}, nil
}

// Get returns the blob for cid, or ErrNotFound.
func (a *BoltAnchor) Get(_ context.Context, cid string) ([]byte, error) {
	if err := checkCID("get blob", cid); err != nil {
		return nil, err
	}

	var compressed []byte
	err := a.db.View(func(tx *bbolt.Tx) error {
		// Values are only valid inside the transaction.
		if v := tx.Bucket(blobBucket).Get([]byte(cid)); v != nil {
			compressed = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	if compressed == nil {
		return nil, ErrNotFound
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %s: %v", ErrCorrupt, cid, err)
	}
	if err := verify(cid, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Has reports whether cid is stored.
func (a *BoltAnchor) Has(_ context.Context, cid string) (bool, error) {
	if err := checkCID("has blob", cid); err != nil {
		return false, err
	}
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(blobBucket).Get([]byte(cid)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("has blob: %w", err)
	}
	return found, nil
}

// Close closes the underlying file.
func (a *BoltAnchor) Close() error {
	return a.db.Close()
}

func (a *BoltAnchor) url(cid string) string {
	return "bolt://" + a.path + "#" + cid
}
