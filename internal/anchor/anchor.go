// Package anchor stores opaque blobs by content address.
//
// A content id is model.ContentID(data). Puts are idempotent and Get checks
// the returned bytes against the id, so a backend can never hand back
// different content for the same id. Two backends exist: BoltAnchor keeps
// blobs in a local bbolt file and S3Anchor in an S3-compatible bucket.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tether/internal/model"
)

// ErrNotFound is returned by Get for an unknown content id.
var ErrNotFound = errors.New("anchor: content not found")

// ErrCorrupt is returned by Get when stored bytes do not match their id.
var ErrCorrupt = errors.New("anchor: content does not match id")

// Receipt describes a stored blob.
type Receipt struct {
	CID  string `json:"cid"`
	URL  string `json:"url"`
	Size int    `json:"size"`
}

// Anchor is a content-addressed blob store.
type Anchor interface {
	Put(ctx context.Context, data []byte) (Receipt, error)
	Get(ctx context.Context, cid string) ([]byte, error)
	Has(ctx context.Context, cid string) (bool, error)
	Close() error
}

// ValidCID reports whether cid has the shape of a content id.
func ValidCID(cid string) bool {
	hexPart, ok := strings.CutPrefix(cid, model.ContentIDPrefix)
	if !ok || len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func checkCID(op, cid string) error {
	if !ValidCID(cid) {
		return fmt.Errorf("%s: invalid content id %q", op, cid)
	}
	return nil
}

func verify(cid string, data []byte) error {
	if model.ContentID(data) != cid {
		return fmt.Errorf("%w: %s", ErrCorrupt, cid)
	}
	return nil
}
