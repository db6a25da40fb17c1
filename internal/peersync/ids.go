package peersync

import (
	"github.com/google/uuid"
)

// Peer id prefixes.
const (
	peerPrefix    = "peer_"
	pendingPrefix = "pending_"
)

// IDGenerator produces unique id suffixes for peers and pending connections.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so peer ids sort
// by creation time, which keeps logs readable.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
