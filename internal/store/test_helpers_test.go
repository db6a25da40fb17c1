package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/tether/internal/testutil"
)

// testEpoch is 2023-11-14T22:13:20Z.
const testEpoch = int64(1_700_000_000_000)

// createTestStore creates a new store on a temp file with a fixed clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(testutil.NewManualClock(testEpoch))}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// raw is shorthand for a JSON literal.
func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}
