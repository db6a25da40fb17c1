// Package model provides the shared data types for tether.
//
// This package contains record types, canonical JSON, checksums, clocks and
// the error taxonomy. All other internal packages import model; model imports
// nothing internal.
//
// Key design constraints:
//   - Application payloads are opaque JSON (json.RawMessage); model never
//     interprets their fields beyond the few domain keys used for indexing
//   - Timestamps are unix milliseconds
//   - Checksums are for change detection only, never for security
//   - JSON tags use camelCase to stay wire compatible with exported snapshots
package model
