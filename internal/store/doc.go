// Package store provides SQLite-backed durable storage for tether.
//
// The store holds one table per collection (player, curriculum, achievements,
// sessions, sync metadata, backups). Every row is a whole
// model.VersionedRecord; writes overwrite, never append.
//
// # Ordering
//
// Timestamps come from a monotonic stamper, so they are unique within a
// process. Every multi-row query orders by timestamp and then id, giving
// identical results for identical contents.
//
// # Backups
//
// Overwriting the player record first copies the previous value into a
// "player" backup. Each backup type keeps at most the configured retention
// (default 10); the oldest are pruned in the same transaction as the insert.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Checksums are computed by model.Checksum over RFC 8785 canonical JSON.
package store
