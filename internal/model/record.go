package model

import (
	"encoding/json"
	"fmt"
)

// Collection names a logical table in the local store.
type Collection string

// Known collections. The set is closed: store operations reject anything else.
const (
	CollectionPlayer       Collection = "player_data"
	CollectionCurriculum   Collection = "curriculum_data"
	CollectionAchievements Collection = "achievements_data"
	CollectionSessions     Collection = "study_sessions"
	CollectionSyncMetadata Collection = "sync_metadata"
	CollectionBackup       Collection = "backup_data"
)

// Collections lists every collection in schema order.
var Collections = []Collection{
	CollectionPlayer,
	CollectionCurriculum,
	CollectionAchievements,
	CollectionSessions,
	CollectionSyncMetadata,
	CollectionBackup,
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

func (c Collection) String() string { return string(c) }

// PlayerKey is the record id of the single current player record.
const PlayerKey = "current"

// SyncMetadataKey is the record id of the sync metadata record.
const SyncMetadataKey = "metadata"

// BackupTypePlayer tags backups taken automatically before a player overwrite.
const BackupTypePlayer = "player"

// VersionedRecord is a stored value plus change-detection metadata.
//
// Records are always written whole. Checksum is recomputed from Data on every
// write and is never trusted from input.
type VersionedRecord struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Version   int64           `json:"version"`
	Checksum  string          `json:"checksum"`
}

// Decode unmarshals the record payload into v.
func (r *VersionedRecord) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode record %q: %w", r.ID, err)
	}
	return nil
}

// BackupRecord is a tagged snapshot kept in the backup collection.
type BackupRecord struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// SyncEntry is the peer engine's in-memory view of one key.
type SyncEntry struct {
	Data      json.RawMessage `json:"data"`
	Version   int64           `json:"version"`
	Timestamp int64           `json:"timestamp"`
}

// Checksum returns the entry's data checksum, or "" if the data cannot be
// canonicalized.
func (e SyncEntry) Checksum() string {
	sum, err := Checksum(e.Data)
	if err != nil {
		return ""
	}
	return sum
}

// Same reports whether two entries carry the same version, timestamp and data.
func (e SyncEntry) Same(other SyncEntry) bool {
	return e.Version == other.Version &&
		e.Timestamp == other.Timestamp &&
		e.Checksum() == other.Checksum()
}

// SyncMetadata records the last synchronization state.
type SyncMetadata struct {
	LastSyncTime       int64    `json:"lastSyncTime"`
	SyncedPeers        []string `json:"syncedPeers"`
	ConflictResolution string   `json:"conflictResolution"`
}
