package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SnapshotVersion is the export format version written to snapshots.
const SnapshotVersion = "1"

// Snapshot is the full-state export document.
//
// A nil section is left out of the encoding; an empty one is written as [].
type Snapshot struct {
	Version      string            `json:"version"`
	ExportedAt   string            `json:"exportedAt"`
	Player       json.RawMessage   `json:"player"`
	Sessions     []json.RawMessage `json:"sessions,omitzero"`
	Achievements []json.RawMessage `json:"achievements,omitzero"`
	SyncMetadata *SyncMetadata     `json:"syncMetadata"`
}

// HasPlayer reports whether the snapshot carries a non-null player value.
func (s *Snapshot) HasPlayer() bool {
	return !isNull(s.Player)
}

// PlayerIsObject reports whether the player value is a JSON object.
func (s *Snapshot) PlayerIsObject() bool {
	trimmed := bytes.TrimSpace(s.Player)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// DecodeSnapshot parses an export document.
//
// Decoding is tolerant per section: a sessions or achievements value that is
// not an array is ignored, as is unreadable sync metadata. Only a document that
// is not a JSON object at all is an error.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if sections == nil {
		return nil, fmt.Errorf("decode snapshot: document is null")
	}

	snap := &Snapshot{}
	_ = json.Unmarshal(sections["version"], &snap.Version)
	_ = json.Unmarshal(sections["exportedAt"], &snap.ExportedAt)
	if raw, ok := sections["player"]; ok && !isNull(raw) {
		snap.Player = raw
	}
	snap.Sessions = decodeArray(sections["sessions"])
	snap.Achievements = decodeArray(sections["achievements"])

	if raw, ok := sections["syncMetadata"]; ok && !isNull(raw) {
		var meta SyncMetadata
		if err := json.Unmarshal(raw, &meta); err == nil {
			snap.SyncMetadata = &meta
		}
	}
	return snap, nil
}

func decodeArray(raw json.RawMessage) []json.RawMessage {
	if isNull(raw) {
		return nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
