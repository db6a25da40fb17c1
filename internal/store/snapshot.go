package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/tether/internal/model"
)

// ExportSessionLimit caps how many sessions an export carries.
const ExportSessionLimit = 100

// isoMillis is the ISO 8601 layout used for exportedAt.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Snapshot builds the full-state export document: the current player, the
// most recent sessions, every achievement and the sync metadata.
func (s *Store) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	player, err := s.GetPlayer(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.GetSessions(ctx, ExportSessionLimit)
	if err != nil {
		return nil, err
	}
	achievements, err := s.GetAll(ctx, model.CollectionAchievements)
	if err != nil {
		return nil, err
	}
	meta, err := s.GetSyncMetadata(ctx)
	if err != nil {
		return nil, err
	}

	return &model.Snapshot{
		Version:      model.SnapshotVersion,
		ExportedAt:   s.stamp.Clock().Now().UTC().Format(isoMillis),
		Player:       player,
		Sessions:     sessions,
		Achievements: payloads(achievements),
		SyncMetadata: meta,
	}, nil
}

// ExportAllData returns the snapshot as indented JSON.
func (s *Store) ExportAllData(ctx context.Context) ([]byte, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, model.TransactionFailure("store.export", fmt.Errorf("marshal snapshot: %w", err))
	}
	return out, nil
}

// ImportCounts reports what an import wrote.
type ImportCounts struct {
	Player       bool
	Sessions     int
	Achievements int
}

// Total is the number of records written.
func (c ImportCounts) Total() int {
	n := c.Sessions + c.Achievements
	if c.Player {
		n++
	}
	return n
}

// ImportData imports whichever sections of an export document are present.
// It returns false, and logs, if the document cannot be parsed or written;
// in that case no collection is modified.
func (s *Store) ImportData(ctx context.Context, payload []byte) bool {
	snap, err := model.DecodeSnapshot(payload)
	if err != nil {
		s.logger.Warn("import failed", "error", err)
		return false
	}
	if _, err := s.Import(ctx, snap); err != nil {
		s.logger.Warn("import failed", "error", err)
		return false
	}
	return true
}

// Import writes a decoded snapshot: the player through the backup path, each
// session under a fresh id, and each achievement under its own "id" field.
//
// All validation happens before the first write and every write shares one
// transaction, so a failed import leaves the store untouched.
func (s *Store) Import(ctx context.Context, snap *model.Snapshot) (ImportCounts, error) {
	type keyed struct {
		id   string
		data json.RawMessage
	}

	achievements := make([]keyed, 0, len(snap.Achievements))
	for i, a := range snap.Achievements {
		id, err := achievementID(a)
		if err != nil {
			return ImportCounts{}, model.NewError(model.CodeImportValidation, "store.import", err, "achievements[%d]", i)
		}
		achievements = append(achievements, keyed{id: id, data: a})
	}

	var counts ImportCounts
	err := s.withTx(ctx, "store.import", func(tx *sql.Tx) error {
		if snap.HasPlayer() {
			if _, err := s.savePlayerTx(ctx, tx, model.PlayerKey, snap.Player); err != nil {
				return err
			}
			counts.Player = true
		}
		for _, session := range snap.Sessions {
			if _, err := s.saveSessionTx(ctx, tx, session); err != nil {
				return err
			}
			counts.Sessions++
		}
		for _, a := range achievements {
			if _, err := s.saveRecord(ctx, tx, string(model.CollectionAchievements), a.id, a.data); err != nil {
				return err
			}
			counts.Achievements++
		}
		return nil
	})
	if err != nil {
		return ImportCounts{}, err
	}

	s.logger.Debug("import complete",
		"player", counts.Player,
		"sessions", counts.Sessions,
		"achievements", counts.Achievements)
	return counts, nil
}

// achievementID reads the "id" field of an achievement object. Numeric ids are
// kept in their JSON text form.
func achievementID(data json.RawMessage) (string, error) {
	var obj struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("achievement is not an object: %w", err)
	}
	var id string
	if err := json.Unmarshal(obj.ID, &id); err == nil && id != "" {
		return id, nil
	}
	var num json.Number
	if err := json.Unmarshal(obj.ID, &num); err == nil {
		return num.String(), nil
	}
	return "", fmt.Errorf("achievement has no id")
}

// CollectionStats describes one collection's footprint.
type CollectionStats struct {
	Collection model.Collection `json:"collection"`
	Records    int              `json:"records"`
	Bytes      int64            `json:"bytes"`
}

// Stats summarizes the store.
type Stats struct {
	Collections []CollectionStats `json:"collections"`
	TotalBytes  int64             `json:"totalBytes"`
}

// Records returns the record count for c.
func (st Stats) Records(c model.Collection) int {
	for _, cs := range st.Collections {
		if cs.Collection == c {
			return cs.Records
		}
	}
	return 0
}

// TotalSize formats TotalBytes in kilobytes.
func (st Stats) TotalSize() string {
	return fmt.Sprintf("%.2f KB", float64(st.TotalBytes)/1024)
}

// Stats returns per-collection record counts and payload sizes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	parts := make([]string, 0, len(model.Collections))
	for _, c := range model.Collections {
		parts = append(parts, fmt.Sprintf(
			`SELECT '%s', COUNT(*), COALESCE(SUM(LENGTH(data)), 0) FROM %s`, c, c))
	}

	rows, err := s.db.QueryContext(ctx, strings.Join(parts, " UNION ALL "))
	if err != nil {
		return Stats{}, model.TransactionFailure("store.stats", fmt.Errorf("query stats: %w", err))
	}
	defer rows.Close()

	stats := Stats{Collections: make([]CollectionStats, 0, len(model.Collections))}
	for rows.Next() {
		var cs CollectionStats
		if err := rows.Scan(&cs.Collection, &cs.Records, &cs.Bytes); err != nil {
			return Stats{}, model.TransactionFailure("store.stats", fmt.Errorf("scan stats: %w", err))
		}
		stats.Collections = append(stats.Collections, cs)
		stats.TotalBytes += cs.Bytes
	}
	if err := rows.Err(); err != nil {
		return Stats{}, model.TransactionFailure("store.stats", fmt.Errorf("iterate stats: %w", err))
	}
	return stats, nil
}
