package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/tether/internal/model"
)

// CreateBackup stores data as a backup tagged typ and prunes that tag down to
// the retention limit. Returns the backup id ("backup_<type>_<ts>").
func (s *Store) CreateBackup(ctx context.Context, typ string, data json.RawMessage) (string, error) {
	var id string
	err := s.withTx(ctx, "store.create_backup", func(tx *sql.Tx) error {
		var err error
		id, err = s.createBackupTx(ctx, tx, typ, data)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) createBackupTx(ctx context.Context, q dbtx, typ string, data json.RawMessage) (string, error) {
	ts := s.stamp.Next()
	backup := model.BackupRecord{
		ID:        fmt.Sprintf("backup_%s_%d", typ, ts),
		Type:      typ,
		Data:      data,
		Timestamp: ts,
	}
	doc, err := json.Marshal(backup)
	if err != nil {
		return "", fmt.Errorf("marshal backup: %w", err)
	}

	if _, err := s.saveRecord(ctx, q, string(model.CollectionBackup), backup.ID, doc, withTimestamp(ts)); err != nil {
		return "", err
	}
	if err := s.pruneBackups(ctx, q, typ); err != nil {
		return "", err
	}
	return backup.ID, nil
}

// pruneBackups keeps only the newest s.retention backups of typ.
func (s *Store) pruneBackups(ctx context.Context, q dbtx, typ string) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM backup_data
		WHERE backup_type = ?
		  AND id NOT IN (
			SELECT id FROM backup_data
			WHERE backup_type = ?
			ORDER BY timestamp DESC, id COLLATE BINARY DESC
			LIMIT ?
		  )
	`, typ, typ, s.retention)
	if err != nil {
		return fmt.Errorf("prune %s backups: %w", typ, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("pruned backups", "type", typ, "deleted", n, "keep", s.retention)
	}
	return nil
}

// ListBackups returns backups newest first. An empty typ lists every type.
func (s *Store) ListBackups(ctx context.Context, typ string) ([]model.BackupRecord, error) {
	query := `
		SELECT id, data, timestamp, version, checksum
		FROM backup_data
		ORDER BY timestamp DESC, id COLLATE BINARY DESC
	`
	var args []any
	if typ != "" {
		query = `
			SELECT id, data, timestamp, version, checksum
			FROM backup_data
			WHERE backup_type = ?
			ORDER BY timestamp DESC, id COLLATE BINARY DESC
		`
		args = append(args, typ)
	}

	records, err := queryRecords(ctx, s.db, query, args...)
	if err != nil {
		return nil, model.TransactionFailure("store.list_backups", err)
	}

	backups := make([]model.BackupRecord, 0, len(records))
	for _, rec := range records {
		var b model.BackupRecord
		if err := rec.Decode(&b); err != nil {
			return nil, model.TransactionFailure("store.list_backups", err)
		}
		backups = append(backups, b)
	}
	return backups, nil
}

// RestoreBackup returns the payload saved in backup id, or nil if no such
// backup exists. It does not write anything.
func (s *Store) RestoreBackup(ctx context.Context, id string) (json.RawMessage, error) {
	rec, err := s.Get(ctx, model.CollectionBackup, id)
	if err != nil || rec == nil {
		return nil, err
	}
	var b model.BackupRecord
	if err := rec.Decode(&b); err != nil {
		return nil, model.TransactionFailure("store.restore_backup", err)
	}
	return b.Data, nil
}
