package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/tether/internal/model"
)

// SavePlayer overwrites the current player record, snapshotting the previous
// value into a "player" backup first.
func (s *Store) SavePlayer(ctx context.Context, data json.RawMessage) (*model.VersionedRecord, error) {
	return s.SavePlayerRecord(ctx, model.PlayerKey, data)
}

// SavePlayerRecord is SavePlayer for an arbitrary player id.
//
// The backup, the overwrite and the retention prune run in one transaction.
// When no previous value exists no backup is taken.
func (s *Store) SavePlayerRecord(ctx context.Context, id string, data json.RawMessage, opts ...SaveOption) (*model.VersionedRecord, error) {
	var rec *model.VersionedRecord
	err := s.withTx(ctx, "store.save_player", func(tx *sql.Tx) error {
		var err error
		rec, err = s.savePlayerTx(ctx, tx, id, data, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) savePlayerTx(ctx context.Context, tx *sql.Tx, id string, data json.RawMessage, opts ...SaveOption) (*model.VersionedRecord, error) {
	table := string(model.CollectionPlayer)

	prev, err := getRecord(ctx, tx, table, id)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if _, err := s.createBackupTx(ctx, tx, model.BackupTypePlayer, prev.Data); err != nil {
			return nil, err
		}
	}

	return s.saveRecord(ctx, tx, table, id, data, opts...)
}

// GetPlayer returns the current player payload, or nil if none is stored.
func (s *Store) GetPlayer(ctx context.Context) (json.RawMessage, error) {
	rec, err := s.Get(ctx, model.CollectionPlayer, model.PlayerKey)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Data, nil
}

// SaveSession stores a study session under a fresh "session_<ts>" id and
// returns the id.
func (s *Store) SaveSession(ctx context.Context, data json.RawMessage) (string, error) {
	var id string
	err := s.withTx(ctx, "store.save_session", func(tx *sql.Tx) error {
		var err error
		id, err = s.saveSessionTx(ctx, tx, data)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) saveSessionTx(ctx context.Context, q dbtx, data json.RawMessage) (string, error) {
	ts := s.stamp.Next()
	id := fmt.Sprintf("session_%d", ts)
	if _, err := s.saveRecord(ctx, q, string(model.CollectionSessions), id, data, withTimestamp(ts)); err != nil {
		return "", err
	}
	return id, nil
}

// GetSessions returns session payloads newest first. limit <= 0 returns all.
func (s *Store) GetSessions(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	records, err := queryRecords(ctx, s.db, `
		SELECT id, data, timestamp, version, checksum
		FROM study_sessions
		ORDER BY timestamp DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, model.TransactionFailure("store.get_sessions", err)
	}
	return payloads(records), nil
}
