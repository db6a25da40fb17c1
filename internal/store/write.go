package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tether/internal/model"
)

// SaveOption configures a single Save call.
type SaveOption func(*saveOptions)

type saveOptions struct {
	version   int64
	timestamp int64
}

// WithVersion stores the record under an explicit version instead of
// incrementing the previous one.
func WithVersion(v int64) SaveOption {
	return func(o *saveOptions) { o.version = v }
}

// withTimestamp pins the record timestamp. Used where a payload embeds its own
// timestamp and the two must agree.
func withTimestamp(ts int64) SaveOption {
	return func(o *saveOptions) { o.timestamp = ts }
}

// Save wraps data in a VersionedRecord and overwrites any record with the same
// id in the collection.
//
// The record gets a fresh timestamp and a recomputed checksum. Its version is
// the one given by WithVersion, else the previous version plus one (1 for a new
// id). data must be valid JSON.
func (s *Store) Save(ctx context.Context, c model.Collection, id string, data json.RawMessage, opts ...SaveOption) (*model.VersionedRecord, error) {
	table, err := tableFor("store.save", c)
	if err != nil {
		return nil, err
	}

	var rec *model.VersionedRecord
	err = s.withTx(ctx, "store.save", func(tx *sql.Tx) error {
		rec, err = s.saveRecord(ctx, tx, table, id, data, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// saveRecord upserts one record using q. Callers own the transaction.
func (s *Store) saveRecord(ctx context.Context, q dbtx, table, id string, data json.RawMessage, opts ...SaveOption) (*model.VersionedRecord, error) {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	checksum, err := model.Checksum(data)
	if err != nil {
		return nil, fmt.Errorf("write %s %q: %w", table, id, err)
	}

	version := o.version
	if version == 0 {
		prev, err := currentVersion(ctx, q, table, id)
		if err != nil {
			return nil, err
		}
		version = prev + 1
	}

	ts := o.timestamp
	if ts == 0 {
		ts = s.stamp.Next()
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, data, timestamp, version, checksum)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp,
			version = excluded.version,
			checksum = excluded.checksum
	`, table), id, string(data), ts, version, checksum)
	if err != nil {
		return nil, fmt.Errorf("write %s %q: %w", table, id, err)
	}

	return &model.VersionedRecord{
		ID:        id,
		Data:      append(json.RawMessage(nil), data...),
		Timestamp: ts,
		Version:   version,
		Checksum:  checksum,
	}, nil
}

// currentVersion returns the stored version for id, or 0 if absent.
func currentVersion(ctx context.Context, q dbtx, table, id string) (int64, error) {
	var version int64
	err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT version FROM %s WHERE id = ?`, table), id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s version %q: %w", table, id, err)
	}
	return version, nil
}

// Delete removes a record. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, c model.Collection, id string) error {
	table, err := tableFor("store.delete", c)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
		return model.TransactionFailure("store.delete", fmt.Errorf("delete %s %q: %w", table, id, err))
	}
	return nil
}

// Clear removes every record in a collection.
func (s *Store) Clear(ctx context.Context, c model.Collection) error {
	table, err := tableFor("store.clear", c)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return model.TransactionFailure("store.clear", fmt.Errorf("clear %s: %w", table, err))
	}
	return nil
}
