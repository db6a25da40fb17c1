package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tether/internal/model"
)

// Get returns the record with the given id, or (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, c model.Collection, id string) (*model.VersionedRecord, error) {
	table, err := tableFor("store.get", c)
	if err != nil {
		return nil, err
	}
	rec, err := getRecord(ctx, s.db, table, id)
	if err != nil {
		return nil, model.TransactionFailure("store.get", err)
	}
	return rec, nil
}

func getRecord(ctx context.Context, q dbtx, table, id string) (*model.VersionedRecord, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, data, timestamp, version, checksum
		FROM %s
		WHERE id = ?
	`, table), id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s %q: %w", table, id, err)
	}
	return &rec, nil
}

// GetAll returns every record in a collection.
// Results are ordered deterministically: ORDER BY timestamp ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the collection is empty.
func (s *Store) GetAll(ctx context.Context, c model.Collection) ([]model.VersionedRecord, error) {
	table, err := tableFor("store.get_all", c)
	if err != nil {
		return nil, err
	}
	records, err := queryRecords(ctx, s.db, fmt.Sprintf(`
		SELECT id, data, timestamp, version, checksum
		FROM %s
		ORDER BY timestamp ASC, id COLLATE BINARY ASC
	`, table))
	if err != nil {
		return nil, model.TransactionFailure("store.get_all", err)
	}
	return records, nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, c model.Collection) (int, error) {
	table, err := tableFor("store.count", c)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, model.TransactionFailure("store.count", fmt.Errorf("count %s: %w", table, err))
	}
	return n, nil
}

func queryRecords(ctx context.Context, q dbtx, query string, args ...any) ([]model.VersionedRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []model.VersionedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	// Return empty slice instead of nil
	if records == nil {
		records = []model.VersionedRecord{}
	}
	return records, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.VersionedRecord, error) {
	var (
		rec  model.VersionedRecord
		data string
	)
	if err := row.Scan(&rec.ID, &data, &rec.Timestamp, &rec.Version, &rec.Checksum); err != nil {
		return model.VersionedRecord{}, err
	}
	rec.Data = json.RawMessage(data)
	return rec, nil
}

// payloads extracts the data of each record in order.
func payloads(records []model.VersionedRecord) []json.RawMessage {
	out := make([]json.RawMessage, len(records))
	for i, r := range records {
		out[i] = r.Data
	}
	return out
}
