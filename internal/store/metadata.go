package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/roach88/tether/internal/model"
)

// DefaultConflictResolution is recorded in sync metadata until a caller
// sets another strategy.
const DefaultConflictResolution = "merge"

// MetadataUpdate is a partial sync metadata update. Nil fields are left as
// they are.
type MetadataUpdate struct {
	LastSyncTime       *int64
	SyncedPeers        []string
	ConflictResolution *string
}

// UpdateSyncMetadata merges update into the stored sync metadata, creating
// the record with defaults if it does not exist yet.
func (s *Store) UpdateSyncMetadata(ctx context.Context, update MetadataUpdate) (*model.SyncMetadata, error) {
	var meta model.SyncMetadata
	err := s.withTx(ctx, "store.update_sync_metadata", func(tx *sql.Tx) error {
		meta = model.SyncMetadata{
			LastSyncTime:       model.Millis(s.stamp.Clock()),
			SyncedPeers:        []string{},
			ConflictResolution: DefaultConflictResolution,
		}

		existing, err := getRecord(ctx, tx, string(model.CollectionSyncMetadata), model.SyncMetadataKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := existing.Decode(&meta); err != nil {
				return err
			}
		}

		if update.LastSyncTime != nil {
			meta.LastSyncTime = *update.LastSyncTime
		}
		if update.SyncedPeers != nil {
			meta.SyncedPeers = update.SyncedPeers
		}
		if update.ConflictResolution != nil {
			meta.ConflictResolution = *update.ConflictResolution
		}
		if meta.SyncedPeers == nil {
			meta.SyncedPeers = []string{}
		}

		doc, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		_, err = s.saveRecord(ctx, tx, string(model.CollectionSyncMetadata), model.SyncMetadataKey, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetSyncMetadata returns the stored sync metadata, or nil if none exists.
func (s *Store) GetSyncMetadata(ctx context.Context) (*model.SyncMetadata, error) {
	rec, err := s.Get(ctx, model.CollectionSyncMetadata, model.SyncMetadataKey)
	if err != nil || rec == nil {
		return nil, err
	}
	var meta model.SyncMetadata
	if err := rec.Decode(&meta); err != nil {
		return nil, model.TransactionFailure("store.get_sync_metadata", err)
	}
	return &meta, nil
}
