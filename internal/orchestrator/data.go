package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/peersync"
	"github.com/roach88/tether/internal/store"
)

// nextVersion returns the next in-process write version.
func (o *Orchestrator) nextVersion() int64 {
	return o.version.Add(1)
}

// advanceVersion raises the version counter to at least v, so the next local
// write supersedes everything already stored or received.
func (o *Orchestrator) advanceVersion(v int64) {
	for {
		cur := o.version.Load()
		if cur >= v || o.version.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Save writes a player record durably, then stamps it with the next version
// and broadcasts it to peers under the same id.
func (o *Orchestrator) Save(ctx context.Context, id string, data json.RawMessage) error {
	if !json.Valid(data) {
		return model.NewError(model.CodeTransactionFailure, "orchestrator.save", nil, "payload for %q is not valid JSON", id)
	}
	if o.storeEnabled() {
		prev, err := o.store.Get(ctx, model.CollectionPlayer, id)
		if err != nil {
			return fmt.Errorf("save %s: %w", id, err)
		}
		if prev != nil {
			o.advanceVersion(prev.Version)
		}
	}
	version := o.nextVersion()

	if o.storeEnabled() {
		if _, err := o.store.SavePlayerRecord(ctx, id, data, store.WithVersion(version)); err != nil {
			return fmt.Errorf("save %s: %w", id, err)
		}
	}
	if o.peersEnabled() {
		o.peers.SetLocalData(id, data, version)
	}
	return nil
}

// Load returns the player record id from the store, falling back to the
// peer cache. Absence is (nil, nil).
func (o *Orchestrator) Load(ctx context.Context, id string) (json.RawMessage, error) {
	if o.storeEnabled() {
		rec, err := o.store.Get(ctx, model.CollectionPlayer, id)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		if rec != nil {
			return rec.Data, nil
		}
	}
	if o.peersEnabled() {
		if entry, ok := o.peers.LocalData(id); ok && !isNullJSON(entry.Data) {
			return entry.Data, nil
		}
	}
	return nil, nil
}

// SaveSession stores a study session. Sessions are local only.
func (o *Orchestrator) SaveSession(ctx context.Context, data json.RawMessage) (string, error) {
	if !o.storeEnabled() {
		return "", ErrStoreDisabled
	}
	return o.store.SaveSession(ctx, data)
}

// Sessions returns up to limit sessions, newest first. A limit <= 0 means all.
// With the store disabled the result is empty.
func (o *Orchestrator) Sessions(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if !o.storeEnabled() {
		return []json.RawMessage{}, nil
	}
	return o.store.GetSessions(ctx, limit)
}

// seedReplica loads the stored player records into the peer cache so a
// restarted process offers what it already holds, and raises the version
// counter past them.
func (o *Orchestrator) seedReplica(ctx context.Context) error {
	if !o.storeEnabled() {
		return nil
	}
	records, err := o.store.GetAll(ctx, model.CollectionPlayer)
	if err != nil {
		return fmt.Errorf("seed peer cache: %w", err)
	}
	for _, rec := range records {
		o.advanceVersion(rec.Version)
		if !o.peersEnabled() {
			continue
		}
		o.peers.Seed(rec.ID, model.SyncEntry{Data: rec.Data, Version: rec.Version, Timestamp: rec.Timestamp})
	}
	return nil
}

// onDataReceived persists entries adopted from peers. A stored record with a
// higher version is kept.
func (o *Orchestrator) onDataReceived(ev peersync.DataEvent) {
	o.advanceVersion(ev.Entry.Version)
	if !o.storeEnabled() || isNullJSON(ev.Entry.Data) {
		return
	}
	ctx := context.Background()
	stored, err := o.store.Get(ctx, model.CollectionPlayer, ev.Key)
	if err != nil {
		o.logger.Error("persist peer data", "peer", ev.PeerID, "key", ev.Key, "error", err)
		return
	}
	if stored != nil && stored.Version > ev.Entry.Version {
		o.logger.Debug("kept newer stored data", "peer", ev.PeerID, "key", ev.Key,
			"stored_version", stored.Version, "remote_version", ev.Entry.Version)
		return
	}
	_, err = o.store.Save(ctx, model.CollectionPlayer, ev.Key, ev.Entry.Data,
		store.WithVersion(ev.Entry.Version))
	if err != nil {
		o.logger.Error("persist peer data", "peer", ev.PeerID, "key", ev.Key, "error", err)
		return
	}
	o.logger.Debug("persisted peer data", "peer", ev.PeerID, "key", ev.Key, "version", ev.Entry.Version)
}

// onSyncCompleted records the sync in the metadata record.
func (o *Orchestrator) onSyncCompleted(ev peersync.PeerEvent) {
	if !o.storeEnabled() {
		return
	}
	ctx := context.Background()

	peers := []string{ev.PeerID}
	if meta, err := o.store.GetSyncMetadata(ctx); err == nil && meta != nil {
		if slices.Contains(meta.SyncedPeers, ev.PeerID) {
			peers = meta.SyncedPeers
		} else {
			peers = append(meta.SyncedPeers, ev.PeerID)
		}
	}
	now := o.now()
	strategy := string(o.peers.ConflictPolicy().Strategy)

	_, err := o.store.UpdateSyncMetadata(ctx, store.MetadataUpdate{
		LastSyncTime:       &now,
		SyncedPeers:        peers,
		ConflictResolution: &strategy,
	})
	if err != nil {
		o.logger.Error("update sync metadata", "peer", ev.PeerID, "error", err)
	}
}

func (o *Orchestrator) onConflictDetected(ev peersync.ConflictEvent) {
	o.logger.Warn("sync conflict",
		"peer", ev.PeerID,
		"key", ev.Key,
		"local_version", ev.Local.Version,
		"remote_timestamp", ev.Remote.Timestamp)
}

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// SyncMetadata returns the recorded sync state, or nil before the first sync
// or with the store disabled.
func (o *Orchestrator) SyncMetadata(ctx context.Context) (*model.SyncMetadata, error) {
	if !o.storeEnabled() {
		return nil, nil
	}
	return o.store.GetSyncMetadata(ctx)
}
