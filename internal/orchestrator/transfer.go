package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tether/internal/model"
)

// Import error messages shown to users.
const (
	MsgDecryptFailed  = "Failed to decrypt data - invalid password or corrupted data"
	MsgInvalidPlayer  = "Missing or invalid player field"
	DefaultBackupType = "full"
)

// ExportOptions selects what ExportData writes.
type ExportOptions struct {
	IncludeAchievements bool
	IncludeSessions     bool
	// Encrypt requests encryption even when the config does not.
	Encrypt bool
}

// DefaultExportOptions includes every section, unencrypted.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{IncludeAchievements: true, IncludeSessions: true}
}

// ImportResult reports the outcome of ImportData.
type ImportResult struct {
	Success         bool     `json:"success"`
	RecordsImported int      `json:"recordsImported"`
	Errors          []string `json:"errors"`
}

func failed(msg string) ImportResult {
	return ImportResult{Errors: []string{msg}}
}

// ExportData returns the current state as an indented JSON snapshot,
// encrypted with password when opts.Encrypt or the EncryptExports setting
// asks for it.
func (o *Orchestrator) ExportData(ctx context.Context, opts ExportOptions, password string) (string, error) {
	snap, err := o.snapshot(ctx)
	if err != nil {
		return "", err
	}
	if !opts.IncludeAchievements {
		snap.Achievements = nil
	}
	if !opts.IncludeSessions {
		snap.Sessions = nil
	}

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	if opts.Encrypt || o.Config().EncryptExports {
		if password == "" {
			return "", errors.New("export: encryption requested but no password given")
		}
		return o.codec.Encrypt(out, password)
	}
	return string(out), nil
}

// snapshot reads the store, or with the store disabled builds a player-only
// snapshot from the peer cache.
func (o *Orchestrator) snapshot(ctx context.Context) (*model.Snapshot, error) {
	if o.storeEnabled() {
		snap, err := o.store.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		return snap, nil
	}

	snap := &model.Snapshot{
		Version:    model.SnapshotVersion,
		ExportedAt: o.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if o.peersEnabled() {
		if entry, ok := o.peers.LocalData(model.PlayerKey); ok && !isNullJSON(entry.Data) {
			snap.Player = entry.Data
		}
	}
	return snap, nil
}

// ImportData restores a snapshot produced by ExportData. A non-empty password
// means the payload is encrypted. Failures are reported in the result; no
// state changes unless Success is true.
func (o *Orchestrator) ImportData(ctx context.Context, payload []byte, password string) ImportResult {
	if password != "" {
		plain, err := o.codec.Decrypt(string(payload), password)
		if err != nil {
			o.logger.Warn("import decryption failed", "error", err)
			return failed(MsgDecryptFailed)
		}
		payload = plain
	}

	snap, err := model.DecodeSnapshot(payload)
	if err != nil {
		return failed(fmt.Sprintf("Import failed: %v", err))
	}
	if !snap.PlayerIsObject() {
		return failed(MsgInvalidPlayer)
	}

	result := ImportResult{Success: true, Errors: []string{}}
	var version int64
	if o.storeEnabled() {
		counts, err := o.store.Import(ctx, snap)
		if err != nil {
			return failed(fmt.Sprintf("Import failed: %v", err))
		}
		result.RecordsImported = counts.Total()

		// The store stamps the imported player itself; peers get that version.
		rec, err := o.store.Get(ctx, model.CollectionPlayer, model.PlayerKey)
		if err != nil {
			o.logger.Warn("import: read imported player", "error", err)
		} else if rec != nil {
			o.advanceVersion(rec.Version)
			version = rec.Version
		}
	} else {
		result.RecordsImported = 1
	}

	if o.peersEnabled() {
		if version == 0 {
			version = o.nextVersion()
		}
		o.peers.SetLocalData(model.PlayerKey, snap.Player, version)
	}
	o.logger.Info("import complete", "records", result.RecordsImported)
	return result
}

// CreateBackup exports the full state and stores it as a backup tagged typ
// ("full" if empty).
func (o *Orchestrator) CreateBackup(ctx context.Context, typ string) (string, error) {
	if !o.storeEnabled() {
		return "", ErrStoreDisabled
	}
	if typ == "" {
		typ = DefaultBackupType
	}
	data, err := o.ExportData(ctx, DefaultExportOptions(), "")
	if err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	return o.store.CreateBackup(ctx, typ, json.RawMessage(data))
}

// RestoreFromBackup applies a backup. Snapshot backups are imported;
// automatic "player" backups hold a bare player value and are saved back as
// the current player. Reports false if the backup does not exist or cannot
// be applied.
func (o *Orchestrator) RestoreFromBackup(ctx context.Context, id string) (bool, error) {
	if !o.storeEnabled() {
		return false, ErrStoreDisabled
	}
	rec, err := o.store.Get(ctx, model.CollectionBackup, id)
	if err != nil {
		return false, fmt.Errorf("restore %s: %w", id, err)
	}
	if rec == nil {
		return false, nil
	}
	var backup model.BackupRecord
	if err := rec.Decode(&backup); err != nil {
		return false, fmt.Errorf("restore %s: %w", id, err)
	}

	if backup.Type == model.BackupTypePlayer {
		if err := o.Save(ctx, model.PlayerKey, backup.Data); err != nil {
			return false, fmt.Errorf("restore %s: %w", id, err)
		}
		return true, nil
	}

	result := o.ImportData(ctx, backup.Data, "")
	if !result.Success {
		o.logger.Warn("restore failed", "backup", id, "errors", result.Errors)
	}
	return result.Success, nil
}

// ListBackups returns backups tagged typ, or all backups for "", newest
// first.
func (o *Orchestrator) ListBackups(ctx context.Context, typ string) ([]model.BackupRecord, error) {
	if !o.storeEnabled() {
		return []model.BackupRecord{}, nil
	}
	return o.store.ListBackups(ctx, typ)
}
