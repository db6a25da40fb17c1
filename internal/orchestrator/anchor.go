package orchestrator

import (
	"context"
	"fmt"

	"github.com/roach88/tether/internal/anchor"
)

// PublishSnapshot exports the full state, encrypted when password is set,
// and stores it in the content anchor.
func (o *Orchestrator) PublishSnapshot(ctx context.Context, password string) (anchor.Receipt, error) {
	if !o.anchorEnabled() {
		return anchor.Receipt{}, ErrAnchorDisabled
	}
	opts := DefaultExportOptions()
	opts.Encrypt = password != ""

	data, err := o.ExportData(ctx, opts, password)
	if err != nil {
		return anchor.Receipt{}, fmt.Errorf("publish snapshot: %w", err)
	}
	receipt, err := o.anchor.Put(ctx, []byte(data))
	if err != nil {
		return anchor.Receipt{}, fmt.Errorf("publish snapshot: %w", err)
	}
	o.logger.Info("snapshot published", "cid", receipt.CID, "size", receipt.Size, "encrypted", opts.Encrypt)
	return receipt, nil
}

// FetchSnapshot returns the raw snapshot stored under cid.
func (o *Orchestrator) FetchSnapshot(ctx context.Context, cid string) ([]byte, error) {
	if !o.anchorEnabled() {
		return nil, ErrAnchorDisabled
	}
	data, err := o.anchor.Get(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", cid, err)
	}
	return data, nil
}

// RestoreSnapshot fetches a published snapshot and imports it.
func (o *Orchestrator) RestoreSnapshot(ctx context.Context, cid, password string) (ImportResult, error) {
	data, err := o.FetchSnapshot(ctx, cid)
	if err != nil {
		return ImportResult{}, err
	}
	return o.ImportData(ctx, data, password), nil
}
