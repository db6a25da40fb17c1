package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/tether/internal/model"
)

// syncTimeout bounds one auto-sync tick.
const syncTimeout = 30 * time.Second

// AutoSync is a running auto-sync task.
type AutoSync struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the task and waits for it to exit. Safe to call more than
// once.
func (a *AutoSync) Stop() {
	a.once.Do(a.cancel)
	<-a.done
}

func (a *AutoSync) running() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// StartAutoSync starts the periodic push of the stored player into the peer
// cache. Starting while a task runs returns the running task.
func (o *Orchestrator) StartAutoSync() *AutoSync {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.autoSync != nil && o.autoSync.running() {
		return o.autoSync
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &AutoSync{cancel: cancel, done: make(chan struct{})}
	interval := o.cfg.SyncInterval
	go func() {
		defer close(a.done)
		o.autoSyncLoop(ctx, interval)
	}()
	o.autoSync = a
	return a
}

// StopAutoSync stops the auto-sync task, if running.
func (o *Orchestrator) StopAutoSync() {
	o.mu.Lock()
	a := o.autoSync
	o.autoSync = nil
	o.mu.Unlock()

	if a != nil {
		a.Stop()
	}
}

func (o *Orchestrator) autoSyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.syncTick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// syncTick pushes the stored current player into the peer cache when the
// cache does not already hold the same data. The push carries the record's
// stored version, so it refreshes peers without claiming a new write.
func (o *Orchestrator) syncTick(ctx context.Context) {
	if !o.storeEnabled() || !o.peersEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	rec, err := o.store.Get(ctx, model.CollectionPlayer, model.PlayerKey)
	if err != nil {
		o.logger.Warn("auto-sync read failed", "error", err)
		return
	}
	if rec == nil {
		return
	}
	if entry, ok := o.peers.LocalData(model.PlayerKey); ok && entry.Checksum() == rec.Checksum {
		return
	}

	o.advanceVersion(rec.Version)
	o.peers.SetLocalData(model.PlayerKey, rec.Data, rec.Version)
	o.logger.Debug("auto-sync pushed player", "version", rec.Version)
}
