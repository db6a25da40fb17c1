// Package orchestrator is the public face of tether. It owns the local
// store, the peer sync engine, the codec and the content anchor, and routes
// every application call through whichever of them are enabled.
//
// Every dependency is passed in through Deps; nothing is global, so several
// orchestrators can run in one process (tests use this to simulate peers).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tether/internal/anchor"
	"github.com/roach88/tether/internal/codec"
	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/peersync"
	"github.com/roach88/tether/internal/store"
)

var (
	// ErrPeerSyncDisabled is returned by share and connect calls when peer
	// sync is switched off.
	ErrPeerSyncDisabled = errors.New("peer sync is not enabled")
	// ErrAnchorDisabled is returned by anchor calls when the content anchor
	// is switched off.
	ErrAnchorDisabled = errors.New("content anchor is not enabled")
	// ErrStoreDisabled is returned by calls that need the local store.
	ErrStoreDisabled = errors.New("local store is not enabled")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator is closed")
)

// Config toggles the orchestrator's components independently.
type Config struct {
	EnableLocalStore    bool          `json:"enableLocalStore"`
	EnablePeerSync      bool          `json:"enablePeerSync"`
	EnableContentAnchor bool          `json:"enableContentAnchor"`
	AutoSync            bool          `json:"autoSync"`
	SyncInterval        time.Duration `json:"syncInterval"`
	HeartbeatInterval   time.Duration `json:"heartbeatInterval"`
	EncryptExports      bool          `json:"encryptExports"`
}

// DefaultConfig enables everything except export encryption.
func DefaultConfig() Config {
	return Config{
		EnableLocalStore:    true,
		EnablePeerSync:      true,
		EnableContentAnchor: true,
		AutoSync:            true,
		SyncInterval:        time.Minute,
		HeartbeatInterval:   peersync.DefaultHeartbeatInterval,
	}
}

// Deps are the components the orchestrator drives. A component may be nil
// only if its Config toggle is off. Codec, Logger and Clock have defaults.
type Deps struct {
	Store  *store.Store
	Peers  *peersync.Engine
	Codec  *codec.Codec
	Anchor anchor.Anchor
	Logger *slog.Logger
	Clock  model.Clock
}

// Orchestrator coordinates persistence, sync, encryption and anchoring.
//
// Thread-safety: Orchestrator is safe for concurrent use.
type Orchestrator struct {
	store  *store.Store
	peers  *peersync.Engine
	codec  *codec.Codec
	anchor anchor.Anchor
	logger *slog.Logger
	clock  model.Clock

	// version stamps peer writes. It starts at zero on every process start.
	version atomic.Int64

	mu          sync.Mutex
	cfg         Config
	started     bool
	closed      bool
	autoSync    *AutoSync
	unsubscribe []func()
}

// New validates cfg against deps and returns an orchestrator that has not
// been started.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := checkDeps(cfg, deps); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		store:  deps.Store,
		peers:  deps.Peers,
		codec:  deps.Codec,
		anchor: deps.Anchor,
		logger: deps.Logger,
		clock:  deps.Clock,
		cfg:    cfg,
	}
	if o.codec == nil {
		o.codec = codec.New()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = model.SystemClock{}
	}
	return o, nil
}

func checkDeps(cfg Config, deps Deps) error {
	var errs []error
	if cfg.EnableLocalStore && deps.Store == nil {
		errs = append(errs, errors.New("local store enabled but no store given"))
	}
	if cfg.EnablePeerSync && deps.Peers == nil {
		errs = append(errs, errors.New("peer sync enabled but no engine given"))
	}
	if cfg.EnableContentAnchor && deps.Anchor == nil {
		errs = append(errs, errors.New("content anchor enabled but no anchor given"))
	}
	if cfg.AutoSync && cfg.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync interval must be positive, got %s", cfg.SyncInterval))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return nil
}

// Config returns the current configuration.
func (o *Orchestrator) Config() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

func (o *Orchestrator) storeEnabled() bool  { return o.Config().EnableLocalStore }
func (o *Orchestrator) peersEnabled() bool  { return o.Config().EnablePeerSync }
func (o *Orchestrator) anchorEnabled() bool { return o.Config().EnableContentAnchor }

// Start wires peer events into the store, loads the stored player records
// into the peer cache and starts the heartbeat and, if configured, auto-sync.
// Calling Start again is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.init() {
		return ErrClosed
	}
	if err := o.seedReplica(ctx); err != nil {
		return err
	}
	cfg := o.Config()
	if cfg.EnablePeerSync {
		o.peers.StartHeartbeat(cfg.HeartbeatInterval)
		if cfg.AutoSync {
			o.StartAutoSync()
		}
	}
	o.logger.Info("tether started",
		"local_store", cfg.EnableLocalStore,
		"peer_sync", cfg.EnablePeerSync,
		"content_anchor", cfg.EnableContentAnchor)
	return nil
}

// Run starts the orchestrator and blocks until ctx is done, running the
// heartbeat and auto-sync loops in its own goroutines. It returns nil on a
// clean shutdown; the caller still owns Close.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.init() {
		return ErrClosed
	}
	if err := o.seedReplica(ctx); err != nil {
		return err
	}
	cfg := o.Config()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.EnablePeerSync {
		g.Go(func() error {
			h := o.peers.StartHeartbeat(cfg.HeartbeatInterval)
			<-gctx.Done()
			h.Stop()
			return nil
		})
		if cfg.AutoSync {
			g.Go(func() error {
				o.autoSyncLoop(gctx, cfg.SyncInterval)
				return nil
			})
		}
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	o.logger.Info("tether running", "peer_id", o.PeerID())
	return g.Wait()
}

// init subscribes to peer events once. Returns false if closed.
func (o *Orchestrator) init() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if o.started {
		return true
	}
	o.started = true
	if o.peers != nil {
		o.unsubscribe = append(o.unsubscribe,
			o.peers.SubscribeDataReceived(o.onDataReceived),
			o.peers.SubscribeSyncCompleted(o.onSyncCompleted),
			o.peers.SubscribeConflictDetected(o.onConflictDetected),
		)
	}
	return true
}

// Close stops timers, disconnects peers and closes the store and anchor.
// It is safe to call more than once.
func (o *Orchestrator) Close() error {
	o.StopAutoSync()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}

	var errs []error
	if o.peers != nil {
		o.peers.Close()
	}
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if o.anchor != nil {
		if err := o.anchor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close anchor: %w", err))
		}
	}
	return errors.Join(errs...)
}

// UpdateConfig replaces the configuration. Turning AutoSync on or off starts
// or stops the auto-sync task. Enabling a component that was not supplied in
// Deps is an error and leaves the configuration unchanged.
func (o *Orchestrator) UpdateConfig(cfg Config) error {
	deps := Deps{Store: o.store, Peers: o.peers, Anchor: o.anchor}
	if err := checkDeps(cfg, deps); err != nil {
		return err
	}

	o.mu.Lock()
	prev := o.cfg
	o.cfg = cfg
	started := o.started
	o.mu.Unlock()

	if !started {
		return nil
	}
	switch {
	case cfg.AutoSync && cfg.EnablePeerSync && (!prev.AutoSync || cfg.SyncInterval != prev.SyncInterval):
		o.StopAutoSync()
		o.StartAutoSync()
	case !cfg.AutoSync || !cfg.EnablePeerSync:
		o.StopAutoSync()
	}
	return nil
}

func (o *Orchestrator) now() int64 {
	return model.Millis(o.clock)
}
