package harness

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/orchestrator"
	"github.com/roach88/tether/internal/peersync"
	"github.com/roach88/tether/internal/store"
	"github.com/roach88/tether/internal/testutil"
)

// Epoch is the clock's starting time, 2023-11-14T22:13:20Z.
const Epoch = int64(1_700_000_000_000)

const (
	stepAdvance   = time.Second
	settlePoll    = 5 * time.Millisecond
	settleQuiet   = 50 * time.Millisecond
	settleTimeout = 5 * time.Second
)

// Harness holds the devices of one scenario run.
type Harness struct {
	dir     string
	clock   *testutil.ManualClock
	net     *peersync.MemoryNetwork
	logger  *slog.Logger
	devices []*device
	byName  map[string]*device
	names   map[string]string // peer id -> device name
}

type device struct {
	name     string
	strategy peersync.Strategy
	orch     *orchestrator.Orchestrator
	store    *store.Store
	peers    *peersync.Engine
}

// Run executes a scenario and evaluates its assertions.
//
// Devices live in a scratch directory that is removed afterwards. An error
// means the scenario could not be played at all; failed assertions are
// reported in the result instead.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "tether-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{
		dir:    dir,
		clock:  testutil.NewManualClock(Epoch),
		net:    peersync.NewMemoryNetwork(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		byName: make(map[string]*device),
		names:  make(map[string]string),
	}
	defer h.close()

	for _, d := range scenario.Devices {
		if err := h.addDevice(ctx, d); err != nil {
			return nil, fmt.Errorf("device %s: %w", d.Name, err)
		}
	}

	for i := range scenario.Steps {
		step := &scenario.Steps[i]
		h.clock.Advance(stepAdvance)
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d] %v: %w", i, step.Action(), err)
		}
		if err := h.settle(ctx); err != nil {
			return nil, fmt.Errorf("steps[%d] %v: %w", i, step.Action(), err)
		}
	}

	states, err := h.capture(ctx)
	if err != nil {
		return nil, err
	}
	result := NewResult(scenario.Name, states)
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) addDevice(ctx context.Context, d Device) error {
	dir := filepath.Join(h.dir, d.Name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	strategy := peersync.StrategyNewest
	if d.Strategy != "" {
		parsed, err := peersync.ParseStrategy(d.Strategy)
		if err != nil {
			return err
		}
		strategy = parsed
	}

	st, err := store.Open(filepath.Join(dir, "tether.db"),
		store.WithClock(h.clock),
		store.WithLogger(h.logger))
	if err != nil {
		return err
	}
	peers := peersync.New(h.net.Transport(),
		peersync.WithClock(h.clock),
		peersync.WithLogger(h.logger),
		peersync.WithIDGenerator(testutil.NewSequentialIDs(d.Name+"-")),
		peersync.WithConflictPolicy(peersync.ConflictPolicy{Strategy: strategy, Resolver: peersync.MergeBest}))

	cfg := orchestrator.DefaultConfig()
	cfg.AutoSync = false
	cfg.EnableContentAnchor = false

	o, err := orchestrator.New(cfg, orchestrator.Deps{
		Store:  st,
		Peers:  peers,
		Logger: h.logger,
		Clock:  h.clock,
	})
	if err != nil {
		peers.Close()
		st.Close()
		return err
	}

	dev := &device{name: d.Name, strategy: strategy, orch: o, store: st, peers: peers}
	h.devices = append(h.devices, dev)
	h.byName[d.Name] = dev
	h.names[peers.ID()] = d.Name

	return o.Start(ctx)
}

func (h *Harness) close() {
	for _, d := range h.devices {
		if err := d.orch.Close(); err != nil {
			h.logger.Warn("close device", "device", d.name, "error", err)
		}
	}
}

func (h *Harness) execute(ctx context.Context, step *Step) error {
	dev := h.byName[step.Device]

	switch step.Action()[0] {
	case ActionSave:
		data, err := json.Marshal(step.Save.Data)
		if err != nil {
			return err
		}
		return dev.orch.Save(ctx, cmp.Or(step.Save.ID, model.PlayerKey), data)

	case ActionSession:
		data, err := json.Marshal(step.Session)
		if err != nil {
			return err
		}
		_, err = dev.orch.SaveSession(ctx, data)
		return err

	case ActionConnect:
		return h.connect(ctx, h.byName[step.Connect[0]], h.byName[step.Connect[1]])

	case ActionDisconnect:
		a, b := h.byName[step.Disconnect[0]], h.byName[step.Disconnect[1]]
		if !a.peers.DisconnectPeer(b.peers.ID()) {
			return fmt.Errorf("%s is not connected to %s", a.name, b.name)
		}
		return nil

	case ActionTransfer:
		return h.transfer(ctx, dev, h.byName[step.Transfer.To], step.Transfer.Password)

	case ActionBackup:
		_, err := dev.orch.CreateBackup(ctx, step.Backup)
		return err

	case ActionRestore:
		backups, err := dev.orch.ListBackups(ctx, step.Restore)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			return fmt.Errorf("%s has no %q backup", dev.name, step.Restore)
		}
		ok, err := dev.orch.RestoreFromBackup(ctx, backups[0].ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("backup %s could not be restored", backups[0].ID)
		}
		return nil
	}
	return fmt.Errorf("unknown action %v", step.Action())
}

// connect links a and b with share codes, a offering and b answering.
func (h *Harness) connect(ctx context.Context, a, b *device) error {
	code, pendingID, err := a.orch.GenerateShareCode(ctx)
	if err != nil {
		return err
	}
	answer, err := b.orch.ConnectWithCode(ctx, code)
	if err != nil {
		return err
	}
	_, err = a.orch.CompleteConnection(ctx, answer, pendingID)
	return err
}

func (h *Harness) transfer(ctx context.Context, from, to *device, password string) error {
	opts := orchestrator.DefaultExportOptions()
	opts.Encrypt = password != ""

	payload, err := from.orch.ExportData(ctx, opts, password)
	if err != nil {
		return err
	}
	result := to.orch.ImportData(ctx, []byte(payload), password)
	if !result.Success {
		return fmt.Errorf("import on %s: %s", to.name, strings.Join(result.Errors, "; "))
	}
	return nil
}

// settle waits until no device's state has changed for settleQuiet.
func (h *Harness) settle(ctx context.Context) error {
	last, err := h.fingerprint(ctx)
	if err != nil {
		return err
	}
	stableSince := time.Now()
	deadline := stableSince.Add(settleTimeout)

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		fp, err := h.fingerprint(ctx)
		if err != nil {
			return err
		}
		now := time.Now()
		switch {
		case fp != last:
			last, stableSince = fp, now
		case now.Sub(stableSince) >= settleQuiet:
			return nil
		}
		if now.After(deadline) {
			return errors.New("sync did not settle within " + settleTimeout.String())
		}
	}
}

// fingerprint summarizes every device's stored state and peer replica.
func (h *Harness) fingerprint(ctx context.Context) (string, error) {
	states, err := h.capture(ctx)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(states)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Write(raw)
	for _, d := range h.devices {
		replica := d.peers.Snapshot()
		for _, key := range slices.Sorted(maps.Keys(replica)) {
			entry := replica[key]
			fmt.Fprintf(&b, "|%s/%s@%d:%s", d.name, key, entry.Version, entry.Checksum())
		}
	}
	return b.String(), nil
}

func (h *Harness) capture(ctx context.Context) ([]DeviceState, error) {
	states := make([]DeviceState, 0, len(h.devices))
	for _, d := range h.devices {
		state, err := h.captureDevice(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", d.name, err)
		}
		states = append(states, state)
	}
	return states, nil
}

func (h *Harness) captureDevice(ctx context.Context, d *device) (DeviceState, error) {
	state := DeviceState{
		Name:       d.name,
		Strategy:   string(d.strategy),
		Peers:      h.deviceNames(d.orch.ConnectedPeers()),
		SyncedWith: []string{},
		Records:    []RecordState{},
		Backups:    []string{},
	}

	records, err := d.store.GetAll(ctx, model.CollectionPlayer)
	if err != nil {
		return DeviceState{}, err
	}
	for _, rec := range records {
		state.Records = append(state.Records, RecordState{ID: rec.ID, Version: rec.Version, Data: rec.Data})
	}
	slices.SortFunc(state.Records, func(a, b RecordState) int { return cmp.Compare(a.ID, b.ID) })

	sessions, err := d.orch.Sessions(ctx, 0)
	if err != nil {
		return DeviceState{}, err
	}
	state.Sessions = len(sessions)

	backups, err := d.orch.ListBackups(ctx, "")
	if err != nil {
		return DeviceState{}, err
	}
	for _, b := range backups {
		state.Backups = append(state.Backups, b.Type)
	}

	meta, err := d.orch.SyncMetadata(ctx)
	if err != nil {
		return DeviceState{}, err
	}
	if meta != nil {
		state.SyncedWith = h.deviceNames(meta.SyncedPeers)
	}
	return state, nil
}

// deviceNames maps peer ids to device names, sorted. Unknown ids are kept.
func (h *Harness) deviceNames(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, cmp.Or(h.names[id], id))
	}
	slices.Sort(names)
	return names
}
