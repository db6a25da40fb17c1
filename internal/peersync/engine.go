package peersync

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/roach88/tether/internal/model"
)

// PeerStatus is a peer's lifecycle state.
type PeerStatus string

const (
	StatusConnecting   PeerStatus = "connecting"
	StatusConnected    PeerStatus = "connected"
	StatusDisconnected PeerStatus = "disconnected"
)

// PeerInfo is a read-only view of one peer.
type PeerInfo struct {
	ID       string     `json:"id"`
	Status   PeerStatus `json:"status"`
	LastSeen int64      `json:"lastSeen"`
}

type peer struct {
	id       string
	link     Link
	channel  Channel
	status   PeerStatus
	lastSeen int64
	closed   bool
}

// Engine holds the local replica of synced entries and the set of peers.
//
// Thread-safety: Engine is safe for concurrent use.
type Engine struct {
	id        string
	transport Transport
	stamp     *model.Stamper
	logger    *slog.Logger
	ids       IDGenerator

	mu        sync.Mutex
	peers     map[string]*peer
	data      map[string]model.SyncEntry
	policy    ConflictPolicy
	heartbeat *HeartbeatLoop

	events events
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for entry timestamps and liveness.
func WithClock(c model.Clock) Option {
	return func(e *Engine) { e.stamp = model.NewStamper(c) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator sets the source of peer id suffixes.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithConflictPolicy sets the initial conflict policy.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// New creates an engine with a fresh peer id.
func New(transport Transport, opts ...Option) *Engine {
	e := &Engine{
		transport: transport,
		stamp:     model.NewStamper(model.SystemClock{}),
		logger:    slog.Default(),
		ids:       UUIDv7Generator{},
		peers:     make(map[string]*peer),
		data:      make(map[string]model.SyncEntry),
		policy:    DefaultConflictPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.id = peerPrefix + e.ids.Generate()
	e.logger = e.logger.With("peer_id", e.id)
	return e
}

// ID returns this engine's peer id.
func (e *Engine) ID() string {
	return e.id
}

func (e *Engine) now() int64 {
	return model.Millis(e.stamp.Clock())
}

// SetConflictPolicy replaces the conflict policy.
func (e *Engine) SetConflictPolicy(p ConflictPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

// ConflictPolicy returns the current conflict policy.
func (e *Engine) ConflictPolicy() ConflictPolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// SetLocalData stores an entry and broadcasts it to every peer whose channel
// is open. A version <= 0 means "previous version plus one".
func (e *Engine) SetLocalData(key string, data json.RawMessage, version int64) model.SyncEntry {
	e.mu.Lock()
	if version <= 0 {
		version = e.data[key].Version + 1
	}
	entry := model.SyncEntry{
		Data:      append(json.RawMessage(nil), data...),
		Version:   version,
		Timestamp: e.stamp.Next(),
	}
	e.data[key] = entry
	e.mu.Unlock()

	e.broadcast(&DataUpdate{
		Header: e.newHeader(entry.Timestamp, entry.Version, entry.Checksum()),
		Key:    key,
		Entry:  entry,
	})
	return entry
}

// LocalData returns the entry for key.
func (e *Engine) LocalData(key string) (model.SyncEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.data[key]
	return entry, ok
}

// Seed loads a durable entry into the local replica without notifying peers.
// It reports false and leaves the replica alone when the replica already
// holds key at the same or a higher version.
func (e *Engine) Seed(key string, entry model.SyncEntry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.data[key]; ok && cur.Version >= entry.Version {
		return false
	}
	entry.Data = append(json.RawMessage(nil), entry.Data...)
	e.data[key] = entry
	return true
}

// LocalKeys returns the keys of the local replica in sorted order.
func (e *Engine) LocalKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.data))
}

// Snapshot returns a copy of the local replica.
func (e *Engine) Snapshot() map[string]model.SyncEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.data)
}

// Resolve settles a key with application-chosen data. The entry gets the next
// version and is sent to every peer as a conflict resolution.
func (e *Engine) Resolve(key string, data json.RawMessage) model.SyncEntry {
	e.mu.Lock()
	entry := model.SyncEntry{
		Data:      append(json.RawMessage(nil), data...),
		Version:   e.data[key].Version + 1,
		Timestamp: e.stamp.Next(),
	}
	e.data[key] = entry
	e.mu.Unlock()

	e.broadcast(e.resolutionMessage(key, entry))
	return entry
}

func (e *Engine) resolutionMessage(key string, entry model.SyncEntry) *ConflictResolution {
	return &ConflictResolution{
		Header:       e.newHeader(entry.Timestamp, entry.Version, entry.Checksum()),
		Key:          key,
		ResolvedData: entry.Data,
		Version:      entry.Version,
	}
}

func (e *Engine) newHeader(ts, version int64, checksum string) Header {
	return Header{SenderID: e.id, Timestamp: ts, Version: version, Checksum: checksum}
}

// ConnectedPeers returns the ids of peers whose channel is open, sorted.
func (e *Engine) ConnectedPeers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.peers))
	for id, p := range e.peers {
		if p.status == StatusConnected {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Peers returns every known peer sorted by id.
func (e *Engine) Peers() []PeerInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PeerInfo, 0, len(e.peers))
	for _, p := range e.peers {
		out = append(out, PeerInfo{ID: p.id, Status: p.status, LastSeen: p.lastSeen})
	}
	slices.SortFunc(out, func(a, b PeerInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}

// DisconnectPeer closes a peer's channel and link and forgets it. Reports
// whether the peer was known.
func (e *Engine) DisconnectPeer(id string) bool {
	e.mu.Lock()
	p, ok := e.peers[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.dropPeer(p)
	return true
}

// DisconnectAll disconnects every peer.
func (e *Engine) DisconnectAll() {
	e.mu.Lock()
	peers := slices.Collect(maps.Values(e.peers))
	e.mu.Unlock()

	for _, p := range peers {
		e.dropPeer(p)
	}
}

// Close stops the heartbeat and disconnects every peer.
func (e *Engine) Close() {
	e.StopHeartbeat()
	e.DisconnectAll()
}

// dropPeer moves p to disconnected, closes its handles and publishes
// peer_disconnected exactly once.
func (e *Engine) dropPeer(p *peer) {
	e.mu.Lock()
	if p.closed {
		e.mu.Unlock()
		return
	}
	p.closed = true
	p.status = StatusDisconnected
	if e.peers[p.id] == p {
		delete(e.peers, p.id)
	}
	id, ch, link := p.id, p.channel, p.link
	e.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if link != nil {
		link.Close()
	}
	e.logger.Debug("peer disconnected", "peer", id)
	e.events.peerDisconnected.publish(PeerEvent{PeerID: id})
}

// newPeer registers a connecting peer under id and returns the channel
// callbacks bound to it. The callbacks reference the peer, not the id, so a
// later rename keeps them valid.
func (e *Engine) newPeer(id string) (*peer, ChannelEvents) {
	p := &peer{id: id, status: StatusConnecting, lastSeen: e.now()}
	events := ChannelEvents{
		OnOpen:    func(ch Channel) { e.onOpen(p, ch) },
		OnMessage: func(data []byte) { e.handleMessage(p, data) },
		OnClose:   func() { e.dropPeer(p) },
	}
	return p, events
}

// addPeer attaches link to p and stores p, replacing and dropping any
// previous peer with its id.
func (e *Engine) addPeer(p *peer, link Link) {
	e.mu.Lock()
	p.link = link
	if p.closed {
		e.mu.Unlock()
		link.Close()
		return
	}
	old := e.peers[p.id]
	e.peers[p.id] = p
	e.mu.Unlock()

	if old != nil && old != p {
		e.dropPeer(old)
	}
}

func (e *Engine) onOpen(p *peer, ch Channel) {
	e.mu.Lock()
	if p.closed {
		e.mu.Unlock()
		ch.Close()
		return
	}
	p.channel = ch
	p.status = StatusConnected
	p.lastSeen = e.now()
	id := p.id
	summary := e.summaryLocked()
	e.mu.Unlock()

	e.logger.Debug("channel open", "peer", id)
	e.events.peerConnected.publish(PeerEvent{PeerID: id})

	e.send(p, &SyncRequest{
		Header:  e.newHeader(e.now(), 0, ""),
		Summary: summary,
	})
}

func (e *Engine) summaryLocked() map[string]EntrySummary {
	summary := make(map[string]EntrySummary, len(e.data))
	for k, v := range e.data {
		summary[k] = EntrySummary{Version: v.Version, Timestamp: v.Timestamp, Checksum: v.Checksum()}
	}
	return summary
}

// send encodes m and sends it if p's channel is open. Failures are logged;
// nothing is queued or retried.
func (e *Engine) send(p *peer, m Message) {
	data, err := Encode(m)
	if err != nil {
		e.logger.Error("encode message", "type", m.Type(), "error", err)
		return
	}
	e.sendRaw(p, m.Type(), data)
}

func (e *Engine) sendRaw(p *peer, typ MessageType, data []byte) {
	e.mu.Lock()
	ch, id := p.channel, p.id
	e.mu.Unlock()

	if ch == nil || !ch.IsOpen() {
		return
	}
	if err := ch.Send(data); err != nil {
		e.logger.Debug("send failed", "peer", id, "type", typ, "error", err)
	}
}

func (e *Engine) broadcast(m Message) {
	data, err := Encode(m)
	if err != nil {
		e.logger.Error("encode message", "type", m.Type(), "error", err)
		return
	}

	e.mu.Lock()
	peers := slices.Collect(maps.Values(e.peers))
	e.mu.Unlock()

	for _, p := range peers {
		e.sendRaw(p, m.Type(), data)
	}
}

// handleMessage decodes and dispatches one incoming message. Malformed
// messages are logged and dropped.
func (e *Engine) handleMessage(p *peer, data []byte) {
	m, err := Decode(data)
	if err != nil {
		e.mu.Lock()
		id := p.id
		e.mu.Unlock()
		e.logger.Warn("dropping malformed message", "peer", id, "error", err)
		return
	}

	e.mu.Lock()
	if p.closed {
		e.mu.Unlock()
		return
	}
	p.lastSeen = e.now()
	id := p.id
	e.mu.Unlock()

	switch msg := m.(type) {
	case *SyncRequest:
		e.handleSyncRequest(p, id)
	case *SyncResponse:
		e.handleSyncResponse(p, id, msg)
	case *DataUpdate:
		e.handleDataUpdate(id, msg)
	case *ConflictResolution:
		e.handleConflictResolution(id, msg)
	case *Heartbeat:
		// lastSeen already updated
	}
}

// handleSyncRequest replies with the whole local replica. The requester's
// summary is not used to compute a diff.
func (e *Engine) handleSyncRequest(p *peer, id string) {
	e.events.syncStarted.publish(PeerEvent{PeerID: id})

	e.mu.Lock()
	entries := maps.Clone(e.data)
	e.mu.Unlock()

	e.send(p, &SyncResponse{
		Header:  e.newHeader(e.now(), 0, ""),
		Entries: entries,
	})
}

// handleSyncResponse merges a full remote replica. Keys are processed in
// sorted order so event order is deterministic.
func (e *Engine) handleSyncResponse(p *peer, id string, msg *SyncResponse) {
	var (
		received []DataEvent
		merged   []*ConflictResolution
	)

	e.mu.Lock()
	policy := e.policy
	for _, key := range slices.Sorted(maps.Keys(msg.Entries)) {
		remote := msg.Entries[key]
		local, ok := e.data[key]
		if !ok {
			e.data[key] = remote
			received = append(received, DataEvent{PeerID: id, Key: key, Entry: remote})
			continue
		}
		if local.Same(remote) {
			continue
		}

		resolved, outcome := policy.Resolve(local, remote, e.stamp.Next())
		if outcome == KeptLocal {
			continue
		}
		e.data[key] = resolved
		received = append(received, DataEvent{PeerID: id, Key: key, Entry: resolved})
		if outcome == Merged {
			merged = append(merged, e.resolutionMessage(key, resolved))
		}
	}
	e.mu.Unlock()

	for _, ev := range received {
		e.events.dataReceived.publish(ev)
	}
	for _, m := range merged {
		e.send(p, m)
	}
	e.events.syncCompleted.publish(PeerEvent{PeerID: id})
}

// handleDataUpdate applies strictly newer versions. An equal version with a
// newer timestamp is reported as a conflict and not applied.
func (e *Engine) handleDataUpdate(id string, msg *DataUpdate) {
	e.mu.Lock()
	local, ok := e.data[msg.Key]
	switch {
	case !ok || msg.Entry.Version > local.Version:
		e.data[msg.Key] = msg.Entry
		e.mu.Unlock()
		e.events.dataReceived.publish(DataEvent{PeerID: id, Key: msg.Key, Entry: msg.Entry})
	case msg.Entry.Version == local.Version && msg.Entry.Timestamp > local.Timestamp:
		e.mu.Unlock()
		e.events.conflictDetected.publish(ConflictEvent{PeerID: id, Key: msg.Key, Local: local, Remote: msg.Entry})
	default:
		e.mu.Unlock()
	}
}

// handleConflictResolution adopts the sender's entry unconditionally.
func (e *Engine) handleConflictResolution(id string, msg *ConflictResolution) {
	entry := model.SyncEntry{
		Data:      msg.ResolvedData,
		Version:   msg.Version,
		Timestamp: msg.Timestamp,
	}

	e.mu.Lock()
	e.data[msg.Key] = entry
	e.mu.Unlock()

	e.events.dataReceived.publish(DataEvent{PeerID: id, Key: msg.Key, Entry: entry})
}

// heartbeatTick sends a heartbeat to every peer, then evicts peers silent for
// more than three intervals.
func (e *Engine) heartbeatTick(interval time.Duration) {
	e.broadcast(&Heartbeat{Header: e.newHeader(e.now(), 0, "")})

	type stalePeer struct {
		p        *peer
		id       string
		lastSeen int64
	}

	cutoff := e.now() - 3*interval.Milliseconds()
	e.mu.Lock()
	var stale []stalePeer
	for _, p := range e.peers {
		if p.lastSeen < cutoff {
			stale = append(stale, stalePeer{p: p, id: p.id, lastSeen: p.lastSeen})
		}
	}
	e.mu.Unlock()

	for _, s := range stale {
		e.logger.Info("evicting stale peer", "peer", s.id, "last_seen", s.lastSeen)
		e.dropPeer(s.p)
	}
}
