// Package peersync replicates a small key/value map between peers over
// ordered data channels.
//
// # Protocol
//
// Every message is a JSON envelope {type, senderId, timestamp, payload,
// version?, checksum?}. The five message types are modeled as distinct Go
// types implementing Message:
//
//   - SyncRequest: sent when a channel opens; carries a summary of local keys
//   - SyncResponse: reply carrying the full local data set
//   - DataUpdate: broadcast on every SetLocalData
//   - ConflictResolution: an entry the sender has merged; adopted as-is
//   - Heartbeat: liveness only
//
// Undecodable messages are logged and dropped. They never close a channel.
//
// # Conflicts
//
// The higher version always wins. Equal versions fall back to the configured
// ConflictPolicy (newest, local, remote or merge).
//
// # Peers
//
// Each peer moves connecting -> connected -> disconnected. Disconnected is
// terminal: the channel and link are closed and the peer is forgotten. A peer
// silent for more than three heartbeat intervals is evicted on the next tick.
//
// The engine never holds its lock while sending, closing or publishing
// events, so transports may call back into it from any goroutine.
package peersync
