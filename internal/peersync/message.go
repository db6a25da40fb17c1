package peersync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/tether/internal/model"
)

// MessageType tags a wire message.
type MessageType string

const (
	TypeSyncRequest        MessageType = "sync_request"
	TypeSyncResponse       MessageType = "sync_response"
	TypeDataUpdate         MessageType = "data_update"
	TypeConflictResolution MessageType = "conflict_resolution"
	TypeHeartbeat          MessageType = "heartbeat"
)

// Header carries the envelope fields shared by every message.
type Header struct {
	SenderID  string
	Timestamp int64
	Version   int64
	Checksum  string
}

// Message is one of SyncRequest, SyncResponse, DataUpdate,
// ConflictResolution or Heartbeat.
type Message interface {
	Type() MessageType
	header() *Header
}

// EntrySummary describes one key without its data.
type EntrySummary struct {
	Version   int64  `json:"version"`
	Timestamp int64  `json:"timestamp"`
	Checksum  string `json:"checksum"`
}

// SyncRequest asks a peer for its data set.
type SyncRequest struct {
	Header
	Summary map[string]EntrySummary
}

// SyncResponse carries the sender's entire data set.
type SyncResponse struct {
	Header
	Entries map[string]model.SyncEntry
}

// DataUpdate carries one changed entry.
type DataUpdate struct {
	Header
	Key   string
	Entry model.SyncEntry
}

// ConflictResolution carries an entry the sender resolved.
type ConflictResolution struct {
	Header
	Key          string
	ResolvedData json.RawMessage
	Version      int64
}

// Heartbeat signals liveness.
type Heartbeat struct {
	Header
}

func (*SyncRequest) Type() MessageType        { return TypeSyncRequest }
func (*SyncResponse) Type() MessageType       { return TypeSyncResponse }
func (*DataUpdate) Type() MessageType         { return TypeDataUpdate }
func (*ConflictResolution) Type() MessageType { return TypeConflictResolution }
func (*Heartbeat) Type() MessageType          { return TypeHeartbeat }

func (m *SyncRequest) header() *Header        { return &m.Header }
func (m *SyncResponse) header() *Header       { return &m.Header }
func (m *DataUpdate) header() *Header         { return &m.Header }
func (m *ConflictResolution) header() *Header { return &m.Header }
func (m *Heartbeat) header() *Header          { return &m.Header }

// envelope is the wire form.
type envelope struct {
	Type      MessageType     `json:"type"`
	SenderID  string          `json:"senderId"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Version   int64           `json:"version,omitempty"`
	Checksum  string          `json:"checksum,omitempty"`
}

type dataUpdatePayload struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Version   int64           `json:"version"`
	Timestamp int64           `json:"timestamp"`
}

type conflictResolutionPayload struct {
	Key          string          `json:"key"`
	ResolvedData json.RawMessage `json:"resolvedData"`
	Version      int64           `json:"version"`
}

var null = json.RawMessage("null")

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return null
	}
	return raw
}

// Encode serializes a message to its JSON envelope.
func Encode(m Message) ([]byte, error) {
	var payload any
	switch msg := m.(type) {
	case *SyncRequest:
		summary := msg.Summary
		if summary == nil {
			summary = map[string]EntrySummary{}
		}
		payload = summary
	case *SyncResponse:
		entries := make(map[string]model.SyncEntry, len(msg.Entries))
		for k, e := range msg.Entries {
			e.Data = orNull(e.Data)
			entries[k] = e
		}
		payload = entries
	case *DataUpdate:
		payload = dataUpdatePayload{
			Key:       msg.Key,
			Data:      orNull(msg.Entry.Data),
			Version:   msg.Entry.Version,
			Timestamp: msg.Entry.Timestamp,
		}
	case *ConflictResolution:
		payload = conflictResolutionPayload{
			Key:          msg.Key,
			ResolvedData: orNull(msg.ResolvedData),
			Version:      msg.Version,
		}
	case *Heartbeat:
		payload = nil
	default:
		return nil, fmt.Errorf("encode message: unsupported type %T", m)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m.Type(), err)
	}

	h := m.header()
	out, err := json.Marshal(envelope{
		Type:      m.Type(),
		SenderID:  h.SenderID,
		Timestamp: h.Timestamp,
		Payload:   raw,
		Version:   h.Version,
		Checksum:  h.Checksum,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return out, nil
}

// Decode parses a JSON envelope. Malformed JSON, an unknown type or a payload
// that does not fit its type yields a ProtocolParseError.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, model.ProtocolParseError("peersync.decode", err)
	}

	h := Header{
		SenderID:  env.SenderID,
		Timestamp: env.Timestamp,
		Version:   env.Version,
		Checksum:  env.Checksum,
	}

	var (
		m   Message
		err error
	)
	switch env.Type {
	case TypeSyncRequest:
		msg := &SyncRequest{Header: h}
		err = unmarshalPayload(env.Payload, &msg.Summary)
		m = msg
	case TypeSyncResponse:
		msg := &SyncResponse{Header: h}
		err = unmarshalPayload(env.Payload, &msg.Entries)
		for k, e := range msg.Entries {
			e.Data = orNull(e.Data)
			msg.Entries[k] = e
		}
		m = msg
	case TypeDataUpdate:
		var p dataUpdatePayload
		err = unmarshalPayload(env.Payload, &p)
		if err == nil && p.Key == "" {
			err = errors.New("data_update without key")
		}
		m = &DataUpdate{
			Header: h,
			Key:    p.Key,
			Entry:  model.SyncEntry{Data: orNull(p.Data), Version: p.Version, Timestamp: p.Timestamp},
		}
	case TypeConflictResolution:
		var p conflictResolutionPayload
		err = unmarshalPayload(env.Payload, &p)
		if err == nil && p.Key == "" {
			err = errors.New("conflict_resolution without key")
		}
		m = &ConflictResolution{Header: h, Key: p.Key, ResolvedData: orNull(p.ResolvedData), Version: p.Version}
	case TypeHeartbeat:
		m = &Heartbeat{Header: h}
	default:
		err = fmt.Errorf("unknown message type %q", env.Type)
	}
	if err != nil {
		return nil, model.ProtocolParseError("peersync.decode", err)
	}
	return m, nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	return nil
}
