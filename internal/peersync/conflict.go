package peersync

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tether/internal/model"
)

// Strategy picks a winner between two entries with the same version.
type Strategy string

const (
	// StrategyNewest keeps the entry with the larger timestamp; ties keep local.
	StrategyNewest Strategy = "newest"
	// StrategyLocal always keeps the local entry.
	StrategyLocal Strategy = "local"
	// StrategyRemote always takes the remote entry.
	StrategyRemote Strategy = "remote"
	// StrategyMerge combines both through a Resolver.
	StrategyMerge Strategy = "merge"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyNewest, StrategyLocal, StrategyRemote, StrategyMerge:
		return st, nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q (want newest, local, remote or merge)", s)
	}
}

// Resolver merges two payloads. Returning nil falls back to newest.
type Resolver func(local, remote json.RawMessage) json.RawMessage

// ConflictPolicy configures conflict resolution.
type ConflictPolicy struct {
	Strategy Strategy
	Resolver Resolver
}

// DefaultConflictPolicy resolves by newest timestamp.
func DefaultConflictPolicy() ConflictPolicy {
	return ConflictPolicy{Strategy: StrategyNewest}
}

// Outcome says which side a resolution kept.
type Outcome int

const (
	KeptLocal Outcome = iota
	TookRemote
	Merged
)

// Resolve picks between local and remote.
//
// A version difference decides outright. Equal versions apply the strategy.
// A merge gets version max+1 and timestamp now. Merge without a resolver, or
// with a resolver that returns nil, behaves like newest. An unknown strategy
// keeps local.
func (p ConflictPolicy) Resolve(local, remote model.SyncEntry, now int64) (model.SyncEntry, Outcome) {
	if local.Version != remote.Version {
		if local.Version > remote.Version {
			return local, KeptLocal
		}
		return remote, TookRemote
	}

	switch p.Strategy {
	case StrategyNewest, "":
		return newest(local, remote)
	case StrategyLocal:
		return local, KeptLocal
	case StrategyRemote:
		return remote, TookRemote
	case StrategyMerge:
		if p.Resolver == nil {
			return newest(local, remote)
		}
		merged := p.Resolver(local.Data, remote.Data)
		if merged == nil || !json.Valid(merged) {
			return newest(local, remote)
		}
		return model.SyncEntry{
			Data:      merged,
			Version:   max(local.Version, remote.Version) + 1,
			Timestamp: now,
		}, Merged
	default:
		return local, KeptLocal
	}
}

func newest(local, remote model.SyncEntry) (model.SyncEntry, Outcome) {
	if remote.Timestamp > local.Timestamp {
		return remote, TookRemote
	}
	return local, KeptLocal
}
