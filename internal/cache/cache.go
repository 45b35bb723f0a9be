// Package cache persists the most recent non-empty snapshot so the dashboard
// has something to show before the first fetch completes and while the
// backend is unreachable.
package cache

import (
	"context"
	"errors"

	"github.com/dm/dashsync/internal/model"
)

// SnapshotKey is the entry under which the snapshot is stored.
const SnapshotKey = "cached_dashboard_snapshot"

var (
	// ErrEmptySnapshot is returned by Save for nil or empty snapshots.
	ErrEmptySnapshot = errors.New("cache: refusing to store empty snapshot")
	// ErrCorrupt wraps decode failures of a stored snapshot.
	ErrCorrupt = errors.New("cache: stored snapshot is corrupt")
)

// Store is implemented by SQLiteStore and MemoryStore.
type Store interface {
	Save(ctx context.Context, s *model.Snapshot) error
	// Load returns (nil, nil) when nothing has been stored.
	Load(ctx context.Context) (*model.Snapshot, error)
	Close() error
}

func encode(s *model.Snapshot) ([]byte, error) {
	if s == nil || s.IsEmpty() {
		return nil, ErrEmptySnapshot
	}
	return model.MarshalCache(s)
}

func decode(b []byte) (*model.Snapshot, error) {
	s, err := model.UnmarshalCache(b)
	if err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	return s, nil
}
