// Package metastore persists the last computed cache statistics so they can be
// shown without rescanning the tile store.
package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotName is the fixed name of the statistics record.
const SnapshotName = "stats"

type Statistics struct {
	TotalTiles int        `json:"total_tiles"`
	TotalBytes int64      `json:"total_bytes"`
	Oldest     *time.Time `json:"oldest,omitempty"`
	Newest     *time.Time `json:"newest,omitempty"`
}

type Snapshot struct {
	Statistics Statistics `json:"statistics"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Store keeps at most one Snapshot. Load reports an absent snapshot as
// (zero, false, nil).
type Store interface {
	Save(ctx context.Context, s Snapshot) error
	Load(ctx context.Context) (Snapshot, bool, error)
	Clear(ctx context.Context) error
}

func encode(s Snapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshalling snapshot: %w", err)
	}
	return b, nil
}

func decode(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("error unmarshalling snapshot: %w", err)
	}
	return s, nil
}
