package metastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
)

const memcacheKey = "offline_meta_" + SnapshotName

// MemcacheClient is the subset of *memcache.Client the store needs.
type MemcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
}

// MemcacheStore may lose the snapshot on eviction, which Load reports as absent.
type MemcacheStore struct {
	client MemcacheClient
}

func NewMemcacheStore(client MemcacheClient) *MemcacheStore {
	return &MemcacheStore{client: client}
}

var _ Store = (*MemcacheStore)(nil)

func (m *MemcacheStore) Save(_ context.Context, snap Snapshot) error {
	payload, err := encode(snap)
	if err != nil {
		return err
	}

	err = m.client.Set(&memcache.Item{
		Key:   memcacheKey,
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("error setting to memcache: %w", err)
	}
	return nil
}

func (m *MemcacheStore) Load(_ context.Context) (Snapshot, bool, error) {
	item, err := m.client.Get(memcacheKey)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("error getting from memcache: %w", err)
	}

	snap, err := decode(item.Value)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (m *MemcacheStore) Clear(_ context.Context) error {
	err := m.client.Delete(memcacheKey)
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("error deleting from memcache: %w", err)
	}
	return nil
}
