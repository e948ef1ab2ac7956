package tilestore

import (
	"context"
	"sync"

	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

type TypedSyncMap struct {
	m sync.Map
}

func (c *TypedSyncMap) Load(k tilemath.TileCoordinate) (record, bool) {
	v, exists := c.m.Load(k)
	if !exists {
		return record{}, false
	}
	return v.(record), exists
}

func (c *TypedSyncMap) Store(k tilemath.TileCoordinate, v record) {
	c.m.Store(k, v)
}

func (c *TypedSyncMap) Delete(k tilemath.TileCoordinate) {
	c.m.Delete(k)
}

func (c *TypedSyncMap) Range(fn func(k tilemath.TileCoordinate, v record) bool) {
	c.m.Range(func(k, v any) bool {
		return fn(k.(tilemath.TileCoordinate), v.(record))
	})
}

// MapStore is the in-memory backend. Contents are lost on exit.
type MapStore struct {
	m *TypedSyncMap
}

func NewMapStore() *MapStore {
	return &MapStore{
		m: &TypedSyncMap{},
	}
}

var _ Store = (*MapStore)(nil)

func (s *MapStore) Get(ctx context.Context, c tilemath.TileCoordinate) (CachedTile, bool, error) {
	r, exists := s.m.Load(c)
	if !exists {
		return CachedTile{}, false, nil
	}

	r.Data = append([]byte(nil), r.Data...)
	tile, err := r.tile(c)
	if err != nil {
		return CachedTile{}, false, err
	}
	return tile, true, nil
}

func (s *MapStore) Put(ctx context.Context, t CachedTile) error {
	if err := checkTile(t); err != nil {
		return err
	}

	r := newRecord(t)
	r.Data = append([]byte(nil), t.Data...)
	s.m.Store(t.Coordinate, r)
	return nil
}

func (s *MapStore) Delete(ctx context.Context, c tilemath.TileCoordinate) error {
	s.m.Delete(c)
	return nil
}

func (s *MapStore) Clear(ctx context.Context) error {
	s.m.Range(func(k tilemath.TileCoordinate, _ record) bool {
		s.m.Delete(k)
		return true
	})
	return nil
}

func (s *MapStore) Keys(ctx context.Context) ([]tilemath.TileCoordinate, error) {
	var keys []tilemath.TileCoordinate
	s.m.Range(func(k tilemath.TileCoordinate, _ record) bool {
		keys = append(keys, k)
		return true
	})
	return keys, nil
}
