package tilestore

import (
	"context"

	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

// Safe turns every read failure of the wrapped store into a miss. Storage
// read errors and corrupt records are logged and counted, never returned.
type Safe struct {
	Store
	logger logger.Logger
}

var _ Store = (*Safe)(nil)

func NewSafe(store Store, l logger.Logger) *Safe {
	return &Safe{
		Store:  store,
		logger: l,
	}
}

func (s *Safe) Get(ctx context.Context, c tilemath.TileCoordinate) (CachedTile, bool, error) {
	tile, ok, err := s.Store.Get(ctx, c)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("get").Inc()
		s.logger.Warn("tile read failed, treating as miss", "tile", c.Key(), "error", err)
		return CachedTile{}, false, nil
	}
	return tile, ok, nil
}

func (s *Safe) Put(ctx context.Context, tile CachedTile) error {
	if err := s.Store.Put(ctx, tile); err != nil {
		metrics.StorageErrors.WithLabelValues("put").Inc()
		return err
	}
	metrics.CacheStores.Inc()
	return nil
}
