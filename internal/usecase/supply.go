package usecase

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/internal/repository/tilestore"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/upstream"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"golang.org/x/sync/singleflight"
)

type TileSource string

const (
	SourceCache   TileSource = "cache"
	SourceNetwork TileSource = "network"
)

type SuppliedTile struct {
	Coordinate  tilemath.TileCoordinate
	Data        []byte
	ContentType string
	Source      TileSource
	URL         string
}

// Offline reports whether the tile came from the local cache.
func (t SuppliedTile) Offline() bool {
	return t.Source == SourceCache
}

type SupplyConfig struct {
	OfflineFirst bool
	// CacheOnFallback stores tiles fetched on a cache miss. Off by default.
	CacheOnFallback bool
}

type OfflineMode struct {
	Enabled bool `json:"enabled"`
	// Generation changes on every toggle; clients re-request visible tiles
	// when it does.
	Generation uint64 `json:"generation"`
}

// SupplyUseCase hands tiles to the map widget, cache first when offline-first
// mode is on.
type SupplyUseCase struct {
	store   tilestore.Store
	fetcher upstream.Fetcher
	now     Clock
	logger  logger.Logger

	cacheOnFallback bool

	mu           sync.RWMutex
	offlineFirst bool
	generation   uint64

	group singleflight.Group
}

func NewSupplyUseCase(store tilestore.Store, fetcher upstream.Fetcher, cfg SupplyConfig, now Clock, l logger.Logger) *SupplyUseCase {
	if now == nil {
		now = time.Now
	}

	return &SupplyUseCase{
		store:           store,
		fetcher:         fetcher,
		now:             now,
		logger:          l,
		cacheOnFallback: cfg.CacheOnFallback,
		offlineFirst:    cfg.OfflineFirst,
	}
}

func (uc *SupplyUseCase) Mode() OfflineMode {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return OfflineMode{Enabled: uc.offlineFirst, Generation: uc.generation}
}

// SetOfflineFirst toggles the mode. The generation only moves when the mode
// actually changes.
func (uc *SupplyUseCase) SetOfflineFirst(enabled bool) OfflineMode {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.offlineFirst != enabled {
		uc.offlineFirst = enabled
		uc.generation++
		uc.logger.Info("offline-first mode changed", "enabled", enabled)
	}
	return OfflineMode{Enabled: uc.offlineFirst, Generation: uc.generation}
}

func (uc *SupplyUseCase) Supply(ctx context.Context, c tilemath.TileCoordinate) (SuppliedTile, error) {
	if !c.Valid() {
		return SuppliedTile{}, fmt.Errorf("%w: %s", tilemath.ErrInvalidKey, c)
	}

	if uc.Mode().Enabled {
		tile, ok, err := uc.store.Get(ctx, c)
		if err == nil && ok {
			metrics.CacheHits.Inc()
			metrics.SupplySource.WithLabelValues(string(SourceCache)).Inc()
			return SuppliedTile{
				Coordinate:  c,
				Data:        tile.Data,
				ContentType: http.DetectContentType(tile.Data),
				Source:      SourceCache,
				URL:         tile.SourceURL,
			}, nil
		}
		metrics.CacheMisses.Inc()
	}

	v, err, _ := uc.group.Do(c.Key(), func() (any, error) {
		return uc.fetcher.Fetch(context.WithoutCancel(ctx), c)
	})
	if err != nil {
		return SuppliedTile{}, err
	}
	res := v.(upstream.FetchResult)

	if uc.cacheOnFallback {
		err := uc.store.Put(ctx, tilestore.CachedTile{
			Coordinate: c,
			SourceURL:  res.URL,
			Data:       res.Data,
			StoredAt:   uc.now(),
		})
		if err != nil {
			uc.logger.Warn("failed to cache fallback tile", "tile", c.Key(), "error", err)
		}
	}

	metrics.SupplySource.WithLabelValues(string(SourceNetwork)).Inc()
	return SuppliedTile{
		Coordinate:  c,
		Data:        res.Data,
		ContentType: res.ContentType,
		Source:      SourceNetwork,
		URL:         res.URL,
	}, nil
}
