package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/internal/repository/metastore"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/tilestore"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/offline/pkg/telemetry"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"go.opentelemetry.io/otel/attribute"
)

// Clock is injected so expiry can be tested at exact boundaries.
type Clock func() time.Time

type MaintenanceUseCase struct {
	store  tilestore.Store
	meta   metastore.Store
	maxAge time.Duration
	now    Clock
	logger logger.Logger
}

func NewMaintenanceUseCase(store tilestore.Store, meta metastore.Store, maxAge time.Duration, now Clock, l logger.Logger) *MaintenanceUseCase {
	if now == nil {
		now = time.Now
	}

	return &MaintenanceUseCase{
		store:  store,
		meta:   meta,
		maxAge: maxAge,
		now:    now,
		logger: l,
	}
}

// MaxAge is the default expiry age.
func (uc *MaintenanceUseCase) MaxAge() time.Duration {
	return uc.maxAge
}

// Stats reads every stored tile. Unreadable entries are skipped.
func (uc *MaintenanceUseCase) Stats(ctx context.Context) (metastore.Statistics, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "cache.stats")
	defer span.End()

	keys, err := uc.store.Keys(ctx)
	if err != nil {
		return metastore.Statistics{}, fmt.Errorf("failed to list tiles: %w", err)
	}

	var stats metastore.Statistics
	for _, c := range keys {
		tile, ok, err := uc.store.Get(ctx, c)
		if err != nil || !ok {
			continue
		}

		stats.TotalTiles++
		stats.TotalBytes += int64(tile.Size())

		storedAt := tile.StoredAt
		if stats.Oldest == nil || storedAt.Before(*stats.Oldest) {
			stats.Oldest = &storedAt
		}
		if stats.Newest == nil || storedAt.After(*stats.Newest) {
			stats.Newest = &storedAt
		}
	}

	span.SetAttributes(attribute.Int("tiles", stats.TotalTiles))
	return stats, nil
}

// RefreshSnapshot recomputes the statistics and persists them.
func (uc *MaintenanceUseCase) RefreshSnapshot(ctx context.Context) (metastore.Statistics, error) {
	stats, err := uc.Stats(ctx)
	if err != nil {
		return metastore.Statistics{}, err
	}

	err = uc.meta.Save(ctx, metastore.Snapshot{Statistics: stats, UpdatedAt: uc.now()})
	if err != nil {
		return stats, fmt.Errorf("failed to save statistics snapshot: %w", err)
	}

	return stats, nil
}

func (uc *MaintenanceUseCase) refreshQuietly(ctx context.Context) {
	if _, err := uc.RefreshSnapshot(ctx); err != nil {
		uc.logger.Warn("statistics snapshot not updated", "error", err)
	}
}

// ClearExpired deletes every tile older than maxAge and returns how many went.
func (uc *MaintenanceUseCase) ClearExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "cache.clear_expired")
	defer span.End()

	keys, err := uc.store.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tiles: %w", err)
	}

	now := uc.now()
	removed := 0
	for _, c := range keys {
		tile, ok, err := uc.store.Get(ctx, c)
		if err != nil || !ok || !tile.Expired(now, maxAge) {
			continue
		}

		if err := uc.store.Delete(ctx, c); err != nil {
			uc.logger.Error("failed to delete expired tile", "tile", c.Key(), "error", err)
			continue
		}
		removed++
	}

	metrics.TilesExpired.Add(float64(removed))
	span.SetAttributes(attribute.Int("removed", removed))
	uc.logger.Info("expired tiles cleared", "removed", removed, "scanned", len(keys), "max_age", maxAge)

	uc.refreshQuietly(ctx)

	return removed, nil
}

func (uc *MaintenanceUseCase) ClearAll(ctx context.Context) error {
	if err := uc.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear tiles: %w", err)
	}
	if err := uc.meta.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear statistics snapshot: %w", err)
	}

	uc.logger.Info("offline cache cleared")
	return nil
}

// Snapshot returns the last persisted statistics. A failing metadata store
// reads as "no snapshot".
func (uc *MaintenanceUseCase) Snapshot(ctx context.Context) (metastore.Snapshot, bool) {
	snap, ok, err := uc.meta.Load(ctx)
	if err != nil {
		uc.logger.Warn("failed to load statistics snapshot", "error", err)
		return metastore.Snapshot{}, false
	}
	return snap, ok
}

// AreaAvailable reports whether every tile covering bounds at zoom is cached
// and fresh.
func (uc *MaintenanceUseCase) AreaAvailable(ctx context.Context, bounds tilemath.GeoBounds, zoom int) (bool, error) {
	if err := bounds.Validate(); err != nil {
		return false, err
	}
	if err := tilemath.ValidateZoomRange(zoom, zoom); err != nil {
		return false, err
	}

	now := uc.now()
	for _, c := range tilemath.TilesForBounds(bounds, zoom, zoom) {
		tile, ok, err := uc.store.Get(ctx, c)
		if err != nil || !ok || tile.Expired(now, uc.maxAge) {
			return false, nil
		}
	}
	return true, nil
}
