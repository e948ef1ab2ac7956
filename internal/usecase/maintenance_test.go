package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/internal/repository/metastore"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/tilestore"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

func TestClearExpiredBoundary(t *testing.T) {
	fx := newFixture()
	maxAge := 7 * 24 * time.Hour

	justExpired := tilemath.TileCoordinate{X: 0, Y: 0, Z: 1}
	justFresh := tilemath.TileCoordinate{X: 1, Y: 0, Z: 1}
	exact := tilemath.TileCoordinate{X: 1, Y: 1, Z: 1}
	fx.put(t, justExpired, "a", testNow.Add(-maxAge-time.Millisecond))
	fx.put(t, justFresh, "b", testNow.Add(-maxAge+time.Millisecond))
	fx.put(t, exact, "c", testNow.Add(-maxAge))

	removed, err := fx.maintenance.ClearExpired(context.Background(), maxAge)
	if err != nil {
		t.Fatalf("ClearExpired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	ctx := context.Background()
	if _, ok, _ := fx.store.Get(ctx, justExpired); ok {
		t.Fatalf("tile one millisecond past max age survived")
	}
	if _, ok, _ := fx.store.Get(ctx, justFresh); !ok {
		t.Fatalf("tile one millisecond inside max age was removed")
	}
	if _, ok, _ := fx.store.Get(ctx, exact); !ok {
		t.Fatalf("tile exactly max age old was removed")
	}
}

func TestClearExpiredTwoOfFive(t *testing.T) {
	fx := newFixture()
	maxAge := 7 * 24 * time.Hour

	for i := 0; i < 5; i++ {
		storedAt := testNow.Add(-time.Hour)
		if i < 2 {
			storedAt = testNow.Add(-maxAge - time.Hour)
		}
		fx.put(t, tilemath.TileCoordinate{X: i, Y: 0, Z: 3}, "tile", storedAt)
	}

	removed, err := fx.maintenance.ClearExpired(context.Background(), maxAge)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if n := fx.keyCount(t); n != 3 {
		t.Fatalf("expected 3 remaining tiles, got %d", n)
	}

	snap, ok := fx.maintenance.Snapshot(context.Background())
	if !ok || snap.Statistics.TotalTiles != 3 || !snap.UpdatedAt.Equal(testNow) {
		t.Fatalf("snapshot not recomputed: %+v, %v", snap, ok)
	}
}

func TestStats(t *testing.T) {
	fx := newFixture()

	stats, err := fx.maintenance.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTiles != 0 || stats.TotalBytes != 0 || stats.Oldest != nil || stats.Newest != nil {
		t.Fatalf("unexpected stats for empty store %+v", stats)
	}

	oldest := testNow.Add(-48 * time.Hour)
	newest := testNow.Add(-time.Minute)
	fx.put(t, tilemath.TileCoordinate{X: 0, Y: 0, Z: 0}, "12345", oldest)
	fx.put(t, tilemath.TileCoordinate{X: 0, Y: 0, Z: 1}, "123", newest)
	fx.put(t, tilemath.TileCoordinate{X: 1, Y: 0, Z: 1}, "12", testNow.Add(-time.Hour))

	stats, err = fx.maintenance.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTiles != 3 || stats.TotalBytes != 10 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if !stats.Oldest.Equal(oldest) || !stats.Newest.Equal(newest) {
		t.Fatalf("unexpected range %v .. %v", stats.Oldest, stats.Newest)
	}
}

func TestClearAll(t *testing.T) {
	fx := newFixture()
	fx.put(t, tilemath.TileCoordinate{}, "x", testNow)
	if _, err := fx.maintenance.RefreshSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := fx.maintenance.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	if n := fx.keyCount(t); n != 0 {
		t.Fatalf("expected empty store, got %d tiles", n)
	}
	if _, ok := fx.maintenance.Snapshot(context.Background()); ok {
		t.Fatalf("snapshot survived ClearAll")
	}
}

func TestAreaAvailable(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	tiles := tilemath.TilesForBounds(tenTileArea, 5, 5)

	for _, c := range tiles[:9] {
		fx.put(t, c, "x", testNow)
	}
	if ok, err := fx.maintenance.AreaAvailable(ctx, tenTileArea, 5); err != nil || ok {
		t.Fatalf("AreaAvailable with a missing tile = %v, %v", ok, err)
	}

	fx.put(t, tiles[9], "x", testNow.Add(-30*24*time.Hour))
	if ok, _ := fx.maintenance.AreaAvailable(ctx, tenTileArea, 5); ok {
		t.Fatalf("AreaAvailable with an expired tile should be false")
	}

	fx.put(t, tiles[9], "x", testNow)
	if ok, err := fx.maintenance.AreaAvailable(ctx, tenTileArea, 5); err != nil || !ok {
		t.Fatalf("AreaAvailable on a complete area = %v, %v", ok, err)
	}

	if _, err := fx.maintenance.AreaAvailable(ctx, tilemath.GeoBounds{North: 0, South: 1, East: 1, West: 0}, 5); !errors.Is(err, tilemath.ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
}

type brokenMeta struct {
	metastore.Store
}

func (brokenMeta) Load(context.Context) (metastore.Snapshot, bool, error) {
	return metastore.Snapshot{}, false, errors.New("memcache unreachable")
}

func TestSnapshotIsBestEffort(t *testing.T) {
	uc := NewMaintenanceUseCase(tilestore.NewMapStore(), brokenMeta{Store: metastore.NewMemoryStore()}, time.Hour, fixedClock, logger.NewNoOp())

	if _, ok := uc.Snapshot(context.Background()); ok {
		t.Fatalf("a failing metadata store should read as no snapshot")
	}
}
