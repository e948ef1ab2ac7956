package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/internal/repository/upstream"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

func newSupplyUseCase(fx *fixture, cfg SupplyConfig) *SupplyUseCase {
	return NewSupplyUseCase(fx.store, fx.fetcher, cfg, fixedClock, logger.NewNoOp())
}

var pngHeader = "\x89PNG\r\n\x1a\n"

func TestSupplyServesCachedTile(t *testing.T) {
	fx := newFixture()
	uc := newSupplyUseCase(fx, SupplyConfig{OfflineFirst: true})
	c := tilemath.TileCoordinate{X: 3, Y: 5, Z: 4}
	fx.put(t, c, pngHeader+"body", testNow.Add(-time.Hour))

	tile, err := uc.Supply(context.Background(), c)
	if err != nil {
		t.Fatalf("Supply failed: %v", err)
	}
	if !tile.Offline() || tile.Source != SourceCache || string(tile.Data) != pngHeader+"body" {
		t.Fatalf("unexpected tile %+v", tile)
	}
	if tile.ContentType != "image/png" {
		t.Fatalf("unexpected content type %q", tile.ContentType)
	}
	if fx.fetcher.callCount() != 0 {
		t.Fatalf("cache hit went to the network")
	}
}

func TestSupplyFallsBackWithoutWriting(t *testing.T) {
	fx := newFixture()
	uc := newSupplyUseCase(fx, SupplyConfig{OfflineFirst: true})
	c := tilemath.TileCoordinate{X: 1, Y: 1, Z: 2}

	tile, err := uc.Supply(context.Background(), c)
	if err != nil {
		t.Fatalf("Supply failed: %v", err)
	}
	if tile.Offline() || tile.URL != "https://tiles.test/2/1/1" || tile.ContentType != "image/png" {
		t.Fatalf("unexpected tile %+v", tile)
	}
	if n := fx.keyCount(t); n != 0 {
		t.Fatalf("fallback tile was cached")
	}
}

func TestSupplyCachesOnFallbackWhenEnabled(t *testing.T) {
	fx := newFixture()
	uc := newSupplyUseCase(fx, SupplyConfig{OfflineFirst: true, CacheOnFallback: true})
	c := tilemath.TileCoordinate{X: 1, Y: 1, Z: 2}

	if _, err := uc.Supply(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	cached, ok, _ := fx.store.Get(context.Background(), c)
	if !ok || !cached.StoredAt.Equal(testNow) || cached.SourceURL != "https://tiles.test/2/1/1" {
		t.Fatalf("fallback tile not cached: %+v, %v", cached, ok)
	}

	again, err := uc.Supply(context.Background(), c)
	if err != nil || !again.Offline() {
		t.Fatalf("second supply should hit the cache: %+v, %v", again, err)
	}
	if fx.fetcher.callCount() != 1 {
		t.Fatalf("expected one network fetch, got %d", fx.fetcher.callCount())
	}
}

func TestSupplyOnlineModeIgnoresCache(t *testing.T) {
	fx := newFixture()
	uc := newSupplyUseCase(fx, SupplyConfig{})
	c := tilemath.TileCoordinate{X: 0, Y: 0, Z: 0}
	fx.put(t, c, "cached", testNow)

	tile, err := uc.Supply(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if tile.Offline() || fx.fetcher.callCount() != 1 {
		t.Fatalf("online mode must go to the network: %+v", tile)
	}
}

func TestSupplyErrors(t *testing.T) {
	fx := newFixture()
	fx.fetcher.failOn = map[int]bool{1: true}
	uc := newSupplyUseCase(fx, SupplyConfig{OfflineFirst: true})

	if _, err := uc.Supply(context.Background(), tilemath.TileCoordinate{X: 4, Y: 0, Z: 2}); !errors.Is(err, tilemath.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := uc.Supply(context.Background(), tilemath.TileCoordinate{X: 0, Y: 0, Z: 2}); !errors.Is(err, upstream.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestSetOfflineFirstGeneration(t *testing.T) {
	uc := newSupplyUseCase(newFixture(), SupplyConfig{OfflineFirst: true})

	if m := uc.Mode(); !m.Enabled || m.Generation != 0 {
		t.Fatalf("unexpected initial mode %+v", m)
	}
	if m := uc.SetOfflineFirst(true); m.Generation != 0 {
		t.Fatalf("setting the same mode bumped the generation: %+v", m)
	}
	if m := uc.SetOfflineFirst(false); m.Enabled || m.Generation != 1 {
		t.Fatalf("unexpected mode after disabling %+v", m)
	}
	if m := uc.SetOfflineFirst(true); !m.Enabled || m.Generation != 2 {
		t.Fatalf("unexpected mode after enabling %+v", m)
	}
}

func TestSupplyDeduplicatesConcurrentMisses(t *testing.T) {
	fx := newFixture()
	fx.fetcher.block = make(chan struct{})
	fx.fetcher.started = make(chan struct{})
	uc := newSupplyUseCase(fx, SupplyConfig{OfflineFirst: true})
	c := tilemath.TileCoordinate{X: 2, Y: 2, Z: 3}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Supply(context.Background(), c)
			errs <- err
		}()
	}

	<-fx.fetcher.started
	time.Sleep(100 * time.Millisecond)
	close(fx.fetcher.block)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Supply failed: %v", err)
		}
	}
	if n := fx.fetcher.callCount(); n != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", n)
	}
}
