package usecase

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/internal/repository/metastore"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/tilestore"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/upstream"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

var testNow = time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

// tenTileArea covers x 16..17, y 10..14 at zoom 5.
var tenTileArea = tilemath.GeoBounds{North: 50, South: 20, East: 12, West: 1}

type stubFetcher struct {
	mu    sync.Mutex
	calls []tilemath.TileCoordinate

	// failOn makes the n-th call (1-based) answer 500.
	failOn map[int]bool
	// block holds every call until closed or the context ends.
	block   chan struct{}
	started chan struct{}
}

func (f *stubFetcher) URL(c tilemath.TileCoordinate) (string, error) {
	return "https://tiles.test/" + c.Key(), nil
}

func (f *stubFetcher) Fetch(ctx context.Context, c tilemath.TileCoordinate) (upstream.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	n := len(f.calls)
	f.mu.Unlock()

	if f.started != nil && n == 1 {
		close(f.started)
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return upstream.FetchResult{}, fmt.Errorf("%w: %w", upstream.ErrFetchFailed, ctx.Err())
		}
	}

	url, _ := f.URL(c)
	if f.failOn[n] {
		return upstream.FetchResult{}, &upstream.FetchError{URL: url, Status: http.StatusInternalServerError}
	}

	return upstream.FetchResult{
		URL:         url,
		Data:        []byte("tile-" + c.Key()),
		ContentType: "image/png",
	}, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	store       *tilestore.MapStore
	meta        *metastore.MemoryStore
	fetcher     *stubFetcher
	maintenance *MaintenanceUseCase
}

func newFixture() *fixture {
	store := tilestore.NewMapStore()
	meta := metastore.NewMemoryStore()
	return &fixture{
		store:       store,
		meta:        meta,
		fetcher:     &stubFetcher{},
		maintenance: NewMaintenanceUseCase(store, meta, 7*24*time.Hour, fixedClock, logger.NewNoOp()),
	}
}

func (fx *fixture) put(t *testing.T, c tilemath.TileCoordinate, data string, storedAt time.Time) {
	t.Helper()
	err := fx.store.Put(context.Background(), tilestore.CachedTile{
		Coordinate: c,
		SourceURL:  "https://tiles.test/" + c.Key(),
		Data:       []byte(data),
		StoredAt:   storedAt,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func (fx *fixture) keyCount(t *testing.T) int {
	t.Helper()
	keys, err := fx.store.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	return len(keys)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
