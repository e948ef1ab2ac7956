package tilestore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

var storedAt = time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

func newTile(x, y, z int, data string) CachedTile {
	c := tilemath.TileCoordinate{X: x, Y: y, Z: z}
	return CachedTile{
		Coordinate: c,
		SourceURL:  "https://tiles.example/" + c.Key(),
		Data:       []byte(data),
		StoredAt:   storedAt,
	}
}

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger.NewNoOp())
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func setupFilesystemStore(t *testing.T) *FilesystemStore {
	t.Helper()
	s, err := NewFilesystemStore(filepath.Join(t.TempDir(), "tiles"))
	if err != nil {
		t.Fatalf("Failed to create filesystem store: %v", err)
	}
	return s
}

func setupS3Store(t *testing.T) *S3Store {
	t.Helper()
	s, err := NewS3Store(newMockS3(), "bucket", "{prefix}/{z}/{x}/{y}", "tiles")
	if err != nil {
		t.Fatalf("Failed to create S3 store: %v", err)
	}
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"map":        NewMapStore(),
		"sqlite":     setupSQLiteStore(t),
		"filesystem": setupFilesystemStore(t),
		"s3":         setupS3Store(t),
		"dynamodb":   NewDynamoDBStore(newMockDynamo(), "tiles"),
	}
}

func sortedKeys(t *testing.T, s Store) []string {
	t.Helper()
	keys, err := s.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Key())
	}
	sort.Strings(out)
	return out
}

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := newTile(16, 15, 5, "png-bytes")
			if err := s.Put(ctx, want); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			got, ok, err := s.Get(ctx, want.Coordinate)
			if err != nil || !ok {
				t.Fatalf("Get = %v, %v; want hit", ok, err)
			}
			if !bytes.Equal(got.Data, want.Data) {
				t.Fatalf("data mismatch: %q", got.Data)
			}
			if !got.StoredAt.Equal(want.StoredAt) {
				t.Fatalf("stored at mismatch: %v", got.StoredAt)
			}
			if got.SourceURL != want.SourceURL || got.Coordinate != want.Coordinate {
				t.Fatalf("unexpected tile %+v", got)
			}
		})
	}
}

func TestStoreMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, tilemath.TileCoordinate{X: 1, Y: 1, Z: 3})
			if ok || err != nil {
				t.Fatalf("Get on empty store = %v, %v; want miss without error", ok, err)
			}
		})
	}
}

func TestStorePutIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first := newTile(3, 4, 4, "first")
			second := newTile(3, 4, 4, "second")
			second.StoredAt = storedAt.Add(time.Hour)

			for _, tile := range []CachedTile{first, first, second} {
				if err := s.Put(ctx, tile); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			if keys := sortedKeys(t, s); len(keys) != 1 || keys[0] != "4/3/4" {
				t.Fatalf("expected a single key 4/3/4, got %v", keys)
			}

			got, _, _ := s.Get(ctx, first.Coordinate)
			if string(got.Data) != "second" || !got.StoredAt.Equal(second.StoredAt) {
				t.Fatalf("last write did not win: %+v", got)
			}
		})
	}
}

func TestStoreDeleteClearKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, tile := range []CachedTile{
				newTile(0, 0, 0, "a"),
				newTile(1, 0, 1, "b"),
				newTile(16, 15, 5, "c"),
			} {
				if err := s.Put(ctx, tile); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			want := []string{"0/0/0", "1/1/0", "5/16/15"}
			got := sortedKeys(t, s)
			if len(got) != len(want) {
				t.Fatalf("expected keys %v, got %v", want, got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("expected keys %v, got %v", want, got)
				}
			}

			if err := s.Delete(ctx, tilemath.TileCoordinate{X: 1, Y: 0, Z: 1}); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := s.Delete(ctx, tilemath.TileCoordinate{X: 1, Y: 1, Z: 1}); err != nil {
				t.Fatalf("Delete of a missing key failed: %v", err)
			}
			if got := sortedKeys(t, s); len(got) != 2 {
				t.Fatalf("expected 2 keys after delete, got %v", got)
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if got := sortedKeys(t, s); len(got) != 0 {
				t.Fatalf("expected empty store after clear, got %v", got)
			}
		})
	}
}

func TestStoreRejectsInvalidTiles(t *testing.T) {
	ctx := context.Background()
	bad := []CachedTile{
		newTile(4, 0, 1, "outside pyramid"),
		newTile(0, 0, 0, ""),
		{Coordinate: tilemath.TileCoordinate{}, Data: []byte("no timestamp")},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, tile := range bad {
				if err := s.Put(ctx, tile); !errors.Is(err, ErrInvalidTile) {
					t.Fatalf("expected ErrInvalidTile for %+v, got %v", tile, err)
				}
			}
		})
	}
}

func TestFilesystemCorruptRecord(t *testing.T) {
	ctx := context.Background()
	s := setupFilesystemStore(t)
	c := tilemath.TileCoordinate{X: 2, Y: 1, Z: 2}

	path := s.pathFor(c)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not msgpack at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.Get(ctx, c); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}

	safe := NewSafe(s, logger.NewNoOp())
	if _, ok, err := safe.Get(ctx, c); ok || err != nil {
		t.Fatalf("Safe.Get = %v, %v; want silent miss", ok, err)
	}
}

func TestFilesystemKeysIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	s := setupFilesystemStore(t)

	if err := s.Put(ctx, newTile(1, 1, 1, "x")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "README"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	if keys := sortedKeys(t, s); len(keys) != 1 || keys[0] != "1/1/1" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestSQLiteRecordWithoutDataIsCorrupt(t *testing.T) {
	ctx := context.Background()
	s := setupSQLiteStore(t)

	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO tiles (z, x, y, tile_data, source_url, stored_at) VALUES (1, 0, 0, x'', '', 0)`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if _, _, err := s.Get(ctx, tilemath.TileCoordinate{X: 0, Y: 0, Z: 1}); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestS3ObjectKeyPattern(t *testing.T) {
	s, err := NewS3Store(newMockS3(), "bucket", "/{prefix}/tiles/{z}/{x}/{y}.png", "area-1")
	if err != nil {
		t.Fatal(err)
	}

	c := tilemath.TileCoordinate{X: 511, Y: 340, Z: 10}
	key, err := s.objectKey(c)
	if err != nil {
		t.Fatalf("Unable to calculate key for tile: %v", err)
	}
	if key != "/area-1/tiles/10/511/340.png" {
		t.Fatalf("Unexpected key calculation, got %#v", key)
	}
	if s.listPrefix != "/area-1/tiles/" {
		t.Fatalf("unexpected list prefix %q", s.listPrefix)
	}
	if back, ok := s.coordinateOf(key); !ok || back != c {
		t.Fatalf("coordinateOf(%q) = %v, %v", key, back, ok)
	}
	if _, ok := s.coordinateOf("/area-1/tiles/10/511/340.jpg"); ok {
		t.Fatalf("foreign key parsed as a tile")
	}

	if _, err := NewS3Store(newMockS3(), "bucket", "{prefix}/{z}/{x}", "p"); err == nil {
		t.Fatalf("expected an error for a pattern without {y}")
	}
}

func TestS3MissingTimestampIsCorrupt(t *testing.T) {
	ctx := context.Background()
	api := newMockS3()
	s, err := NewS3Store(api, "bucket", "{prefix}/{z}/{x}/{y}", "tiles")
	if err != nil {
		t.Fatal(err)
	}
	api.objects["tiles/0/0/0"] = mockObject{body: []byte("img")}

	if _, _, err := s.Get(ctx, tilemath.TileCoordinate{}); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

type failingStore struct {
	Store
}

func (failingStore) Get(context.Context, tilemath.TileCoordinate) (CachedTile, bool, error) {
	return CachedTile{}, false, errors.New("disk on fire")
}

func TestSafeSwallowsReadErrors(t *testing.T) {
	safe := NewSafe(failingStore{Store: NewMapStore()}, logger.NewNoOp())

	_, ok, err := safe.Get(context.Background(), tilemath.TileCoordinate{})
	if ok || err != nil {
		t.Fatalf("Safe.Get = %v, %v; want silent miss", ok, err)
	}
}

func TestCachedTileExpired(t *testing.T) {
	tile := newTile(0, 0, 0, "x")
	maxAge := time.Hour

	if tile.Expired(storedAt.Add(maxAge), maxAge) {
		t.Fatalf("tile exactly maxAge old must be fresh")
	}
	if !tile.Expired(storedAt.Add(maxAge+time.Millisecond), maxAge) {
		t.Fatalf("tile older than maxAge must be expired")
	}
}
