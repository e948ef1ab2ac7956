package tilestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

const tileExt = ".tile"

// FilesystemStore keeps one msgpack record per tile under {dir}/{z}/{x}/{y}.tile.
type FilesystemStore struct {
	dir string
}

func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tile dir: %w", err)
	}
	return &FilesystemStore{dir: dir}, nil
}

var _ Store = (*FilesystemStore)(nil)

func (s *FilesystemStore) pathFor(c tilemath.TileCoordinate) string {
	return filepath.Join(s.dir, strconv.Itoa(c.Z), strconv.Itoa(c.X), strconv.Itoa(c.Y)+tileExt)
}

func (s *FilesystemStore) Get(ctx context.Context, c tilemath.TileCoordinate) (CachedTile, bool, error) {
	content, err := os.ReadFile(s.pathFor(c))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CachedTile{}, false, nil
		}
		return CachedTile{}, false, err
	}

	tile, err := decodeRecord(c, content)
	if err != nil {
		return CachedTile{}, false, err
	}

	return tile, true, nil
}

func (s *FilesystemStore) Put(ctx context.Context, t CachedTile) error {
	if err := checkTile(t); err != nil {
		return err
	}

	b, err := encodeRecord(t)
	if err != nil {
		return err
	}

	path := s.pathFor(t.Coordinate)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func (s *FilesystemStore) Delete(ctx context.Context, c tilemath.TileCoordinate) error {
	err := os.Remove(s.pathFor(c))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FilesystemStore) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *FilesystemStore) Keys(ctx context.Context) ([]tilemath.TileCoordinate, error) {
	var keys []tilemath.TileCoordinate

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), tileExt) {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}

		c, err := tilemath.ParseKey(strings.TrimSuffix(filepath.ToSlash(rel), tileExt))
		if err != nil {
			// not one of ours
			return nil
		}
		keys = append(keys, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}
