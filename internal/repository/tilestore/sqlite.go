package tilestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteStore(path string, l logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		logger: l,
	}

	err = s.runMigrations()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite migrations: %w", err)
	}

	l.Info("sqlite tile store initialized", "path", path)

	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	return goose.Up(s.db, "migrations")
}

// DB exposes the handle so the snapshot store can share the same file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Get(ctx context.Context, c tilemath.TileCoordinate) (CachedTile, bool, error) {
	s.logger.Debug("sqlite store get", "tile", c.Key())

	query := `SELECT tile_data, stored_at, source_url
	FROM tiles
	WHERE z = ? AND x = ? AND y = ?`

	var r record
	err := s.db.QueryRowContext(ctx, query, c.Z, c.X, c.Y).Scan(&r.Data, &r.StoredAt, &r.SourceURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CachedTile{}, false, nil
		}
		s.logger.Error("sqlite store get failed", "tile", c.Key(), "error", err)
		return CachedTile{}, false, err
	}

	tile, err := r.tile(c)
	if err != nil {
		return CachedTile{}, false, err
	}

	return tile, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, t CachedTile) error {
	if err := checkTile(t); err != nil {
		return err
	}

	s.logger.Debug("sqlite store put", "tile", t.Coordinate.Key())

	query := `INSERT INTO tiles (z, x, y, tile_data, source_url, stored_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(z, x, y) DO UPDATE SET
		tile_data = excluded.tile_data,
		source_url = excluded.source_url,
		stored_at = excluded.stored_at`

	r := newRecord(t)
	_, err := s.db.ExecContext(ctx, query, t.Coordinate.Z, t.Coordinate.X, t.Coordinate.Y, r.Data, r.SourceURL, r.StoredAt)
	if err != nil {
		s.logger.Error("sqlite store put failed", "tile", t.Coordinate.Key(), "error", err)
		return err
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, c tilemath.TileCoordinate) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tiles WHERE z = ? AND x = ? AND y = ?`, c.Z, c.X, c.Y)
	return err
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tiles`)
	return err
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]tilemath.TileCoordinate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT z, x, y FROM tiles ORDER BY z, x, y`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []tilemath.TileCoordinate
	for rows.Next() {
		var c tilemath.TileCoordinate
		if err := rows.Scan(&c.Z, &c.X, &c.Y); err != nil {
			return nil, err
		}
		keys = append(keys, c)
	}

	return keys, rows.Err()
}
