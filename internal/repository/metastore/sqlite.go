package metastore

import (
	"context"
	"database/sql"
	"errors"
)

// SQLiteStore writes into the metadata table created by the tile store
// migrations.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	payload, err := encode(snap)
	if err != nil {
		return err
	}

	query := `INSERT INTO metadata (name, payload, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query, SnapshotName, payload, snap.UpdatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM metadata WHERE name = ?`, SnapshotName).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}

	snap, err := decode(payload)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE name = ?`, SnapshotName)
	return err
}
