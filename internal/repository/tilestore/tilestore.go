package tilestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrCorruptRecord marks a stored value that does not match the record schema.
var ErrCorruptRecord = errors.New("corrupt tile record")

// ErrInvalidTile is returned by Put for tiles that must never be stored.
var ErrInvalidTile = errors.New("invalid tile")

type CachedTile struct {
	Coordinate tilemath.TileCoordinate
	SourceURL  string
	Data       []byte
	StoredAt   time.Time
}

// Size is the byte length of the image payload.
func (t CachedTile) Size() int {
	return len(t.Data)
}

// Expired reports whether the tile is older than maxAge at now. A tile exactly
// maxAge old is still fresh.
func (t CachedTile) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(t.StoredAt) > maxAge
}

// Store is a durable map from "{z}/{x}/{y}" to a tile. Put upserts, so there is
// at most one tile per coordinate and the last write wins. Get reports a
// missing key as (zero, false, nil).
type Store interface {
	Put(ctx context.Context, tile CachedTile) error
	Get(ctx context.Context, c tilemath.TileCoordinate) (CachedTile, bool, error)
	Delete(ctx context.Context, c tilemath.TileCoordinate) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]tilemath.TileCoordinate, error)
}

// record is the persisted shape of a tile value. Every backend validates it on
// read.
type record struct {
	Data      []byte `msgpack:"data" validate:"required,min=1"`
	StoredAt  int64  `msgpack:"stored_at" validate:"gt=0"`
	SourceURL string `msgpack:"source_url"`
}

var validate = validator.New()

func newRecord(t CachedTile) record {
	return record{
		Data:      t.Data,
		StoredAt:  t.StoredAt.UnixMilli(),
		SourceURL: t.SourceURL,
	}
}

func (r record) tile(c tilemath.TileCoordinate) (CachedTile, error) {
	if err := validate.Struct(r); err != nil {
		return CachedTile{}, fmt.Errorf("%w %s: %v", ErrCorruptRecord, c, err)
	}

	return CachedTile{
		Coordinate: c,
		SourceURL:  r.SourceURL,
		Data:       r.Data,
		StoredAt:   time.UnixMilli(r.StoredAt),
	}, nil
}

func encodeRecord(t CachedTile) ([]byte, error) {
	return msgpack.Marshal(newRecord(t))
}

func decodeRecord(c tilemath.TileCoordinate, b []byte) (CachedTile, error) {
	var r record
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return CachedTile{}, fmt.Errorf("%w %s: %v", ErrCorruptRecord, c, err)
	}
	return r.tile(c)
}

func checkTile(t CachedTile) error {
	if !t.Coordinate.Valid() {
		return fmt.Errorf("%w: coordinate %s outside the tile pyramid", ErrInvalidTile, t.Coordinate)
	}
	if len(t.Data) == 0 {
		return fmt.Errorf("%w: empty image data for %s", ErrInvalidTile, t.Coordinate)
	}
	if t.StoredAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp for %s", ErrInvalidTile, t.Coordinate)
	}
	return nil
}
