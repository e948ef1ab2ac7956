package tilestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "tile:"
	redisScanCount = 500
)

// RedisStore keeps msgpack records under "tile:{z}/{x}/{y}". Keys never
// expire; expiry is decided by the maintenance sweep.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) keyFor(c tilemath.TileCoordinate) string {
	return redisKeyPrefix + c.Key()
}

func (s *RedisStore) Get(ctx context.Context, c tilemath.TileCoordinate) (CachedTile, bool, error) {
	data, err := s.client.Get(ctx, s.keyFor(c)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return CachedTile{}, false, nil
		}
		return CachedTile{}, false, fmt.Errorf("redis get error: %w", err)
	}

	tile, err := decodeRecord(c, data)
	if err != nil {
		return CachedTile{}, false, err
	}

	return tile, true, nil
}

func (s *RedisStore) Put(ctx context.Context, t CachedTile) error {
	if err := checkTile(t); err != nil {
		return err
	}

	b, err := encodeRecord(t)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.keyFor(t.Coordinate), b, 0).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, c tilemath.TileCoordinate) error {
	return s.client.Del(ctx, s.keyFor(c)).Err()
}

func (s *RedisStore) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", redisScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan error: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.scan(ctx, func(keys []string) error {
		return s.client.Del(ctx, keys...).Err()
	})
}

func (s *RedisStore) Keys(ctx context.Context) ([]tilemath.TileCoordinate, error) {
	seen := make(map[tilemath.TileCoordinate]struct{})
	var out []tilemath.TileCoordinate

	// SCAN may return a key more than once.
	err := s.scan(ctx, func(keys []string) error {
		for _, k := range keys {
			c, err := tilemath.ParseKey(strings.TrimPrefix(k, redisKeyPrefix))
			if err != nil {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
