package app

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/metastore"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/tilestore"
	"github.com/jaennil/guide_helper/backend/offline/pkg/config"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Storage is the tile store and snapshot store selected by configuration.
type Storage struct {
	Tiles tilestore.Store
	Meta  metastore.Store

	closers []func() error
}

func (s *Storage) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

type storageBuilder struct {
	cfg    config.Config
	logger logger.Logger

	storage *Storage
	sqlite  *tilestore.SQLiteStore
	redis   redis.UniversalClient
	aws     *session.Session
}

// OpenStorage builds the backends named in cfg.Store and cfg.Meta. Read
// errors of the tile store surface as misses.
func OpenStorage(cfg config.Config, l logger.Logger) (*Storage, error) {
	b := &storageBuilder{cfg: cfg, logger: l, storage: &Storage{}}

	tiles, err := b.tileStore()
	if err != nil {
		b.storage.Close()
		return nil, err
	}

	meta, err := b.metaStore()
	if err != nil {
		b.storage.Close()
		return nil, err
	}

	b.storage.Tiles = tilestore.NewSafe(tiles, l)
	b.storage.Meta = meta

	l.Info("storage opened", "tiles", cfg.Store.Backend, "meta", cfg.Meta.Backend)
	return b.storage, nil
}

func (b *storageBuilder) tileStore() (tilestore.Store, error) {
	sc := b.cfg.Store

	switch sc.Backend {
	case "sqlite":
		return b.sqliteStore()
	case "filesystem":
		return tilestore.NewFilesystemStore(sc.Dir)
	case "redis":
		return tilestore.NewRedisStore(b.redisClient()), nil
	case "memory":
		return tilestore.NewMapStore(), nil
	case "s3":
		if sc.S3Bucket == "" {
			return nil, errors.New("s3 tile store requires STORE_S3_BUCKET")
		}
		sess, err := b.awsSession()
		if err != nil {
			return nil, err
		}
		return tilestore.NewS3Store(s3.New(sess), sc.S3Bucket, sc.S3KeyPattern, sc.S3Prefix)
	case "dynamodb":
		sess, err := b.awsSession()
		if err != nil {
			return nil, err
		}
		return tilestore.NewDynamoDBStore(dynamodb.New(sess), sc.DynamoDBTable), nil
	default:
		return nil, fmt.Errorf("unknown tile store backend %q", sc.Backend)
	}
}

func (b *storageBuilder) metaStore() (metastore.Store, error) {
	mc := b.cfg.Meta

	switch mc.Backend {
	case "sqlite":
		s, err := b.sqliteStore()
		if err != nil {
			return nil, err
		}
		return metastore.NewSQLiteStore(s.DB()), nil
	case "redis":
		return metastore.NewRedisStore(b.redisClient()), nil
	case "memcache":
		return metastore.NewMemcacheStore(memcache.New(mc.MemcacheAddr)), nil
	case "file":
		return metastore.NewFileStore(mc.FilePath), nil
	case "memory":
		return metastore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown metadata store backend %q", mc.Backend)
	}
}

// sqliteStore opens the database once; tiles and metadata share it.
func (b *storageBuilder) sqliteStore() (*tilestore.SQLiteStore, error) {
	if b.sqlite != nil {
		return b.sqlite, nil
	}

	s, err := tilestore.NewSQLiteStore(b.cfg.Store.SQLitePath, b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	b.sqlite = s
	b.storage.closers = append(b.storage.closers, s.Close)
	return s, nil
}

func (b *storageBuilder) redisClient() redis.UniversalClient {
	if b.redis != nil {
		return b.redis
	}

	rc := b.cfg.Redis
	b.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{rc.Addr},
		Password: rc.Password,
		DB:       rc.DB,
	})
	b.storage.closers = append(b.storage.closers, b.redis.Close)
	return b.redis
}

func (b *storageBuilder) awsSession() (*session.Session, error) {
	if b.aws != nil {
		return b.aws, nil
	}

	var (
		sess *session.Session
		err  error
	)
	if region := b.cfg.Store.AWSRegion; region != "" {
		sess, err = session.NewSessionWithOptions(session.Options{
			Config: aws.Config{Region: aws.String(region)},
		})
	} else {
		sess, err = session.NewSession()
	}
	if err != nil {
		return nil, fmt.Errorf("unable to set up aws session: %w", err)
	}

	b.aws = sess
	return sess, nil
}
