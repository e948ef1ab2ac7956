// Package cli implements tilectl, the operator tool for the offline tile cache.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/internal/app"
	"github.com/jaennil/guide_helper/backend/offline/pkg/config"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "TILECTL"

type options struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	o := &options{v: viper.New()}

	root := &cobra.Command{
		Use:   "tilectl",
		Short: "Manage the offline map tile cache",
		Long: `tilectl downloads areas into the offline tile cache, moves them between
installations as map files and keeps the cache tidy.

Every flag can also be set as TILECTL_<FLAG> with dashes turned into
underscores, or in a config file passed with --config.

Examples:
  tilectl download --bbox "30.2,59.8,30.5,60.0" --min-zoom 10 --max-zoom 14
  tilectl export --bbox "30.2,59.8,30.5,60.0" --min-zoom 10 --max-zoom 14 -o spb.json
  tilectl import spb.json
  tilectl clear-expired --max-age 72h`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.initConfig()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", logger.FormatConsole, "log encoding (console, json)")

	pf.String("store-backend", "sqlite", "tile store backend (sqlite, filesystem, redis, s3, dynamodb, memory)")
	pf.String("sqlite-path", "offline_tiles.db", "sqlite database file")
	pf.String("store-dir", "offline_tiles", "filesystem store directory")
	pf.String("s3-bucket", "", "s3 bucket of the tile store")
	pf.String("s3-prefix", "tiles", "s3 key prefix")
	pf.String("s3-key-pattern", "{prefix}/{z}/{x}/{y}", "s3 key pattern")
	pf.String("aws-region", "", "aws region")
	pf.String("dynamodb-table", "offline_tiles", "dynamodb table of the tile store")

	pf.String("meta-backend", "sqlite", "statistics snapshot backend (sqlite, redis, memcache, file, memory)")
	pf.String("memcache-addr", "localhost:11211", "memcache address")
	pf.String("meta-file", "offline_tiles_meta.json", "statistics snapshot file")

	pf.String("redis-addr", "localhost:6379", "redis address")
	pf.String("redis-password", "", "redis password")
	pf.Int("redis-db", 0, "redis database")

	pf.String("tile-url", "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}", "tile URL template")
	pf.String("user-agent", "GuideHelper/1.0 (https://github.com/jaennil/guide_helper)", "user agent sent upstream")
	pf.Duration("timeout", 30*time.Second, "upstream request timeout")
	pf.Duration("delay", 50*time.Millisecond, "pause after every network request")
	pf.Duration("max-age", 7*24*time.Hour, "age after which a cached tile is expired")

	_ = o.v.BindPFlags(pf)

	root.AddCommand(
		o.downloadCommand(),
		o.exportCommand(),
		o.importCommand(),
		o.statsCommand(),
		o.clearCommand(),
		o.clearExpiredCommand(),
		o.availableCommand(),
	)

	return root
}

// Execute runs tilectl and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *options) initConfig() error {
	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()

	if o.cfgFile == "" {
		return nil
	}

	o.v.SetConfigFile(o.cfgFile)
	if err := o.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func (o *options) config() config.Config {
	v := o.v

	var cfg config.Config
	cfg.Logger.Level = v.GetString("log-level")
	cfg.Logger.Format = v.GetString("log-format")
	cfg.Store = config.Store{
		Backend:       v.GetString("store-backend"),
		SQLitePath:    v.GetString("sqlite-path"),
		Dir:           v.GetString("store-dir"),
		S3Bucket:      v.GetString("s3-bucket"),
		S3Prefix:      v.GetString("s3-prefix"),
		S3KeyPattern:  v.GetString("s3-key-pattern"),
		AWSRegion:     v.GetString("aws-region"),
		DynamoDBTable: v.GetString("dynamodb-table"),
	}
	cfg.Meta = config.Meta{
		Backend:      v.GetString("meta-backend"),
		MemcacheAddr: v.GetString("memcache-addr"),
		FilePath:     v.GetString("meta-file"),
	}
	cfg.Redis = config.Redis{
		Addr:     v.GetString("redis-addr"),
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
	}
	cfg.Upstream = config.Upstream{
		TileURLTemplate: v.GetString("tile-url"),
		UserAgent:       v.GetString("user-agent"),
		Timeout:         v.GetDuration("timeout"),
	}
	cfg.Download.Delay = v.GetDuration("delay")
	cfg.Cache.MaxAge = v.GetDuration("max-age")

	return cfg
}

// session is one opened cache for the lifetime of a command.
type session struct {
	*app.UseCases
	storage *app.Storage
}

func (o *options) open() (*session, error) {
	cfg := o.config()
	l, err := logger.NewZapLogger(cfg.Logger)
	if err != nil {
		return nil, err
	}

	storage, err := app.OpenStorage(cfg, l)
	if err != nil {
		return nil, err
	}

	return &session{UseCases: app.NewUseCases(&cfg, storage, l), storage: storage}, nil
}

func (s *session) Close() error {
	return s.storage.Close()
}
