package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Store     Store     `envPrefix:"STORE_"`
		Meta      Meta      `envPrefix:"META_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Upstream  Upstream  `envPrefix:"UPSTREAM_"`
		Download  Download  `envPrefix:"DOWNLOAD_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Supply    Supply    `envPrefix:"SUPPLY_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port           string        `env:"PORT,required"`
		ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
		IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
		AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	}

	Logger struct {
		Level  string `env:"LEVEL,required"`
		Format string `env:"FORMAT" envDefault:"console"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-offline"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	// Store selects the durable tile backend.
	Store struct {
		Backend       string `env:"BACKEND" envDefault:"sqlite"`
		SQLitePath    string `env:"SQLITE_PATH" envDefault:"offline_tiles.db"`
		Dir           string `env:"DIR" envDefault:"offline_tiles"`
		S3Bucket      string `env:"S3_BUCKET"`
		S3Prefix      string `env:"S3_PREFIX" envDefault:"tiles"`
		S3KeyPattern  string `env:"S3_KEY_PATTERN" envDefault:"{prefix}/{z}/{x}/{y}"`
		AWSRegion     string `env:"AWS_REGION"`
		DynamoDBTable string `env:"DYNAMODB_TABLE" envDefault:"offline_tiles"`
	}

	// Meta selects where the statistics snapshot lives.
	Meta struct {
		Backend      string `env:"BACKEND" envDefault:"sqlite"`
		MemcacheAddr string `env:"MEMCACHE_ADDR" envDefault:"localhost:11211"`
		FilePath     string `env:"FILE_PATH" envDefault:"offline_tiles_meta.json"`
	}

	Redis struct {
		Addr     string `env:"ADDR" envDefault:"localhost:6379"`
		Password string `env:"PASSWORD" envDefault:""`
		DB       int    `env:"DB" envDefault:"0"`
	}

	Upstream struct {
		TileURLTemplate string        `env:"TILE_URL_TEMPLATE" envDefault:"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"`
		UserAgent       string        `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
		Referer         string        `env:"REFERER" envDefault:""`
		Timeout         time.Duration `env:"TIMEOUT" envDefault:"30s"`
		BufferPoolSize  int           `env:"BUFFER_POOL_SIZE" envDefault:"16"`
		BufferSize      int           `env:"BUFFER_SIZE" envDefault:"65536"`
	}

	Download struct {
		Delay   time.Duration `env:"DELAY" envDefault:"50ms"`
		MinZoom int           `env:"MIN_ZOOM" envDefault:"1"`
		MaxZoom int           `env:"MAX_ZOOM" envDefault:"18"`
	}

	Cache struct {
		MaxAge time.Duration `env:"MAX_AGE" envDefault:"168h"`
	}

	Supply struct {
		OfflineFirst    bool `env:"OFFLINE_FIRST" envDefault:"true"`
		CacheOnFallback bool `env:"CACHE_ON_FALLBACK" envDefault:"false"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

const redacted = "[redacted]"

// Redacted returns a copy safe to log: secrets are masked when set.
func (c Config) Redacted() Config {
	if c.Redis.Password != "" {
		c.Redis.Password = redacted
	}
	return c
}
