package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "github.com/jaennil/guide_helper/backend/offline/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/offline/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/upstream"
	"github.com/jaennil/guide_helper/backend/offline/internal/usecase"
	"github.com/jaennil/guide_helper/backend/offline/pkg/buffer"
	"github.com/jaennil/guide_helper/backend/offline/pkg/config"
	"github.com/jaennil/guide_helper/backend/offline/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/telemetry"
)

// UseCases is everything the HTTP API and the CLI operate on.
type UseCases struct {
	Supply      *usecase.SupplyUseCase
	Download    *usecase.DownloadUseCase
	Maintenance *usecase.MaintenanceUseCase
	MapFile     *usecase.MapFileUseCase
}

func NewUseCases(cfg *config.Config, storage *Storage, l logger.Logger) *UseCases {
	fetcher := upstream.NewHTTPFetcher(upstream.Config{
		URLTemplate: cfg.Upstream.TileURLTemplate,
		UserAgent:   cfg.Upstream.UserAgent,
		Referer:     cfg.Upstream.Referer,
		Timeout:     cfg.Upstream.Timeout,
	}, buffer.New(cfg.Upstream.BufferPoolSize, cfg.Upstream.BufferSize), l)

	maintenance := usecase.NewMaintenanceUseCase(storage.Tiles, storage.Meta, cfg.Cache.MaxAge, time.Now, l)

	return &UseCases{
		Supply: usecase.NewSupplyUseCase(storage.Tiles, fetcher, usecase.SupplyConfig{
			OfflineFirst:    cfg.Supply.OfflineFirst,
			CacheOnFallback: cfg.Supply.CacheOnFallback,
		}, time.Now, l),
		Download: usecase.NewDownloadUseCase(storage.Tiles, fetcher, maintenance, usecase.DownloadConfig{
			Delay:  cfg.Download.Delay,
			MaxAge: cfg.Cache.MaxAge,
		}, time.Now, l),
		Maintenance: maintenance,
		MapFile:     usecase.NewMapFileUseCase(storage.Tiles, maintenance, time.Now, l),
	}
}

func Run(cfg *config.Config) {
	zl, err := logger.NewZapLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()
	var l logger.Logger = zl

	l.Info("starting offline service", "config", cfg.Redacted())

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
	}

	storage, err := OpenStorage(*cfg, l)
	if err != nil {
		l.Fatal("failed to open storage", "error", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			l.Error("failed to close storage", "error", err)
		}
	}()

	uc := NewUseCases(cfg, storage, l)

	h := handler.NewHandler(
		handler.NewValidator(),
		handler.ZoomRange{Min: cfg.Download.MinZoom, Max: cfg.Download.MaxZoom},
		uc.Supply,
		uc.Download,
		uc.Maintenance,
		uc.MapFile,
	)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	ctx := logger.WithLogger(context.Background(), l)
	httpServer := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("received shutdown signal")

	if uc.Download.Cancel() {
		l.Info("active download canceled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http server shutdown completed")
	}

	l.Info("application shutdown completed")
}
