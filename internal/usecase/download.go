package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/tilestore"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/upstream"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/offline/pkg/telemetry"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"go.opentelemetry.io/otel/attribute"
)

var ErrBusy = errors.New("a download is already in progress")

// ProgressFunc is called after every processed tile, whether it was a hit,
// a fetch or a failure.
type ProgressFunc func(percent float64, completed, total int)

type DownloadReport struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Hits      int    `json:"hits"`
	Fetched   int    `json:"fetched"`
	Failed    int    `json:"failed"`
	Canceled  bool   `json:"canceled"`
}

type DownloadProgress struct {
	SessionID string          `json:"session_id,omitempty"`
	Active    bool            `json:"active"`
	Percent   float64         `json:"percent"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Last      *DownloadReport `json:"last,omitempty"`
}

type DownloadConfig struct {
	// Delay is the pause after each network request.
	Delay  time.Duration
	MaxAge time.Duration
}

type session struct {
	report DownloadReport
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger
}

func (s *session) percent() float64 {
	if s.report.Total == 0 {
		return 100
	}
	return float64(s.report.Completed) / float64(s.report.Total) * 100
}

type DownloadUseCase struct {
	store       tilestore.Store
	fetcher     upstream.Fetcher
	maintenance *MaintenanceUseCase
	cfg         DownloadConfig
	now         Clock
	logger      logger.Logger

	mu      sync.Mutex
	current *session
	last    *DownloadReport
}

func NewDownloadUseCase(store tilestore.Store, fetcher upstream.Fetcher, maintenance *MaintenanceUseCase, cfg DownloadConfig, now Clock, l logger.Logger) *DownloadUseCase {
	if now == nil {
		now = time.Now
	}

	return &DownloadUseCase{
		store:       store,
		fetcher:     fetcher,
		maintenance: maintenance,
		cfg:         cfg,
		now:         now,
		logger:      l,
	}
}

// DownloadArea caches every tile covering bounds in [minZoom, maxZoom] and
// blocks until the area is done or the session is canceled. Only one session
// runs at a time; a second caller gets ErrBusy.
func (uc *DownloadUseCase) DownloadArea(ctx context.Context, bounds tilemath.GeoBounds, minZoom, maxZoom int, onProgress ProgressFunc) (DownloadReport, error) {
	tiles, err := uc.plan(bounds, minZoom, maxZoom)
	if err != nil {
		return DownloadReport{}, err
	}

	s, err := uc.begin(ctx, len(tiles))
	if err != nil {
		return DownloadReport{}, err
	}

	return uc.run(ctx, s, tiles, onProgress), nil
}

// StartDownload is DownloadArea in the background. It returns the session id
// once the session is registered.
func (uc *DownloadUseCase) StartDownload(ctx context.Context, bounds tilemath.GeoBounds, minZoom, maxZoom int, onProgress ProgressFunc) (string, error) {
	tiles, err := uc.plan(bounds, minZoom, maxZoom)
	if err != nil {
		return "", err
	}

	// The session outlives the request that started it.
	ctx = context.WithoutCancel(ctx)

	s, err := uc.begin(ctx, len(tiles))
	if err != nil {
		return "", err
	}

	go uc.run(ctx, s, tiles, onProgress)

	return s.report.SessionID, nil
}

func (uc *DownloadUseCase) plan(bounds tilemath.GeoBounds, minZoom, maxZoom int) ([]tilemath.TileCoordinate, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if err := tilemath.ValidateZoomRange(minZoom, maxZoom); err != nil {
		return nil, err
	}
	return tilemath.TilesForBounds(bounds, minZoom, maxZoom), nil
}

func (uc *DownloadUseCase) begin(ctx context.Context, total int) (*session, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.current != nil {
		return nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	s := &session{
		report: DownloadReport{
			SessionID: id,
			Total:     total,
		},
		ctx:    runCtx,
		cancel: cancel,
		logger: uc.logger.With("session", id),
	}
	uc.current = s

	metrics.DownloadsActive.Set(1)
	metrics.DownloadProgress.Set(0)

	return s, nil
}

func (uc *DownloadUseCase) run(ctx context.Context, s *session, tiles []tilemath.TileCoordinate, onProgress ProgressFunc) DownloadReport {
	ctx, span := telemetry.Tracer().Start(ctx, "download.area")
	defer span.End()

	l := s.logger
	l.Info("area download started", "tiles", len(tiles))

	for i, c := range tiles {
		if s.ctx.Err() != nil {
			break
		}

		requested := uc.processTile(s, c)

		uc.mu.Lock()
		s.report.Completed++
		percent, completed, total := s.percent(), s.report.Completed, s.report.Total
		uc.mu.Unlock()

		metrics.DownloadProgress.Set(percent)
		if onProgress != nil {
			onProgress(percent, completed, total)
		}

		if requested && i < len(tiles)-1 && uc.cfg.Delay > 0 {
			select {
			case <-s.ctx.Done():
			case <-time.After(uc.cfg.Delay):
			}
		}
	}

	// Statistics are persisted before the session is released.
	if uc.maintenance != nil {
		uc.maintenance.refreshQuietly(ctx)
	}

	uc.mu.Lock()
	s.report.Canceled = s.report.Completed < s.report.Total
	report := s.report
	uc.last = &report
	uc.current = nil
	uc.mu.Unlock()

	s.cancel()
	metrics.DownloadsActive.Set(0)

	span.SetAttributes(
		attribute.String("session", report.SessionID),
		attribute.Int("total", report.Total),
		attribute.Int("fetched", report.Fetched),
		attribute.Int("failed", report.Failed),
		attribute.Bool("canceled", report.Canceled),
	)
	l.Info("area download finished",
		"completed", report.Completed,
		"total", report.Total,
		"hits", report.Hits,
		"fetched", report.Fetched,
		"failed", report.Failed,
		"canceled", report.Canceled,
	)

	return report
}

// processTile reports whether a network request was issued.
func (uc *DownloadUseCase) processTile(s *session, c tilemath.TileCoordinate) bool {
	tile, ok, _ := uc.store.Get(s.ctx, c)
	if ok && !tile.Expired(uc.now(), uc.cfg.MaxAge) {
		metrics.CacheHits.Inc()
		uc.count(s, func(r *DownloadReport) { r.Hits++ })
		return false
	}
	metrics.CacheMisses.Inc()

	res, err := uc.fetcher.Fetch(s.ctx, c)
	if err != nil {
		s.logger.Warn("tile skipped", "tile", c.Key(), "error", err)
		uc.count(s, func(r *DownloadReport) { r.Failed++ })
		return true
	}

	err = uc.store.Put(s.ctx, tilestore.CachedTile{
		Coordinate: c,
		SourceURL:  res.URL,
		Data:       res.Data,
		StoredAt:   uc.now(),
	})
	if err != nil {
		s.logger.Error("failed to store tile", "tile", c.Key(), "error", err)
		uc.count(s, func(r *DownloadReport) { r.Failed++ })
		return true
	}

	uc.count(s, func(r *DownloadReport) { r.Fetched++ })
	return true
}

func (uc *DownloadUseCase) count(s *session, fn func(r *DownloadReport)) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	fn(&s.report)
}

// Cancel stops the running session after the tile in flight. The in-flight
// request itself is aborted through its context. Reports false when idle.
func (uc *DownloadUseCase) Cancel() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.current == nil {
		return false
	}

	uc.current.logger.Info("area download cancel requested")
	uc.current.cancel()
	return true
}

func (uc *DownloadUseCase) Progress() DownloadProgress {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	p := DownloadProgress{Last: uc.last}
	if s := uc.current; s != nil {
		p.SessionID = s.report.SessionID
		p.Active = true
		p.Percent = s.percent()
		p.Completed = s.report.Completed
		p.Total = s.report.Total
	}
	return p
}

func (r DownloadReport) String() string {
	return fmt.Sprintf("%d/%d tiles (%d cached, %d fetched, %d failed)", r.Completed, r.Total, r.Hits, r.Fetched, r.Failed)
}
