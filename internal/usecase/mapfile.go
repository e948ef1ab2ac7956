package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/internal/repository/tilestore"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/mapfile"
	"github.com/jaennil/guide_helper/backend/offline/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/offline/pkg/telemetry"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
	"go.opentelemetry.io/otel/attribute"
)

type ExportOptions struct {
	Bounds  tilemath.GeoBounds
	MinZoom int
	MaxZoom int
	Format  mapfile.Format
	// Name defaults to offline_map_{unix millis}.
	Name string
}

type ExportResult struct {
	Document *mapfile.Document
	Data     []byte
	FileName string
}

type ImportReport struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type MapFileUseCase struct {
	store       tilestore.Store
	maintenance *MaintenanceUseCase
	now         Clock
	logger      logger.Logger
}

func NewMapFileUseCase(store tilestore.Store, maintenance *MaintenanceUseCase, now Clock, l logger.Logger) *MapFileUseCase {
	if now == nil {
		now = time.Now
	}

	return &MapFileUseCase{
		store:       store,
		maintenance: maintenance,
		now:         now,
		logger:      l,
	}
}

// EstimateExport sizes an export of the area before anything is read.
func (uc *MapFileUseCase) EstimateExport(bounds tilemath.GeoBounds, minZoom, maxZoom int) (mapfile.Estimate, error) {
	if err := bounds.Validate(); err != nil {
		return mapfile.Estimate{}, err
	}
	if err := tilemath.ValidateZoomRange(minZoom, maxZoom); err != nil {
		return mapfile.Estimate{}, err
	}
	return mapfile.EstimateSize(tilemath.CountForBounds(bounds, minZoom, maxZoom)), nil
}

// ExportArea packs every cached tile of the area into one document. Tiles that
// are not cached are left out; nothing is downloaded.
func (uc *MapFileUseCase) ExportArea(ctx context.Context, opts ExportOptions, onProgress ProgressFunc) (ExportResult, error) {
	if opts.Format == "" {
		opts.Format = mapfile.FormatJSON
	}
	if !opts.Format.Supported() {
		return ExportResult{}, &mapfile.UnsupportedFormatError{Format: opts.Format}
	}
	if err := opts.Bounds.Validate(); err != nil {
		return ExportResult{}, err
	}
	if err := tilemath.ValidateZoomRange(opts.MinZoom, opts.MaxZoom); err != nil {
		return ExportResult{}, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "mapfile.export")
	defer span.End()

	now := uc.now()
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("offline_map_%d", now.UnixMilli())
	}

	coords := tilemath.TilesForBounds(opts.Bounds, opts.MinZoom, opts.MaxZoom)
	entries := make([]mapfile.TileEntry, 0, len(coords))

	for i, c := range coords {
		if err := ctx.Err(); err != nil {
			return ExportResult{}, err
		}

		tile, ok, err := uc.store.Get(ctx, c)
		if err == nil && ok {
			entries = append(entries, mapfile.NewTileEntry(c, tile.Data))
		}

		if onProgress != nil {
			onProgress(float64(i+1)/float64(len(coords))*100, i+1, len(coords))
		}
	}

	doc := &mapfile.Document{
		Metadata: mapfile.Metadata{
			Name:       opts.Name,
			Bounds:     opts.Bounds,
			MinZoom:    opts.MinZoom,
			MaxZoom:    opts.MaxZoom,
			TileCount:  len(entries),
			ExportDate: now.UTC(),
			Format:     opts.Format,
			Version:    mapfile.FormatVersion,
		},
		Tiles: entries,
	}

	data, err := mapfile.Encode(doc)
	if err != nil {
		return ExportResult{}, fmt.Errorf("failed to encode map document: %w", err)
	}

	metrics.MapFileTiles.WithLabelValues("export").Add(float64(len(entries)))
	span.SetAttributes(attribute.Int("requested", len(coords)), attribute.Int("exported", len(entries)))
	uc.logger.Info("area exported", "name", opts.Name, "requested", len(coords), "exported", len(entries), "bytes", len(data))

	return ExportResult{
		Document: doc,
		Data:     data,
		FileName: opts.Name + "." + string(opts.Format),
	}, nil
}

// ImportDocument stores every tile of an exported document with a fresh
// timestamp. The whole document is decoded before the first write; entries
// that fail afterwards are skipped one by one.
func (uc *MapFileUseCase) ImportDocument(ctx context.Context, data []byte, format mapfile.Format, onProgress ProgressFunc) (ImportReport, error) {
	if format == "" {
		format = mapfile.FormatJSON
	}
	if !format.Supported() {
		return ImportReport{}, &mapfile.UnsupportedFormatError{Format: format}
	}

	doc, err := mapfile.Decode(data)
	if err != nil {
		return ImportReport{}, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "mapfile.import")
	defer span.End()

	report := ImportReport{Total: len(doc.Tiles)}
	for i, entry := range doc.Tiles {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := uc.importEntry(ctx, entry); err != nil {
			uc.logger.Warn("import entry skipped", "index", i, "error", err)
			report.Skipped++
		} else {
			report.Imported++
		}

		if onProgress != nil {
			onProgress(float64(i+1)/float64(len(doc.Tiles))*100, i+1, len(doc.Tiles))
		}
	}

	metrics.MapFileTiles.WithLabelValues("import").Add(float64(report.Imported))
	span.SetAttributes(attribute.Int("imported", report.Imported), attribute.Int("skipped", report.Skipped))
	uc.logger.Info("map document imported", "name", doc.Metadata.Name, "imported", report.Imported, "skipped", report.Skipped)

	if uc.maintenance != nil {
		uc.maintenance.refreshQuietly(ctx)
	}

	return report, nil
}

func (uc *MapFileUseCase) importEntry(ctx context.Context, entry mapfile.TileEntry) error {
	payload, err := entry.Bytes()
	if err != nil {
		return err
	}

	c := entry.Coordinate()
	return uc.store.Put(ctx, tilestore.CachedTile{
		Coordinate: c,
		SourceURL:  fmt.Sprintf("imported_tile_%d_%d_%d", c.Z, c.X, c.Y),
		Data:       payload,
		StoredAt:   uc.now(),
	})
}
