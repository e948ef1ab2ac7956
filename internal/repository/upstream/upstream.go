package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/imkira/go-interpol"
	"github.com/jaennil/guide_helper/backend/offline/pkg/buffer"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

// ErrFetchFailed matches every failed fetch, whatever the cause.
var ErrFetchFailed = errors.New("tile fetch failed")

// FetchError carries the upstream status of a non-2xx answer.
type FetchError struct {
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.Status, e.URL)
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

type FetchResult struct {
	URL         string
	Data        []byte
	ContentType string
}

type Fetcher interface {
	// URL renders the online address of a tile without fetching it.
	URL(c tilemath.TileCoordinate) (string, error)
	Fetch(ctx context.Context, c tilemath.TileCoordinate) (FetchResult, error)
}

const DefaultTimeout = 30 * time.Second

type Config struct {
	URLTemplate string
	UserAgent   string
	Referer     string
	Timeout     time.Duration
}

// HTTPFetcher issues one GET per tile and never retries.
type HTTPFetcher struct {
	cfg        Config
	httpClient *http.Client
	buffers    buffer.BufferManager
	logger     logger.Logger
}

func NewHTTPFetcher(cfg Config, buffers buffer.BufferManager, l logger.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if buffers == nil {
		buffers = &buffer.OnDemandBufferManager{}
	}

	return &HTTPFetcher{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		buffers: buffers,
		logger:  l,
	}
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) URL(c tilemath.TileCoordinate) (string, error) {
	m := map[string]string{
		"z": strconv.Itoa(c.Z),
		"x": strconv.Itoa(c.X),
		"y": strconv.Itoa(c.Y),
	}

	return interpol.WithMap(f.cfg.URLTemplate, m)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, c tilemath.TileCoordinate) (FetchResult, error) {
	url, err := f.URL(c)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: bad url template: %v", ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: failed to create request: %v", ErrFetchFailed, err)
	}

	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}

	startTime := time.Now()
	resp, err := f.httpClient.Do(req)
	metrics.UpstreamLatency.Observe(time.Since(startTime).Seconds())
	if err != nil {
		metrics.TilesFetchFailed.Inc()
		f.logger.Warn("failed to fetch tile", "tile", c.Key(), "error", err)
		return FetchResult{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.TilesFetchFailed.Inc()
		f.logger.Warn("upstream returned non-2xx", "tile", c.Key(), "status", resp.StatusCode)
		return FetchResult{}, &FetchError{URL: url, Status: resp.StatusCode}
	}

	buf := f.buffers.Get()
	defer f.buffers.Put(buf)

	if _, err := io.Copy(buf, resp.Body); err != nil {
		metrics.TilesFetchFailed.Inc()
		return FetchResult{}, fmt.Errorf("%w: failed to read tile data: %w", ErrFetchFailed, err)
	}

	// The pooled buffer is reused; hand out a copy.
	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	metrics.TilesFetched.Inc()
	f.logger.Debug("fetched tile", "tile", c.Key(), "size", len(data), "duration", time.Since(startTime))

	return FetchResult{
		URL:         url,
		Data:        data,
		ContentType: contentType,
	}, nil
}
