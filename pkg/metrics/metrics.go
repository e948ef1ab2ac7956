package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_hits_total",
		Help: "Total number of tile lookups served from the offline cache",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_misses_total",
		Help: "Total number of tile lookups not found (or expired) in the offline cache",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_stores_total",
		Help: "Total number of tiles written to the offline cache",
	})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_storage_errors_total",
		Help: "Total number of tile store errors",
	}, []string{"operation"})

	TilesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_fetched_total",
		Help: "Total number of tiles fetched from the upstream tile server",
	})

	TilesFetchFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_fetch_failed_total",
		Help: "Total number of failed upstream tile fetches",
	})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offline_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	DownloadProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offline_download_progress_percent",
		Help: "Progress of the active area download in percent",
	})

	DownloadsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offline_downloads_active",
		Help: "1 while an area download is running",
	})

	TilesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_expired_total",
		Help: "Total number of tiles removed by expiry sweeps",
	})

	MapFileTiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_mapfile_tiles_total",
		Help: "Total number of tiles written to exports or read from imports",
	}, []string{"direction"})

	SupplySource = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_supply_tiles_total",
		Help: "Tiles handed to the map widget, by source",
	}, []string{"source"})
)
