package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/offline/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("guide-helper-offline",
			telemetry.WithSkipRoutes("/api/v1/healthz", "/metrics"),
		))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/tile/:z/:x/:y", handler.Tile)

	v1.GET("/offline", handler.OfflineMode)
	v1.PUT("/offline", handler.SetOfflineMode)

	downloads := v1.Group("/downloads")
	downloads.POST("", handler.StartDownload)
	downloads.GET("/progress", handler.DownloadProgress)
	downloads.DELETE("", handler.CancelDownload)

	cache := v1.Group("/cache")
	cache.GET("/stats", handler.CacheStats)
	cache.GET("/snapshot", handler.CacheSnapshot)
	cache.GET("/availability", handler.AreaAvailability)
	cache.DELETE("/expired", handler.ClearExpired)
	cache.DELETE("", handler.ClearCache)

	v1.POST("/export", handler.Export)
	v1.GET("/export/estimate", handler.ExportEstimate)
	v1.POST("/import", handler.Import)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rl := l.With("method", c.Request.Method, "route", c.FullPath())
		c.Set("logger", rl)
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), rl))

		if c.Request.URL.Path == "/api/v1/healthz" {
			c.Next()
			return
		}

		start := time.Now()

		c.Next()

		latency := time.Since(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
