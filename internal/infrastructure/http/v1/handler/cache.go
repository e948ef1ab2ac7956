package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/jaennil/guide_helper/backend/offline/internal/infrastructure/http/v1/dto"
)

func (h *Handler) CacheStats(c *gin.Context) {
	stats, err := h.maintenance.Stats(c.Request.Context())
	if err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "cache statistics", dto.NewStatsResponse(stats))
}

func (h *Handler) CacheSnapshot(c *gin.Context) {
	snap, ok := h.maintenance.Snapshot(c.Request.Context())
	if !ok {
		h.RespondWithError(c, http.StatusNotFound, ErrNoSnapshot)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "statistics snapshot", snap)
}

func (h *Handler) ClearExpired(c *gin.Context) {
	maxAge := h.maintenance.MaxAge()
	if raw := c.Query("max_age"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			h.RespondWithJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid max_age %q", raw), nil)
			return
		}
		maxAge = d
	}

	removed, err := h.maintenance.ClearExpired(c.Request.Context(), maxAge)
	if err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "expired tiles cleared", dto.ClearExpiredResponse{
		Removed: removed,
		MaxAge:  maxAge.String(),
	})
}

func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.maintenance.ClearAll(c.Request.Context()); err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	requestLogger(c).Info("cache cleared over http", "ip", c.ClientIP())
	h.RespondWithJSON(c, http.StatusOK, "cache cleared", nil)
}

func (h *Handler) AreaAvailability(c *gin.Context) {
	var q dto.AvailabilityQuery
	if !h.bindQuery(c, &q) {
		return
	}

	ok, err := h.maintenance.AreaAvailable(c.Request.Context(), q.GeoBounds, q.Zoom)
	if err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "area availability", dto.AvailabilityResponse{Available: ok, Zoom: q.Zoom})
}

func (h *Handler) bindQuery(c *gin.Context, dst any) bool {
	if err := binding.MapFormWithTag(dst, c.Request.URL.Query(), "form"); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "invalid query: "+err.Error(), nil)
		return false
	}
	return h.validateStruct(c, dst)
}
