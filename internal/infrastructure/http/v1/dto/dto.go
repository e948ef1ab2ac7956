package dto

import (
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/metastore"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

// AreaRequest selects tiles by bounds and zoom range. Omitted zooms fall back
// to the configured defaults.
type AreaRequest struct {
	Bounds  tilemath.GeoBounds `json:"bounds"`
	MinZoom *int               `json:"min_zoom" binding:"omitempty,gte=0,lte=22"`
	MaxZoom *int               `json:"max_zoom" binding:"omitempty,gte=0,lte=22"`
}

type ExportRequest struct {
	AreaRequest
	Format string `json:"format"`
	Name   string `json:"name" binding:"omitempty,max=128,excludesall=/"`
}

type OfflineRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type AvailabilityQuery struct {
	tilemath.GeoBounds
	Zoom int `form:"zoom" binding:"gte=0,lte=22"`
}

type EstimateQuery struct {
	tilemath.GeoBounds
	MinZoom int `form:"min_zoom" binding:"gte=0,lte=22"`
	MaxZoom int `form:"max_zoom" binding:"gte=0,lte=22"`
}

type DownloadStartedResponse struct {
	SessionID string `json:"session_id"`
}

type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

type ClearExpiredResponse struct {
	Removed int    `json:"removed"`
	MaxAge  string `json:"max_age"`
}

type AvailabilityResponse struct {
	Available bool `json:"available"`
	Zoom      int  `json:"zoom"`
}

type StatsResponse struct {
	metastore.Statistics
	TotalMB float64 `json:"total_mb"`
}

func NewStatsResponse(s metastore.Statistics) StatsResponse {
	return StatsResponse{Statistics: s, TotalMB: float64(s.TotalBytes) / (1024 * 1024)}
}
