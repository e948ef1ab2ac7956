package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/offline/internal/infrastructure/http/v1/dto"
)

func (h *Handler) StartDownload(c *gin.Context) {
	var req dto.AreaRequest
	if !h.decodeJSON(c, &req) {
		return
	}

	minZoom := h.zoomOr(req.MinZoom, h.zoom.Min)
	maxZoom := h.zoomOr(req.MaxZoom, h.zoom.Max)

	id, err := h.download.StartDownload(c.Request.Context(), req.Bounds, minZoom, maxZoom, nil)
	if err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	requestLogger(c).Info("download started", "session", id, "min_zoom", minZoom, "max_zoom", maxZoom)
	h.RespondWithJSON(c, http.StatusAccepted, "download started", dto.DownloadStartedResponse{SessionID: id})
}

func (h *Handler) DownloadProgress(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "download progress", h.download.Progress())
}

func (h *Handler) CancelDownload(c *gin.Context) {
	canceled := h.download.Cancel()

	message := "no download in progress"
	if canceled {
		message = "download canceled"
	}
	h.RespondWithJSON(c, http.StatusOK, message, dto.CancelResponse{Canceled: canceled})
}
