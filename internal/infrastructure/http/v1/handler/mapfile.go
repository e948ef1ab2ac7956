package handler

import (
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/offline/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/offline/internal/usecase"
	"github.com/jaennil/guide_helper/backend/offline/pkg/mapfile"
)

// maxImportSize bounds the raw body of an import request.
const maxImportSize = 512 << 20

func (h *Handler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if !h.decodeJSON(c, &req) {
		return
	}

	format := mapfile.FormatJSON
	if req.Format != "" {
		f, err := mapfile.ParseFormat(req.Format)
		if err != nil {
			h.respondWithUseCaseError(c, err)
			return
		}
		format = f
	}

	res, err := h.mapFile.ExportArea(c.Request.Context(), usecase.ExportOptions{
		Bounds:  req.Bounds,
		MinZoom: h.zoomOr(req.MinZoom, h.zoom.Min),
		MaxZoom: h.zoomOr(req.MaxZoom, h.zoom.Max),
		Format:  format,
		Name:    req.Name,
	}, nil)
	if err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	c.Header("Content-Disposition", attachment(res.FileName))
	c.Data(http.StatusOK, "application/json", res.Data)
}

// attachment quotes and escapes the file name; names mime cannot express
// safely fall back to a bare attachment.
func attachment(fileName string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return "attachment"
}

func (h *Handler) ExportEstimate(c *gin.Context) {
	var q dto.EstimateQuery
	if !h.bindQuery(c, &q) {
		return
	}

	estimate, err := h.mapFile.EstimateExport(q.GeoBounds, q.MinZoom, q.MaxZoom)
	if err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "export estimate", estimate)
}

// Import takes the raw document as the request body.
func (h *Handler) Import(c *gin.Context) {
	format := mapfile.FormatJSON
	if raw := c.Query("format"); raw != "" {
		f, err := mapfile.ParseFormat(raw)
		if err != nil {
			h.respondWithUseCaseError(c, err)
			return
		}
		format = f
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize))
	if err != nil {
		requestLogger(c).Warn("failed to read import body", "error", err)
		h.RespondWithError(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody)
		return
	}

	report, err := h.mapFile.ImportDocument(c.Request.Context(), data, format, nil)
	if err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "map imported", report)
}
