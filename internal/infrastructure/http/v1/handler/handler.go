package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/offline/internal/repository/upstream"
	"github.com/jaennil/guide_helper/backend/offline/internal/usecase"
	"github.com/jaennil/guide_helper/backend/offline/pkg/logger"
	"github.com/jaennil/guide_helper/backend/offline/pkg/mapfile"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ZoomRange is used when a request leaves the zoom levels out.
type ZoomRange struct {
	Min int
	Max int
}

type Handler struct {
	validate *validator.Validate
	zoom     ZoomRange

	supply      *usecase.SupplyUseCase
	download    *usecase.DownloadUseCase
	maintenance *usecase.MaintenanceUseCase
	mapFile     *usecase.MapFileUseCase
}

func NewHandler(
	v *validator.Validate,
	zoom ZoomRange,
	supply *usecase.SupplyUseCase,
	download *usecase.DownloadUseCase,
	maintenance *usecase.MaintenanceUseCase,
	mapFile *usecase.MapFileUseCase,
) *Handler {
	return &Handler{
		validate:    v,
		zoom:        zoom,
		supply:      supply,
		download:    download,
		maintenance: maintenance,
		mapFile:     mapFile,
	}
}

// NewValidator reads the same `binding` tags gin uses, so request structs
// carry a single set of rules.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context, err error) {
	requestLogger(c).Error("internal http_server error",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"ip", c.ClientIP(),
		"error", err,
	)
	_ = c.Error(err)

	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

func (h *Handler) RespondWithError(c *gin.Context, code int, err error) {
	h.RespondWithJSON(c, code, err.Error(), nil)
}

// respondWithUseCaseError maps domain errors onto status codes.
func (h *Handler) respondWithUseCaseError(c *gin.Context, err error) {
	var unsupported *mapfile.UnsupportedFormatError

	switch {
	case errors.Is(err, usecase.ErrBusy):
		h.RespondWithError(c, http.StatusConflict, err)
	case errors.As(err, &unsupported):
		h.RespondWithError(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, tilemath.ErrInvalidBounds),
		errors.Is(err, tilemath.ErrInvalidZoom),
		errors.Is(err, tilemath.ErrInvalidKey),
		errors.Is(err, mapfile.ErrMalformedDocument):
		h.RespondWithError(c, http.StatusBadRequest, err)
	case errors.Is(err, upstream.ErrFetchFailed):
		requestLogger(c).Warn("upstream fetch failed", "path", c.Request.URL.Path, "error", err)
		h.RespondWithError(c, http.StatusBadGateway, err)
	default:
		h.RespondWithInternalServerError(c, err)
	}
}

// decodeJSON reads the body into dst and validates it.
func (h *Handler) decodeJSON(c *gin.Context, dst any) bool {
	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		requestLogger(c).Warn("bad request body", "path", c.Request.URL.Path, "error", err)
		h.RespondWithError(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody)
		return false
	}
	return h.validateStruct(c, dst)
}

func (h *Handler) validateStruct(c *gin.Context, dst any) bool {
	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		h.RespondWithJSON(c, http.StatusBadRequest, "invalid field "+first.Namespace()+": failed on "+first.Tag(), nil)
		return false
	}

	h.RespondWithInternalServerError(c, err)
	return false
}

func (h *Handler) zoomOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func requestLogger(c *gin.Context) logger.Logger {
	if l, ok := c.Get("logger"); ok {
		if l, ok := l.(logger.Logger); ok {
			return l
		}
	}
	return logger.FromContext(c.Request.Context())
}
