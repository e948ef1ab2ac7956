package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

func (h *Handler) Tile(c *gin.Context) {
	l := requestLogger(c)

	strX := c.Param("x")
	strY := c.Param("y")
	strZ := c.Param("z")

	x, err := strconv.Atoi(strX)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "x should be integer", nil)
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "y should be integer", nil)
		return
	}

	z, err := strconv.Atoi(strZ)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "z should be integer", nil)
		return
	}

	tile, err := h.supply.Supply(c.Request.Context(), tilemath.TileCoordinate{X: x, Y: y, Z: z})
	if err != nil {
		h.respondWithUseCaseError(c, err)
		return
	}

	l.Debug("tile supplied", "tile", tile.Coordinate.Key(), "source", tile.Source, "size", len(tile.Data))

	c.Header("X-Tile-Source", string(tile.Source))
	c.Header("X-Tile-Offline", strconv.FormatBool(tile.Offline()))
	b := tile.Coordinate.Bound()
	c.Header("X-Tile-Bounds", fmt.Sprintf("%g,%g,%g,%g", b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()))
	c.Header("Cache-Control", "public, max-age=604800")
	c.Data(http.StatusOK, tile.ContentType, tile.Data)
}
