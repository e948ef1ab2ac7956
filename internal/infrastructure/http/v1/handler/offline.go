package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/offline/internal/infrastructure/http/v1/dto"
)

func (h *Handler) OfflineMode(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "offline mode", h.supply.Mode())
}

// SetOfflineMode toggles offline-first. Clients re-request visible tiles when
// the returned generation differs from the one they rendered with.
func (h *Handler) SetOfflineMode(c *gin.Context) {
	var req dto.OfflineRequest
	if !h.decodeJSON(c, &req) {
		return
	}

	mode := h.supply.SetOfflineFirst(*req.Enabled)
	h.RespondWithJSON(c, http.StatusOK, "offline mode updated", mode)
}
