package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/promoplace/backend/internal/http/dto"
	"github.com/promoplace/backend/internal/models"
)

// MetaHandler serves static reference data for clients.
type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

var adFormats = []string{"post", "repost", "story"}

// GetDealStatuses returns every lifecycle status with its allowed
// successors, so clients can render the flow without hardcoding it.
func (h *MetaHandler) GetDealStatuses(c *fiber.Ctx) error {
	type statusInfo struct {
		Status   models.EscrowStatus   `json:"status"`
		Terminal bool                  `json:"terminal"`
		Next     []models.EscrowStatus `json:"next"`
	}

	out := make([]statusInfo, 0, len(models.ValidEscrowTransitions))
	for status, next := range models.ValidEscrowTransitions {
		out = append(out, statusInfo{Status: status, Terminal: status.IsTerminal(), Next: next})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

func (h *MetaHandler) GetAdFormats(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: adFormats})
}
