package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/http/dto"
	"github.com/promoplace/backend/internal/middleware"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/services"
)

// AdminHandler covers moderation and platform operations: creative review,
// dispute resolution, fee configuration, and the unmatched-transfer queue.
// All routes sit behind AdminMiddleware.
type AdminHandler struct {
	dealService  *services.DealService
	transferRepo *repositories.TransferRepo
	configRepo   *repositories.ConfigRepo
	log          *zap.Logger
}

func NewAdminHandler(
	dealService *services.DealService,
	transferRepo *repositories.TransferRepo,
	configRepo *repositories.ConfigRepo,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		dealService:  dealService,
		transferRepo: transferRepo,
		configRepo:   configRepo,
		log:          log,
	}
}

func (h *AdminHandler) ApproveDeal(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealService.AdminApprove(c.Context(), dealID, middleware.GetUserID(c))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *AdminHandler) RejectDeal(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.AdminRejectRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	deal, err := h.dealService.AdminReject(c.Context(), dealID, middleware.GetUserID(c), req.Reason)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *AdminHandler) ResolveDispute(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	deal, err := h.dealService.ResolveDispute(c.Context(), dealID, middleware.GetUserID(c),
		req.ReleaseToPublisher, req.DestinationAddress)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

// ListUnmatchedTransfers returns observed on-chain payments that could not
// be attributed to any open deposit and await manual review.
func (h *AdminHandler) ListUnmatchedTransfers(c *fiber.Ctx) error {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	transfers, err := h.transferRepo.ListUnmatched(c.Context(), limit)
	if err != nil {
		h.log.Error("list unmatched transfers failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: transfers})
}

func (h *AdminHandler) GetFeesConfig(c *fiber.Ctx) error {
	fees, err := h.configRepo.GetFees(c.Context())
	if err != nil {
		h.log.Error("get fees config failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fees})
}

func (h *AdminHandler) UpdateFeesConfig(c *fiber.Ctx) error {
	var req dto.UpdateFeesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.ServiceFeeMode != models.FeeModeFixed && req.ServiceFeeMode != models.FeeModeBPS {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "service_fee_mode must be FIXED or BPS"})
	}
	if req.NetworkFeeMode != models.FeeModeFixed && req.NetworkFeeMode != models.FeeModeBPS {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "network_fee_mode must be FIXED or BPS"})
	}

	err := h.configRepo.UpdateFees(c.Context(), models.FeesConfig{
		ServiceFeeMode:         req.ServiceFeeMode,
		ServiceFeeValue:        req.ServiceFeeValue,
		ServiceFeeMinNano:      req.ServiceFeeMinNano,
		ServiceFeeMaxNano:      req.ServiceFeeMaxNano,
		NetworkFeeMode:         req.NetworkFeeMode,
		NetworkFeeValue:        req.NetworkFeeValue,
		NetworkFeeMinNano:      req.NetworkFeeMinNano,
		NetworkFeeMaxNano:      req.NetworkFeeMaxNano,
		PayoutMinNetAmountNano: req.PayoutMinNetAmountNano,
	})
	if err != nil {
		h.log.Error("update fees config failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AdminHandler) GetLiquidityConfig(c *fiber.Ctx) error {
	liq, err := h.configRepo.GetLiquidity(c.Context())
	if err != nil {
		h.log.Error("get liquidity config failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: liq})
}

func (h *AdminHandler) UpdateLiquidityConfig(c *fiber.Ctx) error {
	var req dto.UpdateLiquidityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.SweepThresholdNano < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "sweep_threshold_nano must be non-negative"})
	}

	err := h.configRepo.UpdateLiquidity(c.Context(), models.LiquidityConfig{
		SweepThresholdNano:      req.SweepThresholdNano,
		SweepDestinationAddress: req.SweepDestinationAddress,
	})
	if err != nil {
		h.log.Error("update liquidity config failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
