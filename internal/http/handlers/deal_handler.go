package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/http/dto"
	"github.com/promoplace/backend/internal/middleware"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/rbac"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/services"
)

type DealHandler struct {
	dealService *services.DealService
	dealRepo    *repositories.DealRepo
	txRepo      *repositories.TransactionRepo
	userRepo    *repositories.UserRepo
	auditRepo   *repositories.AuditRepo
	cfg         *config.Config
	log         *zap.Logger
}

func NewDealHandler(
	dealService *services.DealService,
	dealRepo *repositories.DealRepo,
	txRepo *repositories.TransactionRepo,
	userRepo *repositories.UserRepo,
	auditRepo *repositories.AuditRepo,
	cfg *config.Config,
	log *zap.Logger,
) *DealHandler {
	return &DealHandler{
		dealService: dealService,
		dealRepo:    dealRepo,
		txRepo:      txRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		cfg:         cfg,
		log:         log,
	}
}

// roleFor derives the actor's role on a specific deal.
func (h *DealHandler) roleFor(c *fiber.Ctx, deal *models.Deal) string {
	if h.cfg.IsAdmin(middleware.GetTelegramUserID(c)) {
		return rbac.RoleAdmin
	}
	userID := middleware.GetUserID(c)
	switch userID {
	case deal.AdvertiserUserID:
		return rbac.RoleAdvertiser
	case deal.PublisherUserID:
		return rbac.RolePublisher
	}
	return ""
}

// loadAuthorized loads the deal from the :id param and verifies the actor
// holds the permission on it. A nil deal means the response is already
// written.
func (h *DealHandler) loadAuthorized(c *fiber.Ctx, perm string) *models.Deal {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
		return nil
	}

	deal, err := h.dealRepo.GetByID(c.Context(), id)
	if err != nil {
		_ = c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal not found"})
		return nil
	}

	role := h.roleFor(c, deal)
	if role == "" || !rbac.HasPermission(role, perm) {
		_ = c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not allowed for this deal"})
		return nil
	}
	return deal
}

func (h *DealHandler) CreateDeal(c *fiber.Ctx) error {
	var req dto.CreateDealRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing_id"})
	}
	counterpartyID, err := uuid.Parse(req.CounterpartyUserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid counterparty_user_id"})
	}

	actorID := middleware.GetUserID(c)
	in := services.CreateDealInput{
		CreatorUserID: actorID,
		InitiatorSide: req.InitiatorSide,
		ListingID:     listingID,
		Brief:         req.Brief,
		ScheduledAt:   req.ScheduledAt,
		AmountNano:    req.AmountNano,
	}
	switch req.InitiatorSide {
	case models.SideAdvertiser:
		in.AdvertiserUserID = actorID
		in.PublisherUserID = counterpartyID
	case models.SidePublisher:
		in.PublisherUserID = actorID
		in.AdvertiserUserID = counterpartyID
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "initiator_side must be ADVERTISER or PUBLISHER"})
	}

	deal, err := h.dealService.CreateDeal(c.Context(), in)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *DealHandler) GetDeal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal not found"})
	}
	if h.roleFor(c, deal) == "" {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not allowed for this deal"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deal})
}

func (h *DealHandler) ListDeals(c *fiber.Ctx) error {
	filter := repositories.DealFilter{
		Side: c.Query("side"),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	deals, err := h.dealRepo.ListForUser(c.Context(), middleware.GetUserID(c), filter)
	if err != nil {
		h.log.Error("list deals failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deals})
}

func (h *DealHandler) ProposeSchedule(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermProposeSchedule)
	if deal == nil {
		return nil
	}

	var req dto.ProposeScheduleRequest
	if err := c.BodyParser(&req); err != nil || req.ScheduledAt.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "scheduled_at is required"})
	}

	updated, err := h.dealService.ProposeSchedule(c.Context(), deal.ID, middleware.GetUserID(c), req.ScheduledAt)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) ConfirmSchedule(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermConfirmSchedule)
	if deal == nil {
		return nil
	}

	updated, err := h.dealService.ConfirmSchedule(c.Context(), deal.ID, middleware.GetUserID(c))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) SubmitCreative(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermSubmitCreative)
	if deal == nil {
		return nil
	}

	var req dto.SubmitCreativeRequest
	if err := c.BodyParser(&req); err != nil || req.Brief == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "brief is required"})
	}

	updated, err := h.dealService.SubmitCreative(c.Context(), deal.ID, middleware.GetUserID(c), req.Brief)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) RequestCreativeChanges(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermRequestChanges)
	if deal == nil {
		return nil
	}

	var req dto.RequestCreativeChangesRequest
	_ = c.BodyParser(&req)

	updated, err := h.dealService.RequestCreativeChanges(c.Context(), deal.ID, middleware.GetUserID(c), req.Notes)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) ProvideChangeNotes(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermProvideNotes)
	if deal == nil {
		return nil
	}

	var req dto.ProvideChangeNotesRequest
	if err := c.BodyParser(&req); err != nil || req.Notes == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "notes are required"})
	}

	updated, err := h.dealService.ProvideChangeNotes(c.Context(), deal.ID, middleware.GetUserID(c), req.Notes)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) SubmitForAdminReview(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermSubmitAdminReview)
	if deal == nil {
		return nil
	}

	updated, err := h.dealService.SubmitForAdminReview(c.Context(), deal.ID, middleware.GetUserID(c))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) CancelDeal(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermCancelDeal)
	if deal == nil {
		return nil
	}

	var req dto.CancelDealRequest
	_ = c.BodyParser(&req)
	if req.Reason == "" {
		req.Reason = "canceled by participant"
	}

	actorID := middleware.GetUserID(c)
	updated, err := h.dealService.Cancel(c.Context(), deal.ID, &actorID, "user", req.Reason)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

func (h *DealHandler) DisputeDeal(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermDisputeDeal)
	if deal == nil {
		return nil
	}

	var req dto.DisputeDealRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	updated, err := h.dealService.Dispute(c.Context(), deal.ID, middleware.GetUserID(c), req.Reason)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

// ReleaseDeal pays the publisher. Without an explicit destination it falls
// back to the publisher's proof-verified wallet.
func (h *DealHandler) ReleaseDeal(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermReleaseEscrow)
	if deal == nil {
		return nil
	}

	var req dto.ReleaseDealRequest
	_ = c.BodyParser(&req)

	dest := req.DestinationAddress
	if dest == "" {
		publisher, err := h.userRepo.GetByID(c.Context(), deal.PublisherUserID)
		if err != nil || publisher.WalletAddressFriendly == nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "no destination address and no connected wallet"})
		}
		dest = *publisher.WalletAddressFriendly
	}

	actorID := middleware.GetUserID(c)
	updated, err := h.dealService.Release(c.Context(), deal.ID, &actorID, "user", dest)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

// RefundDeal returns held funds to the advertiser. Without an explicit
// destination the deposit's payer address is used.
func (h *DealHandler) RefundDeal(c *fiber.Ctx) error {
	deal := h.loadAuthorized(c, rbac.PermRefundEscrow)
	if deal == nil {
		return nil
	}

	var req dto.RefundDealRequest
	_ = c.BodyParser(&req)

	actorID := middleware.GetUserID(c)
	updated, err := h.dealService.Refund(c.Context(), deal.ID, &actorID, "user", req.DestinationAddress)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: updated})
}

// GetPaymentInfo returns where and how much to pay for an approved deal.
func (h *DealHandler) GetPaymentInfo(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal not found"})
	}
	if h.roleFor(c, deal) == "" {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not allowed for this deal"})
	}
	if deal.EscrowPaymentAddress == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "payment not open for this deal"})
	}

	var received int64
	rows, err := h.txRepo.ListByDeal(c.Context(), deal.ID)
	if err != nil {
		h.log.Error("list deal ledger failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	for _, row := range rows {
		if row.Direction == models.TxDirectionIn {
			received += row.ReceivedNano
		}
	}

	return c.JSON(dto.PaymentInfoResponse{
		DealID:            deal.ID.String(),
		PaymentAddress:    *deal.EscrowPaymentAddress,
		AmountNano:        deal.EscrowAmountNano,
		ReceivedNano:      received,
		Currency:          deal.EscrowCurrency,
		PaymentDeadlineAt: deal.PaymentDeadlineAt,
		Status:            string(deal.EscrowStatus),
	})
}

// GetDealEvents returns the deal's audit trail, newest first.
func (h *DealHandler) GetDealEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal not found"})
	}
	if h.roleFor(c, deal) == "" {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not allowed for this deal"})
	}

	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	entries, err := h.auditRepo.GetByEntity(c.Context(), "deal", deal.ID, limit, offset)
	if err != nil {
		h.log.Error("get deal events failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

// ListDealTransactions exposes the deal's ledger to its participants.
func (h *DealHandler) ListDealTransactions(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal not found"})
	}
	if h.roleFor(c, deal) == "" {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "not allowed for this deal"})
	}

	rows, err := h.txRepo.ListByDeal(c.Context(), deal.ID)
	if err != nil {
		h.log.Error("list deal ledger failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: rows})
}
