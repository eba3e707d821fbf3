package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/http/dto"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/repositories"
)

var validAdFormats = map[string]bool{"post": true, "repost": true, "story": true}

type ListingHandler struct {
	listingRepo *repositories.ListingRepo
	log         *zap.Logger
}

func NewListingHandler(listingRepo *repositories.ListingRepo, log *zap.Logger) *ListingHandler {
	return &ListingHandler{listingRepo: listingRepo, log: log}
}

func (h *ListingHandler) CreateListing(c *fiber.Ctx) error {
	var req dto.CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid channel_id"})
	}
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "title is required"})
	}
	if !validAdFormats[req.AdFormat] {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "ad_format must be post, repost or story"})
	}
	if req.PriceNano <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "price_nano must be positive"})
	}

	currency := req.Currency
	if currency == "" {
		currency = "TON"
	}

	listing := &models.Listing{
		ChannelID:       channelID,
		ChannelUsername: req.ChannelUsername,
		ChannelChatID:   req.ChannelChatID,
		Title:           req.Title,
		AdFormat:        req.AdFormat,
		PriceNano:       req.PriceNano,
		Currency:        currency,
		Rules:           req.Rules,
		IsActive:        true,
	}
	if err := h.listingRepo.Create(c.Context(), listing); err != nil {
		h.log.Error("create listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: listing})
}

func (h *ListingHandler) GetListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing id"})
	}

	listing, err := h.listingRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "listing not found"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: listing})
}

func (h *ListingHandler) ListListings(c *fiber.Ctx) error {
	limit, offset := 20, 0
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

	listings, err := h.listingRepo.ListActive(c.Context(), limit, offset)
	if err != nil {
		h.log.Error("list listings failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: listings})
}

func (h *ListingHandler) DeactivateListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid listing id"})
	}

	if err := h.listingRepo.SetActive(c.Context(), id, false); err != nil {
		h.log.Error("deactivate listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
