package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/http/dto"
	"github.com/promoplace/backend/internal/middleware"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/services"
)

// WalletHandler manages the user's payout wallet via TON Connect proof.
type WalletHandler struct {
	walletService *services.WalletService
	userRepo      *repositories.UserRepo
	log           *zap.Logger
}

func NewWalletHandler(walletService *services.WalletService, userRepo *repositories.UserRepo, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletService: walletService, userRepo: userRepo, log: log}
}

// GeneratePayload issues the nonce the wallet must sign into ton_proof.
// POST /me/wallet/proof-payload
func (h *WalletHandler) GeneratePayload(c *fiber.Ctx) error {
	payload, err := h.walletService.GeneratePayload(c.Context(), middleware.GetUserID(c))
	if err != nil {
		h.log.Error("failed to generate proof payload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(fiber.Map{"payload": payload})
}

// ConnectWallet stores the wallet after verifying TON Proof.
// POST /me/wallet/connect
func (h *WalletHandler) ConnectWallet(c *fiber.Ctx) error {
	var req dto.ConnectWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Address == "" || req.PublicKey == "" || req.Proof.Signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address, public_key, and proof.signature are required"})
	}
	if req.AddressFriendly == "" {
		req.AddressFriendly = req.Address
	}

	user, err := h.walletService.ConnectWallet(c.Context(), middleware.GetUserID(c), services.ConnectWalletInput{
		Address:         req.Address,
		AddressFriendly: req.AddressFriendly,
		PublicKey:       req.PublicKey,
		Proof:           req.Proof,
	})
	if err != nil {
		h.log.Debug("wallet connect failed", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}

// DisconnectWallet clears the stored wallet.
// DELETE /me/wallet
func (h *WalletHandler) DisconnectWallet(c *fiber.Ctx) error {
	if err := h.walletService.DisconnectWallet(c.Context(), middleware.GetUserID(c)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to disconnect wallet"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// GetWallet returns the connected wallet, if any.
// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	user, err := h.userRepo.GetByID(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "user not found"})
	}
	if user.WalletAddress == nil {
		return c.JSON(dto.SuccessResponse{OK: true, Data: nil})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"address":          user.WalletAddress,
		"address_friendly": user.WalletAddressFriendly,
		"connected_at":     user.WalletConnectedAt,
	}})
}
