package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/http/handlers"
	"github.com/promoplace/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	walletHandler *handlers.WalletHandler,
	listingHandler *handlers.ListingHandler,
	dealHandler *handlers.DealHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/telegram", authHandler.TelegramAuth)

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Meta (public, no auth required)
	metaHandler := handlers.NewMetaHandler()
	api.Get("/meta/deal-statuses", metaHandler.GetDealStatuses)
	api.Get("/meta/ad-formats", metaHandler.GetAdFormats)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Post("/me/ping", userHandler.Ping)

	// Payout wallet (TON Connect + Proof)
	protected.Post("/me/wallet/proof-payload", walletHandler.GeneratePayload)
	protected.Post("/me/wallet/connect", walletHandler.ConnectWallet)
	protected.Delete("/me/wallet", walletHandler.DisconnectWallet)
	protected.Get("/me/wallet", walletHandler.GetWallet)

	// Listings
	protected.Post("/listings", listingHandler.CreateListing)
	protected.Get("/listings", listingHandler.ListListings)
	protected.Get("/listings/:id", listingHandler.GetListing)
	protected.Delete("/listings/:id", listingHandler.DeactivateListing)

	// Deals
	protected.Post("/deals", dealHandler.CreateDeal)
	protected.Get("/deals", dealHandler.ListDeals)
	protected.Get("/deals/:id", dealHandler.GetDeal)
	protected.Post("/deals/:id/schedule/propose", dealHandler.ProposeSchedule)
	protected.Post("/deals/:id/schedule/confirm", dealHandler.ConfirmSchedule)
	protected.Post("/deals/:id/creative", dealHandler.SubmitCreative)
	protected.Post("/deals/:id/creative/request-changes", dealHandler.RequestCreativeChanges)
	protected.Post("/deals/:id/creative/change-notes", dealHandler.ProvideChangeNotes)
	protected.Post("/deals/:id/submit-review", dealHandler.SubmitForAdminReview)
	protected.Post("/deals/:id/cancel", dealHandler.CancelDeal)
	protected.Post("/deals/:id/dispute", dealHandler.DisputeDeal)
	protected.Post("/deals/:id/release", dealHandler.ReleaseDeal)
	protected.Post("/deals/:id/refund", dealHandler.RefundDeal)
	protected.Get("/deals/:id/payment", dealHandler.GetPaymentInfo)
	protected.Get("/deals/:id/events", dealHandler.GetDealEvents)
	protected.Get("/deals/:id/transactions", dealHandler.ListDealTransactions)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/deals/:id/approve", adminHandler.ApproveDeal)
	admin.Post("/deals/:id/reject", adminHandler.RejectDeal)
	admin.Post("/deals/:id/resolve-dispute", adminHandler.ResolveDispute)
	admin.Get("/transfers/unmatched", adminHandler.ListUnmatchedTransfers)
	admin.Get("/config/fees", adminHandler.GetFeesConfig)
	admin.Put("/config/fees", adminHandler.UpdateFeesConfig)
	admin.Get("/config/liquidity", adminHandler.GetLiquidityConfig)
	admin.Put("/config/liquidity", adminHandler.UpdateLiquidityConfig)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
