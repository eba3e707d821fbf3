package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/db"
	"github.com/promoplace/backend/internal/escrow"
	"github.com/promoplace/backend/internal/events"
	apphttp "github.com/promoplace/backend/internal/http"
	"github.com/promoplace/backend/internal/http/handlers"
	"github.com/promoplace/backend/internal/keystore"
	"github.com/promoplace/backend/internal/locks"
	"github.com/promoplace/backend/internal/payout"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/services"
	"github.com/promoplace/backend/internal/ton"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// TON
	api, err := ton.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to TON", zap.Error(err))
	}

	ks, err := keystore.New(cfg.WalletMasterKeyHex)
	if err != nil {
		log.Fatal("invalid wallet master key", zap.Error(err))
	}

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	listingRepo := repositories.NewListingRepo(pool)
	dealRepo := repositories.NewDealRepo(pool)
	txRepo := repositories.NewTransactionRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	transferRepo := repositories.NewTransferRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	configRepo := repositories.NewConfigRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	lockMgr := locks.NewManager(pool, log)
	sm := escrow.NewStateMachine(pool, dealRepo, auditRepo, publisher, cfg, log)
	executor := payout.NewExecutor(api, txRepo, walletRepo, configRepo, ks, lockMgr, cfg, log)
	botClient := services.NewBotClient(cfg.BotInternalURL, log)
	dealService := services.NewDealService(dealRepo, listingRepo, txRepo, walletRepo, auditRepo,
		sm, api, ks, botClient, publisher, executor, cfg, log)
	walletService := services.NewWalletService(userRepo, rdb, cfg, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, cfg, log)
	userHandler := handlers.NewUserHandler(userRepo, log)
	walletHandler := handlers.NewWalletHandler(walletService, userRepo, log)
	listingHandler := handlers.NewListingHandler(listingRepo, log)
	dealHandler := handlers.NewDealHandler(dealService, dealRepo, txRepo, userRepo, auditRepo, cfg, log)
	adminHandler := handlers.NewAdminHandler(dealService, transferRepo, configRepo, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb,
		authHandler, userHandler, walletHandler, listingHandler, dealHandler, adminHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
