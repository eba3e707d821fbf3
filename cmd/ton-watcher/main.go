package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/db"
	"github.com/promoplace/backend/internal/escrow"
	"github.com/promoplace/backend/internal/events"
	"github.com/promoplace/backend/internal/keystore"
	"github.com/promoplace/backend/internal/locks"
	"github.com/promoplace/backend/internal/payout"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/ton"
	"github.com/promoplace/backend/internal/watcher"
)

const pollInterval = 1 * time.Minute

// ton-watcher reconciles the ledger with the TON blockchain: it credits
// incoming escrow deposits and confirms, fails, and retries outgoing
// transfers. Multiple instances may run; cluster-wide advisory locks keep
// each direction single-writer.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	api, err := ton.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to TON", zap.Error(err))
	}

	ks, err := keystore.New(cfg.WalletMasterKeyHex)
	if err != nil {
		log.Fatal("invalid wallet master key", zap.Error(err))
	}

	dealRepo := repositories.NewDealRepo(pool)
	txRepo := repositories.NewTransactionRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	transferRepo := repositories.NewTransferRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	configRepo := repositories.NewConfigRepo(pool)

	publisher := events.NewRedisPublisher(rdb, log)
	lockMgr := locks.NewManager(pool, log)
	sm := escrow.NewStateMachine(pool, dealRepo, auditRepo, publisher, cfg, log)
	executor := payout.NewExecutor(api, txRepo, walletRepo, configRepo, ks, lockMgr, cfg, log)

	incoming := watcher.NewIncomingWatcher(api, pool, rdb, walletRepo, txRepo, transferRepo, sm, lockMgr, publisher, log)
	outgoing := watcher.NewOutgoingWatcher(api, txRepo, walletRepo, lockMgr, publisher, executor, cfg, log)

	log.Info("ton-watcher started", zap.Duration("poll_interval", pollInterval))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := incoming.RunCycle(ctx); err != nil {
				log.Error("incoming cycle failed", zap.Error(err))
			}
			if err := outgoing.RunCycle(ctx); err != nil {
				log.Error("outgoing cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down ton-watcher")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
