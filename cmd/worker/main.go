package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/db"
	"github.com/promoplace/backend/internal/escrow"
	"github.com/promoplace/backend/internal/events"
	"github.com/promoplace/backend/internal/keystore"
	"github.com/promoplace/backend/internal/locks"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/payout"
	"github.com/promoplace/backend/internal/postcheck"
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

	// Repos
	dealRepo := repositories.NewDealRepo(pool)
	listingRepo := repositories.NewListingRepo(pool)
	txRepo := repositories.NewTransactionRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	reminderRepo := repositories.NewReminderRepo(pool)
	adminRepo := repositories.NewAdminRepo(pool)
	configRepo := repositories.NewConfigRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	lockMgr := locks.NewManager(pool, log)
	sm := escrow.NewStateMachine(pool, dealRepo, auditRepo, publisher, cfg, log)
	botClient := services.NewBotClient(cfg.BotInternalURL, log)
	executor := payout.NewExecutor(api, txRepo, walletRepo, configRepo, ks, lockMgr, cfg, log)
	dealService := services.NewDealService(dealRepo, listingRepo, txRepo, walletRepo, auditRepo,
		sm, api, ks, botClient, publisher, executor, cfg, log)
	checker := postcheck.NewChecker(cfg.TMEFetchTimeoutMS, cfg.TMEFetchMaxRetries, log)

	log.Info("worker started")

	timeoutTicker := time.NewTicker(2 * time.Minute)
	postingTicker := time.NewTicker(1 * time.Minute)
	deliveryTicker := time.NewTicker(5 * time.Minute)
	adminSyncTicker := time.NewTicker(10 * time.Minute)
	defer timeoutTicker.Stop()
	defer postingTicker.Stop()
	defer deliveryTicker.Stop()
	defer adminSyncTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-timeoutTicker.C:
			runDealTimeouts(ctx, dealRepo, txRepo, dealService, log)
			runReminders(ctx, dealRepo, reminderRepo, publisher, cfg, log)
		case <-postingTicker.C:
			runPosting(ctx, dealRepo, dealService, log)
		case <-deliveryTicker.C:
			runDeliveryChecks(ctx, dealRepo, checker, dealService, log)
		case <-adminSyncTicker.C:
			runAdminSync(ctx, dealRepo, listingRepo, adminRepo, botClient, lockMgr, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// Deadline fields and the statuses they cancel, swept together.
var timeoutSweeps = []struct {
	field    string
	statuses []models.EscrowStatus
	reason   string
}{
	{"idle_expires_at",
		[]models.EscrowStatus{models.StatusDraft, models.StatusWaitingSchedule, models.StatusSchedulingPending},
		"deal idle timeout expired"},
	{"creative_deadline_at",
		[]models.EscrowStatus{models.StatusWaitingCreative, models.StatusCreativeChangesNotesPending, models.StatusCreativeChangesRequested},
		"creative deadline expired"},
	{"admin_review_deadline_at",
		[]models.EscrowStatus{models.StatusCreativeSubmitted, models.StatusAdminReview},
		"admin review deadline expired"},
}

func runDealTimeouts(ctx context.Context, dealRepo *repositories.DealRepo, txRepo *repositories.TransactionRepo, dealService *services.DealService, log *zap.Logger) {
	for _, sweep := range timeoutSweeps {
		for _, status := range sweep.statuses {
			deals, err := dealRepo.ListPastDeadline(ctx, sweep.field, status, 0)
			if err != nil {
				log.Error("list timed out deals", zap.String("field", sweep.field), zap.Error(err))
				continue
			}
			for _, deal := range deals {
				log.Info("auto-cancelling timed out deal",
					zap.String("deal_id", deal.ID.String()),
					zap.String("status", string(deal.EscrowStatus)),
					zap.String("deadline", sweep.field),
				)
				if _, err := dealService.Cancel(ctx, deal.ID, nil, "system", sweep.reason); err != nil && !errors.Is(err, escrow.ErrInvalidTransition) {
					log.Error("cancel timed out deal", zap.String("deal_id", deal.ID.String()), zap.Error(err))
				}
			}
		}
	}

	expirePayments(ctx, dealRepo, txRepo, dealService, log)
}

// expirePayments cancels deals whose payment window closed. Partially
// funded deals are refunded right after cancellation so early transfers
// go back to the payer.
func expirePayments(ctx context.Context, dealRepo *repositories.DealRepo, txRepo *repositories.TransactionRepo, dealService *services.DealService, log *zap.Logger) {
	deals, err := dealRepo.ListPastDeadline(ctx, "payment_deadline_at", models.StatusAwaitingPayment, 0)
	if err != nil {
		log.Error("list expired payments", zap.Error(err))
		return
	}

	for _, deal := range deals {
		received := receivedForDeal(ctx, txRepo, deal.ID)

		if _, err := dealService.Cancel(ctx, deal.ID, nil, "system", "payment window expired"); err != nil {
			if !errors.Is(err, escrow.ErrInvalidTransition) {
				log.Error("cancel unpaid deal", zap.String("deal_id", deal.ID.String()), zap.Error(err))
			}
			continue
		}
		log.Info("payment window expired",
			zap.String("deal_id", deal.ID.String()),
			zap.Int64("received_nano", received),
		)

		if received > 0 {
			if _, err := dealService.Refund(ctx, deal.ID, nil, "system", nil); err != nil {
				log.Error("refund partial deposit", zap.String("deal_id", deal.ID.String()), zap.Error(err))
			}
		}
	}
}

func receivedForDeal(ctx context.Context, txRepo *repositories.TransactionRepo, dealID uuid.UUID) int64 {
	rows, err := txRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return 0
	}
	var received int64
	for _, row := range rows {
		if row.Direction == models.TxDirectionIn {
			received += row.ReceivedNano
		}
	}
	return received
}

// Deadline fields and the reminder type sent when they approach.
var reminderSweeps = []struct {
	field    string
	statuses []models.EscrowStatus
	kind     string
}{
	{"idle_expires_at",
		[]models.EscrowStatus{models.StatusDraft, models.StatusWaitingSchedule, models.StatusSchedulingPending},
		models.ReminderIdleExpire},
	{"creative_deadline_at",
		[]models.EscrowStatus{models.StatusWaitingCreative, models.StatusCreativeChangesRequested},
		models.ReminderCreativeDeadline},
	{"admin_review_deadline_at",
		[]models.EscrowStatus{models.StatusAdminReview},
		models.ReminderAdminDeadline},
	{"payment_deadline_at",
		[]models.EscrowStatus{models.StatusAwaitingPayment},
		models.ReminderPaymentDeadline},
}

func runReminders(ctx context.Context, dealRepo *repositories.DealRepo, reminderRepo *repositories.ReminderRepo, publisher events.Publisher, cfg *config.Config, log *zap.Logger) {
	lead := int(cfg.ReminderLeadTime.Seconds())

	for _, sweep := range reminderSweeps {
		for _, status := range sweep.statuses {
			deals, err := dealRepo.ListApproachingDeadline(ctx, sweep.field, status, lead, 0)
			if err != nil {
				log.Error("list approaching deadlines", zap.String("field", sweep.field), zap.Error(err))
				continue
			}
			for _, deal := range deals {
				sent, err := reminderRepo.InsertIfAbsent(ctx, deal.ID, sweep.kind)
				if err != nil {
					log.Error("record reminder", zap.String("deal_id", deal.ID.String()), zap.Error(err))
					continue
				}
				if !sent {
					continue
				}
				_ = publisher.Publish(ctx, "events:deal", events.Event{
					Type: events.EventReminderSent,
					Payload: map[string]any{
						"deal_id": deal.ID.String(),
						"type":    sweep.kind,
					},
				})
				log.Info("reminder_sent",
					zap.String("deal_id", deal.ID.String()),
					zap.String("type", sweep.kind),
				)
			}
		}
	}
}

func runPosting(ctx context.Context, dealRepo *repositories.DealRepo, dealService *services.DealService, log *zap.Logger) {
	// Funded deals with an agreed slot move into the posting queue.
	funded, err := dealRepo.ListByStatus(ctx, []models.EscrowStatus{models.StatusFundsConfirmed}, 0)
	if err != nil {
		log.Error("list funded deals", zap.Error(err))
		return
	}
	for _, deal := range funded {
		if deal.ScheduledAt == nil {
			continue
		}
		if _, err := dealService.ConfirmSlot(ctx, deal.ID); err != nil && !errors.Is(err, escrow.ErrInvalidTransition) {
			log.Error("confirm slot", zap.String("deal_id", deal.ID.String()), zap.Error(err))
		}
	}

	// Scheduled deals whose slot arrived get posted.
	due, err := dealRepo.ListPastDeadline(ctx, "scheduled_at", models.StatusScheduled, 0)
	if err != nil {
		log.Error("list due deals", zap.Error(err))
		return
	}
	for _, deal := range due {
		log.Info("posting deal", zap.String("deal_id", deal.ID.String()))
		if _, err := dealService.StartPosting(ctx, deal.ID); err != nil && !errors.Is(err, escrow.ErrInvalidTransition) {
			log.Error("post deal", zap.String("deal_id", deal.ID.String()), zap.Error(err))
		}
	}
}

func runDeliveryChecks(ctx context.Context, dealRepo *repositories.DealRepo, checker *postcheck.Checker, dealService *services.DealService, log *zap.Logger) {
	deals, err := dealRepo.ListByStatus(ctx, []models.EscrowStatus{models.StatusPostedVerifying}, 0)
	if err != nil {
		log.Error("list deals in verification", zap.Error(err))
		return
	}

	for _, deal := range deals {
		if deal.PublishedMessageID == nil || deal.ListingSnapshot.ChannelUsername == "" {
			continue
		}

		status, err := checker.CheckPost(ctx, deal.ListingSnapshot.ChannelUsername, *deal.PublishedMessageID)
		if err != nil {
			log.Warn("post check failed", zap.String("deal_id", deal.ID.String()), zap.Error(err))
			continue
		}

		if !status.Present {
			log.Warn("post deleted during hold period",
				zap.String("deal_id", deal.ID.String()),
				zap.Int64("message_id", *deal.PublishedMessageID),
			)
			_ = dealRepo.SetDeliveryError(ctx, deal.ID, "post deleted during hold period")
			if _, err := dealService.Refund(ctx, deal.ID, nil, "system", nil); err != nil {
				log.Error("refund after deleted post", zap.String("deal_id", deal.ID.String()), zap.Error(err))
			}
			continue
		}

		brief := ""
		if deal.Brief != nil {
			brief = *deal.Brief
		}
		if !postcheck.MatchesCreative(status.Text, brief) {
			// Edited posts are flagged for manual review, not auto-refunded.
			log.Warn("post content diverged from creative", zap.String("deal_id", deal.ID.String()))
			_ = dealRepo.SetDeliveryError(ctx, deal.ID, "post content diverged from approved creative")
			continue
		}

		if deal.DeliveryVerifiedAt == nil {
			if err := dealService.MarkDeliveryVerified(ctx, deal.ID); err != nil {
				log.Error("mark delivery verified", zap.String("deal_id", deal.ID.String()), zap.Error(err))
			}
		}

		time.Sleep(1 * time.Second) // rate limiting against t.me
	}
}

// runAdminSync refreshes the mirrored Telegram admin lists for every
// channel with an open deal.
func runAdminSync(ctx context.Context, dealRepo *repositories.DealRepo, listingRepo *repositories.ListingRepo, adminRepo *repositories.AdminRepo, botClient *services.BotClient, lockMgr *locks.Manager, log *zap.Logger) {
	lock, ok, err := lockMgr.TryAcquire(ctx, locks.NameAdminsSync)
	if err != nil {
		log.Error("acquire admins-sync lock", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	defer lock.Release(ctx)

	channelIDs, err := dealRepo.DistinctChannelIDs(ctx)
	if err != nil {
		log.Error("list channels for admin sync", zap.Error(err))
		return
	}

	for _, channelID := range channelIDs {
		username, err := listingRepo.ChannelUsername(ctx, channelID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				log.Error("resolve channel username", zap.String("channel_id", channelID.String()), zap.Error(err))
			}
			continue
		}

		admins, err := botClient.GetAdmins(ctx, username)
		if err != nil {
			log.Warn("fetch channel admins", zap.String("channel", username), zap.Error(err))
			continue
		}

		rows := make([]models.ChannelTelegramAdmin, 0, len(admins))
		for _, a := range admins {
			username := a.Username
			display := a.DisplayName
			rows = append(rows, models.ChannelTelegramAdmin{
				ChannelID:       channelID,
				TelegramUserID:  a.TelegramUserID,
				Username:        &username,
				DisplayName:     &display,
				CanPostMessages: a.CanPostMessages,
				IsOwner:         a.IsOwner,
			})
		}
		if err := adminRepo.ReplaceForChannel(ctx, channelID, rows); err != nil {
			log.Error("replace channel admins", zap.String("channel_id", channelID.String()), zap.Error(err))
			continue
		}
		log.Info("admins synced", zap.String("channel", username), zap.Int("count", len(rows)))
	}
}
