package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/address"
	tongo "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/events"
	"github.com/promoplace/backend/internal/locks"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/ton"
)

// chainScanHorizon bounds how far back the confirmation scan pages past a
// row's creation time. Broadcasts land within minutes; an hour of slack
// absorbs clock skew between the node and the database.
const chainScanHorizon = time.Hour

// PayoutRunner executes a single PENDING outgoing row. Implemented by the
// payout executor; injected as an interface to keep the packages apart.
type PayoutRunner interface {
	Execute(ctx context.Context, transactionID uuid.UUID) error
}

// Store interfaces cover exactly what the watcher touches, so the repos
// stay swappable in tests.
type outgoingTxStore interface {
	ListByStatus(ctx context.Context, status string, direction string, limit int) ([]models.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error
	AdoptBroadcast(ctx context.Context, id uuid.UUID, externalTxHash string) (bool, error)
	PrepareRetry(ctx context.Context, id uuid.UUID, newKey string) (bool, error)
	HasOpenOutgoing(ctx context.Context, dealID uuid.UUID) (bool, error)
	SetExternalTxHash(ctx context.Context, id uuid.UUID, externalTxHash string) error
}

type escrowWalletStore interface {
	GetByDealID(ctx context.Context, dealID uuid.UUID) (*models.EscrowWallet, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type chainScanner interface {
	FindTransferByComment(ctx context.Context, addr *address.Address, comment string, horizon time.Time) (string, bool, error)
}

// OutgoingWatcher drives broadcast outgoing rows to completion: it scans
// the chain for the transfer carrying each row's idempotency key, confirms
// and completes found rows, fails timed-out ones, and schedules retries
// with fresh keys up to the attempt limit.
type OutgoingWatcher struct {
	scanner    chainScanner
	txRepo     outgoingTxStore
	walletRepo escrowWalletStore
	locks      *locks.Manager
	publisher  events.Publisher
	runner     PayoutRunner
	cfg        *config.Config
	log        *zap.Logger
}

func NewOutgoingWatcher(
	api tongo.APIClientWrapped,
	txRepo *repositories.TransactionRepo,
	walletRepo *repositories.WalletRepo,
	lockMgr *locks.Manager,
	publisher events.Publisher,
	runner PayoutRunner,
	cfg *config.Config,
	log *zap.Logger,
) *OutgoingWatcher {
	return &OutgoingWatcher{
		scanner:    ton.NewScanner(api),
		txRepo:     txRepo,
		walletRepo: walletRepo,
		locks:      lockMgr,
		publisher:  publisher,
		runner:     runner,
		cfg:        cfg,
		log:        log.Named("outgoing-watcher"),
	}
}

// RunCycle executes one pass under the cluster-wide outgoing-transfers
// lock: execute pending rows, confirm broadcast ones, retry failed ones.
func (w *OutgoingWatcher) RunCycle(ctx context.Context) error {
	lock, ok, err := w.locks.TryAcquire(ctx, locks.NameOutgoingTransfers)
	if err != nil {
		return err
	}
	if !ok {
		w.log.Debug("outgoing-transfers lock held elsewhere, skipping cycle")
		return nil
	}
	defer lock.Release(ctx)

	w.executePending(ctx)
	w.confirmBroadcast(ctx)
	w.retryFailed(ctx)
	return nil
}

func (w *OutgoingWatcher) executePending(ctx context.Context) {
	rows, err := w.txRepo.ListByStatus(ctx, models.TxStatusPending, models.TxDirectionOut, 0)
	if err != nil {
		w.log.Error("list pending outgoing", zap.Error(err))
		return
	}
	for _, row := range rows {
		if err := w.runner.Execute(ctx, row.ID); err != nil {
			w.log.Error("execute outgoing row",
				zap.String("transaction_id", row.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (w *OutgoingWatcher) confirmBroadcast(ctx context.Context) {
	rows, err := w.txRepo.ListByStatus(ctx, models.TxStatusAwaitingConfirmation, models.TxDirectionOut, 0)
	if err != nil {
		w.log.Error("list awaiting-confirmation outgoing", zap.Error(err))
		return
	}
	for i := range rows {
		row := &rows[i]
		hash, found, err := w.findOnChain(ctx, row)
		if err != nil {
			w.log.Error("chain scan failed", zap.String("transaction_id", row.ID.String()), zap.Error(err))
			continue
		}
		if found {
			w.confirmAndComplete(ctx, row, hash)
			continue
		}
		if time.Since(row.UpdatedAt) > w.cfg.ConfirmationTimeout {
			w.fail(ctx, row, "CONFIRMATION_TIMEOUT", "transfer not observed on chain within confirmation window")
		}
	}
}

func (w *OutgoingWatcher) confirmAndComplete(ctx context.Context, row *models.Transaction, hash string) {
	// Rows that reached AWAITING_CONFIRMATION without a hash (the node
	// returned no transaction at broadcast time) get the recovered one
	// persisted before any status change.
	if err := w.txRepo.SetExternalTxHash(ctx, row.ID, hash); err != nil {
		w.log.Error("record tx hash", zap.String("transaction_id", row.ID.String()), zap.Error(err))
		return
	}

	if err := w.txRepo.UpdateStatus(ctx, row.ID, models.TxStatusConfirmed); err != nil {
		w.log.Error("mark confirmed", zap.String("transaction_id", row.ID.String()), zap.Error(err))
		return
	}
	w.log.Info(w.eventName(row, "confirmed"),
		zap.String("transaction_id", row.ID.String()),
		zap.String("tx_hash", hash),
		zap.Int64("amount_nano", row.AmountNano),
	)

	if err := w.txRepo.UpdateStatus(ctx, row.ID, models.TxStatusCompleted); err != nil {
		w.log.Error("mark completed", zap.String("transaction_id", row.ID.String()), zap.Error(err))
		return
	}
	w.log.Info(w.eventName(row, "completed"),
		zap.String("transaction_id", row.ID.String()),
		zap.String("tx_hash", hash),
	)

	if row.Type != models.TxTypeFee {
		payload := map[string]any{
			"transaction_id": row.ID.String(),
			"type":           row.Type,
			"tx_hash":        hash,
			"amount_nano":    row.AmountNano,
		}
		if row.DealID != nil {
			payload["deal_id"] = row.DealID.String()
		}
		_ = w.publisher.Publish(ctx, "events:deal", events.Event{Type: events.EventPayoutCompleted, Payload: payload})
	}

	w.maybeCloseWallet(ctx, row)
}

// maybeCloseWallet closes the deal's escrow wallet once every outgoing row
// has reached a terminal status.
func (w *OutgoingWatcher) maybeCloseWallet(ctx context.Context, row *models.Transaction) {
	if row.DealID == nil {
		return
	}
	open, err := w.txRepo.HasOpenOutgoing(ctx, *row.DealID)
	if err != nil || open {
		return
	}
	wallet, err := w.walletRepo.GetByDealID(ctx, *row.DealID)
	if err != nil {
		return
	}
	if err := w.walletRepo.UpdateStatus(ctx, wallet.ID, models.WalletStatusClosed); err != nil {
		w.log.Error("close wallet", zap.String("wallet_id", wallet.ID.String()), zap.Error(err))
	}
}

func (w *OutgoingWatcher) fail(ctx context.Context, row *models.Transaction, code, msg string) {
	if err := w.txRepo.MarkFailed(ctx, row.ID, code, msg); err != nil {
		w.log.Error("mark failed", zap.String("transaction_id", row.ID.String()), zap.Error(err))
		return
	}
	w.log.Warn(w.eventName(row, "failed"),
		zap.String("transaction_id", row.ID.String()),
		zap.String("error_code", code),
		zap.Int("attempt", row.Attempt),
	)
	if row.Type != models.TxTypeFee {
		payload := map[string]any{
			"transaction_id": row.ID.String(),
			"type":           row.Type,
			"error_code":     code,
			"attempt":        row.Attempt,
		}
		if row.DealID != nil {
			payload["deal_id"] = row.DealID.String()
		}
		_ = w.publisher.Publish(ctx, "events:deal", events.Event{Type: events.EventPayoutFailed, Payload: payload})
	}
}

// retryFailed re-queues failed rows with a fresh idempotency key. Before
// retrying, the chain is re-checked under the row's current key: a
// broadcast that timed out may still have landed, and retrying it blindly
// would double-pay.
func (w *OutgoingWatcher) retryFailed(ctx context.Context) {
	rows, err := w.txRepo.ListByStatus(ctx, models.TxStatusFailed, models.TxDirectionOut, 0)
	if err != nil {
		w.log.Error("list failed outgoing", zap.Error(err))
		return
	}
	for i := range rows {
		row := &rows[i]

		hash, found, err := w.findOnChain(ctx, row)
		if err != nil {
			w.log.Error("pre-retry chain scan failed", zap.String("transaction_id", row.ID.String()), zap.Error(err))
			continue
		}
		if found {
			if ok, err := w.txRepo.AdoptBroadcast(ctx, row.ID, hash); err != nil || !ok {
				continue
			}
			w.log.Info(w.eventName(row, "confirmed"),
				zap.String("transaction_id", row.ID.String()),
				zap.String("tx_hash", hash),
				zap.Bool("adopted", true),
			)
			continue
		}

		if row.Attempt+1 >= w.cfg.PayoutMaxAttempts {
			if err := w.txRepo.UpdateStatus(ctx, row.ID, models.TxStatusCanceled); err != nil {
				w.log.Error("cancel exhausted row", zap.String("transaction_id", row.ID.String()), zap.Error(err))
				continue
			}
			w.log.Error(w.eventName(row, "failed"),
				zap.String("transaction_id", row.ID.String()),
				zap.Int("attempt", row.Attempt),
				zap.Bool("exhausted", true),
			)
			continue
		}

		newKey := fmt.Sprintf("payout:%s:%d", row.ID, row.Attempt+1)
		ok, err := w.txRepo.PrepareRetry(ctx, row.ID, newKey)
		if err != nil || !ok {
			continue
		}
		if err := w.runner.Execute(ctx, row.ID); err != nil {
			w.log.Error("retry outgoing row", zap.String("transaction_id", row.ID.String()), zap.Error(err))
		}
	}
}

// findOnChain scans the escrow wallet's recent transactions for an
// outgoing transfer carrying the row's idempotency key as its comment.
func (w *OutgoingWatcher) findOnChain(ctx context.Context, row *models.Transaction) (string, bool, error) {
	if row.DealID == nil {
		return "", false, nil
	}
	wallet, err := w.walletRepo.GetByDealID(ctx, *row.DealID)
	if err != nil {
		return "", false, fmt.Errorf("load wallet for deal %s: %w", row.DealID, err)
	}
	addr, err := address.ParseAddr(wallet.Address)
	if err != nil {
		return "", false, fmt.Errorf("parse wallet address: %w", err)
	}

	return w.scanner.FindTransferByComment(ctx, addr, row.IdempotencyKey, row.CreatedAt.Add(-chainScanHorizon))
}

// eventName maps a row type to its log event family: fee-revenue sweeps
// log under fee_revenue_*, everything else under outgoing_*.
func (w *OutgoingWatcher) eventName(row *models.Transaction, suffix string) string {
	if row.Type == models.TxTypeFee {
		return "fee_revenue_" + suffix
	}
	return "outgoing_" + suffix
}
