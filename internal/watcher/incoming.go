package watcher

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tongo "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/escrow"
	"github.com/promoplace/backend/internal/events"
	"github.com/promoplace/backend/internal/locks"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/ton"
)

const incomingCursorPrefix = "ton:watcher:cursor:"

// IncomingWatcher polls every active escrow deposit address for new
// transactions and credits them against open deposit rows.
type IncomingWatcher struct {
	api          tongo.APIClientWrapped
	pool         *pgxpool.Pool
	rdb          *redis.Client
	walletRepo   *repositories.WalletRepo
	txRepo       *repositories.TransactionRepo
	transferRepo *repositories.TransferRepo
	sm           *escrow.StateMachine
	locks        *locks.Manager
	publisher    events.Publisher
	log          *zap.Logger
}

func NewIncomingWatcher(
	api tongo.APIClientWrapped,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	walletRepo *repositories.WalletRepo,
	txRepo *repositories.TransactionRepo,
	transferRepo *repositories.TransferRepo,
	sm *escrow.StateMachine,
	lockMgr *locks.Manager,
	publisher events.Publisher,
	log *zap.Logger,
) *IncomingWatcher {
	return &IncomingWatcher{
		api:          api,
		pool:         pool,
		rdb:          rdb,
		walletRepo:   walletRepo,
		txRepo:       txRepo,
		transferRepo: transferRepo,
		sm:           sm,
		locks:        lockMgr,
		publisher:    publisher,
		log:          log.Named("incoming-watcher"),
	}
}

// RunCycle executes one reconciliation pass under the cluster-wide
// incoming-payments lock. If another instance holds the lock the cycle is
// skipped, not queued.
func (w *IncomingWatcher) RunCycle(ctx context.Context) error {
	lock, ok, err := w.locks.TryAcquire(ctx, locks.NameIncomingPayments)
	if err != nil {
		return err
	}
	if !ok {
		w.log.Debug("incoming-payments lock held elsewhere, skipping cycle")
		return nil
	}
	defer lock.Release(ctx)

	addrs, err := w.walletRepo.ListActiveAddresses(ctx)
	if err != nil {
		return fmt.Errorf("list active addresses: %w", err)
	}

	for _, a := range addrs {
		if err := w.pollAddress(ctx, a); err != nil {
			w.log.Error("poll address failed", zap.String("address", a), zap.Error(err))
		}
	}
	return nil
}

func (w *IncomingWatcher) pollAddress(ctx context.Context, addrStr string) error {
	addr, err := address.ParseAddr(addrStr)
	if err != nil {
		return fmt.Errorf("parse address %q: %w", addrStr, err)
	}

	account, err := ton.AccountState(ctx, w.api, addr)
	if err != nil {
		return err
	}
	if account == nil {
		return nil
	}

	cursorKey := incomingCursorPrefix + addrStr
	cursorLT := w.loadCursor(ctx, cursorKey)
	if account.LastTxLT <= cursorLT {
		return nil
	}

	txs, err := ton.FetchNewTransactions(ctx, w.api, addr, account, cursorLT)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		if err := w.processTransaction(ctx, addrStr, tx); err != nil {
			// Stop before advancing the cursor so the event is retried
			// next cycle.
			return err
		}
		cursorLT = tx.LT
		w.saveCursor(ctx, cursorKey, cursorLT)
	}
	return nil
}

func (w *IncomingWatcher) processTransaction(ctx context.Context, addrStr string, tx *tlb.Transaction) error {
	if tx.IO.In == nil {
		return nil
	}
	in, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || in == nil || in.Bounced {
		return nil
	}
	amount := in.Amount.Nano().Int64()
	if amount <= 0 {
		return nil
	}

	transfer := &models.TonTransfer{
		TxHash:      hex.EncodeToString(tx.Hash),
		LT:          tx.LT,
		FromAddress: in.SrcAddr.String(),
		ToAddress:   addrStr,
		AmountNano:  amount,
		ObservedAt:  time.Unix(int64(tx.Now), 0).UTC(),
	}
	if c := ton.ExtractComment(in); c != "" {
		transfer.Comment = &c
	}

	inserted, err := w.transferRepo.Insert(ctx, transfer)
	if err != nil {
		return fmt.Errorf("record transfer %s: %w", transfer.TxHash, err)
	}

	var stored *models.TonTransfer
	if !inserted {
		// Seen before. A credit that failed after the insert left the
		// stored row unmatched, so it gets another pass through matching;
		// the ledger's external-event uniqueness keeps replays safe.
		stored, err = w.transferRepo.GetByHash(ctx, transfer.TxHash)
		if err != nil {
			return fmt.Errorf("load recorded transfer %s: %w", transfer.TxHash, err)
		}
	}

	next := transferForMatching(inserted, transfer, stored)
	if next == nil {
		return nil
	}
	return w.matchTransfer(ctx, next)
}

// transferForMatching picks the row that proceeds to deposit matching after
// an insert attempt: the fresh row when it was inserted, the stored row when
// a prior cycle recorded it but never matched it, nil once matched.
func transferForMatching(inserted bool, fresh, stored *models.TonTransfer) *models.TonTransfer {
	if inserted {
		return fresh
	}
	if stored == nil || stored.Matched {
		return nil
	}
	return stored
}

func (w *IncomingWatcher) matchTransfer(ctx context.Context, transfer *models.TonTransfer) error {
	open, err := w.txRepo.FindOpenDepositsForAddress(ctx, transfer.ToAddress, "TON")
	if err != nil {
		return fmt.Errorf("find open deposits: %w", err)
	}

	candidate, outcome := SelectDepositCandidate(open, transfer)
	switch outcome {
	case MatchNone:
		w.log.Warn("incoming_payment",
			zap.String("tx_hash", transfer.TxHash),
			zap.String("to_address", transfer.ToAddress),
			zap.Int64("amount_nano", transfer.AmountNano),
			zap.Bool("matched", false),
		)
		return nil
	case MatchAmbiguous:
		w.log.Warn("ambiguous_outgoing_match",
			zap.String("tx_hash", transfer.TxHash),
			zap.String("to_address", transfer.ToAddress),
			zap.Int64("amount_nano", transfer.AmountNano),
			zap.Int("open_rows", len(open)),
		)
		return nil
	}

	return w.credit(ctx, candidate, transfer)
}

// credit applies the transfer to the matched deposit row. A full payment
// commits the credit atomically with the AWAITING_PAYMENT to
// FUNDS_CONFIRMED transition; a partial payment only updates the ledger
// row and leaves the deal where it is.
func (w *IncomingWatcher) credit(ctx context.Context, cand *models.Transaction, transfer *models.TonTransfer) error {
	full := cand.ReceivedNano+transfer.AmountNano >= cand.AmountNano

	if full && cand.DealID != nil {
		_, err := w.sm.Transition(ctx, *cand.DealID, models.PaymentAwaitingStatuses, models.StatusFundsConfirmed, nil, "system",
			func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
				return w.txRepo.CreditDeposit(ctx, tx, cand.ID, transfer.AmountNano, transfer.TxHash, transfer.FromAddress, models.TxStatusConfirmed)
			})
		if err != nil {
			if errors.Is(err, repositories.ErrDuplicateExternalEvent) {
				w.log.Info("transfer already credited", zap.String("tx_hash", transfer.TxHash))
				return nil
			}
			var invalid *escrow.InvalidTransitionError
			if errors.As(err, &invalid) {
				// Deal moved out of AWAITING_PAYMENT (canceled, expired)
				// before funds arrived. Leave the transfer unmatched for
				// the refund path.
				w.log.Warn("incoming_payment",
					zap.String("tx_hash", transfer.TxHash),
					zap.String("deal_id", cand.DealID.String()),
					zap.String("deal_status", string(invalid.Current)),
					zap.Bool("matched", false),
				)
				return nil
			}
			return err
		}
	} else {
		status := models.TxStatusPartial
		if full {
			status = models.TxStatusConfirmed
		}
		err := w.txRepo.CreditDeposit(ctx, w.pool, cand.ID, transfer.AmountNano, transfer.TxHash, transfer.FromAddress, status)
		if err != nil {
			if errors.Is(err, repositories.ErrDuplicateExternalEvent) {
				return nil
			}
			return err
		}
	}

	if err := w.transferRepo.MarkMatched(ctx, transfer.TxHash); err != nil {
		w.log.Error("mark transfer matched", zap.String("tx_hash", transfer.TxHash), zap.Error(err))
	}

	eventType := events.EventPaymentPartial
	if full {
		eventType = events.EventPaymentReceived
	}
	payload := map[string]any{
		"transaction_id": cand.ID.String(),
		"tx_hash":        transfer.TxHash,
		"amount_nano":    transfer.AmountNano,
	}
	if cand.DealID != nil {
		payload["deal_id"] = cand.DealID.String()
	}
	_ = w.publisher.Publish(ctx, "events:deal", events.Event{Type: eventType, Payload: payload})

	w.log.Info("incoming_payment",
		zap.String("tx_hash", transfer.TxHash),
		zap.String("transaction_id", cand.ID.String()),
		zap.Int64("amount_nano", transfer.AmountNano),
		zap.Bool("matched", true),
		zap.Bool("full", full),
	)
	return nil
}

func (w *IncomingWatcher) loadCursor(ctx context.Context, key string) uint64 {
	val, err := w.rdb.Get(ctx, key).Result()
	if err != nil {
		return 0
	}
	lt, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0
	}
	return lt
}

func (w *IncomingWatcher) saveCursor(ctx context.Context, key string, lt uint64) {
	if err := w.rdb.Set(ctx, key, strconv.FormatUint(lt, 10), 0).Err(); err != nil {
		w.log.Error("save cursor", zap.String("key", key), zap.Error(err))
	}
}
