// Package payout broadcasts outgoing escrow transfers: publisher payouts,
// advertiser refunds, and fee-revenue sweeps. Every broadcast carries the
// ledger row's idempotency key as its on-chain comment so the outgoing
// watcher can verify it independently of the executor's fate.
package payout

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tongo "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/fees"
	"github.com/promoplace/backend/internal/keystore"
	"github.com/promoplace/backend/internal/locks"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/ton"
)

// chainScanHorizon bounds how far back the pre-broadcast landed check pages
// past a row's creation time. Broadcasts land within minutes; an hour of
// slack absorbs clock skew between the node and the database.
const chainScanHorizon = time.Hour

// ErrBroadcastFailure means the send definitively failed before reaching
// the network; the row can be retried with a fresh key immediately.
var ErrBroadcastFailure = errors.New("broadcast failed")

// ErrUnverifiedBroadcast means the send timed out with an unknown outcome.
// The row must not be retried until the chain has been queried for the
// attempted transfer.
var ErrUnverifiedBroadcast = errors.New("broadcast outcome unverified")

// Error codes persisted on failed rows.
const (
	codeBroadcastFailure    = "BROADCAST_FAILURE"
	codeBroadcastUnverified = "BROADCAST_UNVERIFIED"
	codeFeeBelowMinimum     = "FEE_BELOW_MINIMUM"
)

// Store interfaces cover exactly what the executor touches, so the repos
// stay swappable in tests.
type txStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	Create(ctx context.Context, t *models.Transaction) error
	MarkBroadcast(ctx context.Context, id uuid.UUID, externalTxHash string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	AdoptBroadcast(ctx context.Context, id uuid.UUID, externalTxHash string) (bool, error)
}

type walletStore interface {
	GetByDealID(ctx context.Context, dealID uuid.UUID) (*models.EscrowWallet, error)
	GetKey(ctx context.Context, walletID uuid.UUID) (*models.EscrowWalletKey, error)
}

type feeConfigStore interface {
	GetFees(ctx context.Context) (models.FeesConfig, error)
	GetLiquidity(ctx context.Context) (models.LiquidityConfig, error)
}

// chainScanner finds a landed transfer by its idempotency-key comment.
// Implemented by ton.Scanner; injected as an interface to keep the packages
// apart.
type chainScanner interface {
	FindTransferByComment(ctx context.Context, addr *address.Address, comment string, horizon time.Time) (string, bool, error)
}

// Executor signs and broadcasts a single PENDING outgoing row.
type Executor struct {
	api        tongo.APIClientWrapped
	scanner    chainScanner
	txRepo     txStore
	walletRepo walletStore
	configRepo feeConfigStore
	ks         *keystore.Keystore
	locks      *locks.Manager
	cfg        *config.Config
	log        *zap.Logger
}

func NewExecutor(
	api tongo.APIClientWrapped,
	txRepo *repositories.TransactionRepo,
	walletRepo *repositories.WalletRepo,
	configRepo *repositories.ConfigRepo,
	ks *keystore.Keystore,
	lockMgr *locks.Manager,
	cfg *config.Config,
	log *zap.Logger,
) *Executor {
	return &Executor{
		api:        api,
		scanner:    ton.NewScanner(api),
		txRepo:     txRepo,
		walletRepo: walletRepo,
		configRepo: configRepo,
		ks:         ks,
		locks:      lockMgr,
		cfg:        cfg,
		log:        log.Named("payout-executor"),
	}
}

// Execute broadcasts the row if it is still PENDING. It is safe to call
// concurrently and repeatedly: a per-transaction advisory lock serializes
// executors, and a row past PENDING is a no-op.
func (e *Executor) Execute(ctx context.Context, transactionID uuid.UUID) error {
	lock, ok, err := e.locks.TryAcquire(ctx, locks.PayoutName(transactionID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer lock.Release(ctx)

	row, err := e.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", transactionID, err)
	}
	if row.Status != models.TxStatusPending {
		return nil
	}
	if row.Direction != models.TxDirectionOut {
		return fmt.Errorf("transaction %s is not outgoing", transactionID)
	}
	if row.DealID == nil {
		return fmt.Errorf("transaction %s has no deal; cannot resolve escrow wallet", transactionID)
	}
	if row.DestinationAddress == nil || *row.DestinationAddress == "" {
		return fmt.Errorf("transaction %s has no destination address", transactionID)
	}

	dealLock, ok, err := e.locks.TryAcquire(ctx, locks.EscrowReleaseName(*row.DealID))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer dealLock.Release(ctx)

	amount := row.AmountNano
	if row.Type == models.TxTypeEscrowRelease {
		amount, err = e.applyFees(ctx, row)
		if err != nil {
			if errors.Is(err, fees.ErrFeeBelowMinimum) {
				_ = e.txRepo.MarkFailed(ctx, row.ID, codeFeeBelowMinimum, err.Error())
				e.log.Warn("outgoing_failed",
					zap.String("transaction_id", row.ID.String()),
					zap.String("error_code", codeFeeBelowMinimum),
				)
				return nil
			}
			return err
		}
	}

	return e.broadcast(ctx, row, amount)
}

// applyFees computes the fee breakdown for a release row and records the
// service fee as its own ledger row. Returns the net amount to broadcast.
// The network fee stays in the escrow wallet to cover gas.
func (e *Executor) applyFees(ctx context.Context, row *models.Transaction) (int64, error) {
	feesCfg, err := e.configRepo.GetFees(ctx)
	if err != nil {
		return 0, fmt.Errorf("load fees config: %w", err)
	}

	breakdown, err := fees.ComputeFees(row.AmountNano, feesCfg)
	if err != nil {
		return 0, err
	}

	e.log.Info("payout fee breakdown",
		zap.String("transaction_id", row.ID.String()),
		zap.Int64("gross_nano", row.AmountNano),
		zap.Int64("service_fee_nano", breakdown.ServiceFeeNano),
		zap.Int64("network_fee_nano", breakdown.NetworkFeeNano),
		zap.Int64("net_nano", breakdown.NetAmountNano),
	)

	if breakdown.ServiceFeeNano > 0 {
		if err := e.recordServiceFee(ctx, row, breakdown.ServiceFeeNano); err != nil {
			return 0, err
		}
	}
	return breakdown.NetAmountNano, nil
}

// recordServiceFee creates the fee ledger row for a deal. Above the sweep
// threshold and with a destination configured it becomes an OUT transfer
// the executor broadcasts like any payout; otherwise the fee stays in the
// escrow wallet and is recorded as a completed internal row.
func (e *Executor) recordServiceFee(ctx context.Context, release *models.Transaction, feeNano int64) error {
	liq, err := e.configRepo.GetLiquidity(ctx)
	if err != nil {
		return fmt.Errorf("load liquidity config: %w", err)
	}

	fee := &models.Transaction{
		Type:           models.TxTypeFee,
		Currency:       release.Currency,
		DealID:         release.DealID,
		AmountNano:     feeNano,
		IdempotencyKey: fmt.Sprintf("fee:%s", release.DealID),
	}
	if liq.SweepDestinationAddress != nil && feeNano >= liq.SweepThresholdNano {
		fee.Direction = models.TxDirectionOut
		fee.Status = models.TxStatusPending
		fee.DestinationAddress = liq.SweepDestinationAddress
	} else {
		fee.Direction = models.TxDirectionInternal
		fee.Status = models.TxStatusCompleted
	}

	err = e.txRepo.Create(ctx, fee)
	if errors.Is(err, repositories.ErrDuplicateExternalEvent) {
		// Fee already recorded by an earlier attempt.
		return nil
	}
	return err
}

func (e *Executor) broadcast(ctx context.Context, row *models.Transaction, amountNano int64) error {
	wallet, err := e.walletRepo.GetByDealID(ctx, *row.DealID)
	if err != nil {
		return fmt.Errorf("load escrow wallet for deal %s: %w", row.DealID, err)
	}
	src, err := address.ParseAddr(wallet.Address)
	if err != nil {
		return fmt.Errorf("parse wallet address %q: %w", wallet.Address, err)
	}

	// A prior attempt may have landed without the row recording it, for
	// example when the process died between the send and MarkBroadcast,
	// leaving the row PENDING. Check the chain under the row's key before
	// signing anything; a landed transfer is adopted, never re-sent.
	landedHash, landed, err := e.scanner.FindTransferByComment(ctx, src, row.IdempotencyKey, row.CreatedAt.Add(-chainScanHorizon))
	if err != nil {
		return fmt.Errorf("pre-broadcast chain scan: %w", err)
	}
	if landed {
		if _, err := e.txRepo.AdoptBroadcast(ctx, row.ID, landedHash); err != nil {
			return err
		}
		e.log.Info(e.eventName(row, "confirmed"),
			zap.String("transaction_id", row.ID.String()),
			zap.String("tx_hash", landedHash),
			zap.Bool("adopted", true),
		)
		return nil
	}

	key, err := e.walletRepo.GetKey(ctx, wallet.ID)
	if err != nil {
		return fmt.Errorf("load wallet key: %w", err)
	}

	signer, err := ton.OpenWallet(e.api, e.ks, key.EncryptedKey)
	if err != nil {
		return fmt.Errorf("open signing wallet: %w", err)
	}

	dst, err := address.ParseAddr(*row.DestinationAddress)
	if err != nil {
		return fmt.Errorf("parse destination %q: %w", *row.DestinationAddress, err)
	}

	// The idempotency key rides along as the transfer comment; it is the
	// only durable link between this row and the on-chain event.
	transfer, err := signer.BuildTransfer(dst, tlb.FromNanoTON(big.NewInt(amountNano)), false, row.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("build transfer: %w", err)
	}

	bctx, cancel := context.WithTimeout(ctx, e.cfg.BroadcastTimeout)
	defer cancel()

	chainTx, _, err := signer.SendWaitTransaction(bctx, transfer)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// The message may still be in flight. The row must not be
			// retried until the chain has been checked under this key.
			_ = e.txRepo.MarkFailed(ctx, row.ID, codeBroadcastUnverified, err.Error())
			e.log.Warn(e.eventName(row, "failed"),
				zap.String("transaction_id", row.ID.String()),
				zap.String("error_code", codeBroadcastUnverified),
				zap.Int("attempt", row.Attempt),
			)
			return fmt.Errorf("%w: %s", ErrUnverifiedBroadcast, row.ID)
		}
		_ = e.txRepo.MarkFailed(ctx, row.ID, codeBroadcastFailure, err.Error())
		e.log.Warn(e.eventName(row, "failed"),
			zap.String("transaction_id", row.ID.String()),
			zap.String("error_code", codeBroadcastFailure),
			zap.Int("attempt", row.Attempt),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s", ErrBroadcastFailure, err)
	}

	hash := ""
	if chainTx != nil {
		hash = hex.EncodeToString(chainTx.Hash)
	}
	if hash == "" {
		// Broadcast went through but the node returned no transaction; the
		// watcher will recover the hash by scanning for the comment.
		if err := e.txRepo.UpdateStatus(ctx, row.ID, models.TxStatusAwaitingConfirmation); err != nil {
			return err
		}
		e.log.Warn(e.eventName(row, "missing_tx_hash"),
			zap.String("transaction_id", row.ID.String()),
			zap.Int64("amount_nano", amountNano),
		)
		return nil
	}

	marked, err := e.txRepo.MarkBroadcast(ctx, row.ID, hash)
	if err != nil {
		return err
	}
	if !marked {
		e.log.Warn("broadcast already recorded for row",
			zap.String("transaction_id", row.ID.String()),
			zap.String("tx_hash", hash),
		)
		return nil
	}

	e.log.Info(e.eventName(row, "broadcasted"),
		zap.String("transaction_id", row.ID.String()),
		zap.String("tx_hash", hash),
		zap.Int64("amount_nano", amountNano),
		zap.String("destination", *row.DestinationAddress),
		zap.Int("attempt", row.Attempt),
	)
	return nil
}

func (e *Executor) eventName(row *models.Transaction, suffix string) string {
	if row.Type == models.TxTypeFee {
		return "fee_revenue_" + suffix
	}
	return "outgoing_" + suffix
}
