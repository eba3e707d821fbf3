package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

// ErrDuplicateExternalEvent is returned when a ledger write collides with an
// already-recorded external tx hash or idempotency key. Callers treat it as
// "already applied", not as a failure.
var ErrDuplicateExternalEvent = errors.New("external event already recorded")

const txColumns = `
	id, type, direction, status, amount_nano, received_nano, currency,
	deal_id, channel_id, counterparty_user_id, deposit_address, destination_address,
	external_tx_hash, idempotency_key, attempt,
	expected_observed_after, expected_observed_before,
	error_code, error_message, metadata, created_at, updated_at`

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var meta []byte
	err := row.Scan(
		&t.ID, &t.Type, &t.Direction, &t.Status, &t.AmountNano, &t.ReceivedNano, &t.Currency,
		&t.DealID, &t.ChannelID, &t.CounterpartyUserID, &t.DepositAddress, &t.DestinationAddress,
		&t.ExternalTxHash, &t.IdempotencyKey, &t.Attempt,
		&t.ExpectedObservedAfter, &t.ExpectedObservedBefore,
		&t.ErrorCode, &t.ErrorMessage, &meta, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &t.Metadata)
	}
	return &t, nil
}

// Create inserts a ledger row. A duplicate idempotency key or a duplicate
// (currency, external_tx_hash) pair maps to ErrDuplicateExternalEvent so the
// caller can treat the retry as a no-op.
func (r *TransactionRepo) Create(ctx context.Context, t *models.Transaction) error {
	return r.create(ctx, r.pool, t)
}

// CreateInTx inserts a ledger row inside an open transaction, letting the
// state machine commit the ledger write and the status change atomically.
func (r *TransactionRepo) CreateInTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return r.create(ctx, tx, t)
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *TransactionRepo) create(ctx context.Context, q execQuerier, t *models.Transaction) error {
	var meta []byte
	if t.Metadata != nil {
		meta, _ = json.Marshal(t.Metadata)
	}
	err := q.QueryRow(ctx, `
		INSERT INTO transactions (type, direction, status, amount_nano, received_nano, currency,
		                          deal_id, channel_id, counterparty_user_id, deposit_address, destination_address,
		                          external_tx_hash, idempotency_key, attempt,
		                          expected_observed_after, expected_observed_before, metadata)
		VALUES ($1::transactions_type_enum, $2::transactions_direction_enum, $3::transactions_status_enum,
		        $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at
	`, t.Type, t.Direction, t.Status, t.AmountNano, t.ReceivedNano, t.Currency,
		t.DealID, t.ChannelID, t.CounterpartyUserID, t.DepositAddress, t.DestinationAddress,
		t.ExternalTxHash, t.IdempotencyKey, t.Attempt,
		t.ExpectedObservedAfter, t.ExpectedObservedBefore, meta,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateExternalEvent
	}
	return err
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT`+txColumns+` FROM transactions WHERE id = $1`, id))
}

func (r *TransactionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT`+txColumns+` FROM transactions WHERE idempotency_key = $1`, key))
}

// GetByIDForUpdate row-locks a transaction inside tx; the payout executor
// uses this to guarantee a payout is never double-submitted.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, `SELECT`+txColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

// FindOpenDepositsForAddress returns deposit-side rows still awaiting funds
// for an address whose expected-observation window contains observedAt.
func (r *TransactionRepo) FindOpenDepositsForAddress(ctx context.Context, address string, currency string) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+txColumns+` FROM transactions
		WHERE deposit_address = $1
		  AND currency = $2
		  AND type IN ('DEPOSIT', 'ESCROW_HOLD')
		  AND status IN ('PENDING', 'PARTIAL')
		ORDER BY created_at ASC
	`, address, currency)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// CreditDeposit records observed funds against a deposit row. The payer
// address is kept in metadata for later refunds. The external hash is
// written at credit time; the per-currency unique constraint turns a
// replay into ErrDuplicateExternalEvent. q is either the pool or an open
// transaction when the credit must commit atomically with a deal
// transition.
func (r *TransactionRepo) CreditDeposit(ctx context.Context, q execQuerier, id uuid.UUID, amountNano int64, externalTxHash, payerAddress, newStatus string) error {
	tag, err := q.Exec(ctx, `
		UPDATE transactions
		SET received_nano = received_nano + $2,
		    external_tx_hash = $3,
		    status = $4::transactions_status_enum,
		    metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('payer_address', $5::text),
		    updated_at = now()
		WHERE id = $1
	`, id, amountNano, externalTxHash, newStatus, payerAddress)
	if isUniqueViolation(err) {
		return ErrDuplicateExternalEvent
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

// CancelOpenDeposits cancels a deal's still-open deposit rows so the
// watcher stops matching transfers against them. Runs inside the deal's
// cancellation transaction.
func (r *TransactionRepo) CancelOpenDeposits(ctx context.Context, q execQuerier, dealID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE transactions
		SET status = 'CANCELED', updated_at = now()
		WHERE deal_id = $1
		  AND direction = 'IN'
		  AND status IN ('PENDING', 'PARTIAL')
	`, dealID)
	return err
}

// MarkBroadcast records a successful broadcast. It only succeeds when the
// row is still PENDING with no hash, so a concurrent or replayed executor
// cannot record a second broadcast.
func (r *TransactionRepo) MarkBroadcast(ctx context.Context, id uuid.UUID, externalTxHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET external_tx_hash = $2, status = 'AWAITING_CONFIRMATION', updated_at = now()
		WHERE id = $1 AND status = 'PENDING' AND external_tx_hash IS NULL
	`, id, externalTxHash)
	if isUniqueViolation(err) {
		return false, ErrDuplicateExternalEvent
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions SET status = $2::transactions_status_enum, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// MarkFailed records a failure and clears the stale hash so a retry with a
// fresh idempotency key can proceed.
func (r *TransactionRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET status = 'FAILED', error_code = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`, id, errorCode, errorMessage)
	return err
}

// AdoptBroadcast records an on-chain hash discovered for a row whose
// broadcast was never acknowledged: either a FAILED row whose send could
// not be verified at the time, or a PENDING row whose executor died before
// recording the hash. The transfer landed, so the row moves straight to
// CONFIRMED instead of being re-sent.
func (r *TransactionRepo) AdoptBroadcast(ctx context.Context, id uuid.UUID, externalTxHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET external_tx_hash = $2, status = 'CONFIRMED',
		    error_code = NULL, error_message = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'FAILED')
	`, id, externalTxHash)
	if isUniqueViolation(err) {
		return false, ErrDuplicateExternalEvent
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetExternalTxHash backfills a hash recovered by the chain scan onto a row
// that never recorded one. Rows that already have a hash are left alone.
func (r *TransactionRepo) SetExternalTxHash(ctx context.Context, id uuid.UUID, externalTxHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET external_tx_hash = $2, updated_at = now()
		WHERE id = $1 AND external_tx_hash IS NULL
	`, id, externalTxHash)
	if isUniqueViolation(err) {
		return ErrDuplicateExternalEvent
	}
	return err
}

// HasOpenOutgoing reports whether a deal still has outgoing rows that have
// not reached a terminal status. Used to decide when the escrow wallet can
// be closed.
func (r *TransactionRepo) HasOpenOutgoing(ctx context.Context, dealID uuid.UUID) (bool, error) {
	var open bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE deal_id = $1
			  AND direction = 'OUT'
			  AND status NOT IN ('COMPLETED', 'CANCELED', 'REFUNDED')
		)
	`, dealID).Scan(&open)
	return open, err
}

// PrepareRetry moves a FAILED payout back to PENDING with a fresh
// idempotency key derived from (id, attempt), never reusing the old hash.
func (r *TransactionRepo) PrepareRetry(ctx context.Context, id uuid.UUID, newKey string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET status = 'PENDING', external_tx_hash = NULL,
		    idempotency_key = $2, attempt = attempt + 1,
		    error_code = NULL, error_message = NULL, updated_at = now()
		WHERE id = $1 AND status = 'FAILED'
	`, id, newKey)
	if isUniqueViolation(err) {
		return false, ErrDuplicateExternalEvent
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByStatus returns outgoing rows in the given status, oldest first.
func (r *TransactionRepo) ListByStatus(ctx context.Context, status string, direction string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+txColumns+` FROM transactions
		WHERE status::text = $1 AND direction::text = $2
		ORDER BY updated_at ASC LIMIT $3
	`, status, direction, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// ListByDeal returns the ledger history for a deal.
func (r *TransactionRepo) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+txColumns+` FROM transactions WHERE deal_id = $1 ORDER BY created_at ASC
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}
