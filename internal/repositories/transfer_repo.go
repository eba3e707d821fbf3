package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

type TransferRepo struct {
	pool *pgxpool.Pool
}

func NewTransferRepo(pool *pgxpool.Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

// Insert stores an observed chain event. Rows are immutable; re-observing
// the same tx hash is a no-op and returns inserted=false, which is how the
// watcher stays idempotent across repeated poll cycles.
func (r *TransferRepo) Insert(ctx context.Context, t *models.TonTransfer) (bool, error) {
	var raw []byte
	if t.RawPayload != nil {
		raw, _ = json.Marshal(t.RawPayload)
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ton_transfers (tx_hash, lt, from_address, to_address, amount_nano, comment, observed_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash) DO NOTHING
		RETURNING id, created_at
	`, t.TxHash, int64(t.LT), t.FromAddress, t.ToAddress, t.AmountNano, t.Comment, t.ObservedAt, raw,
	).Scan(&t.ID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *TransferRepo) MarkMatched(ctx context.Context, txHash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE ton_transfers SET matched = true WHERE tx_hash = $1`, txHash)
	return err
}

func (r *TransferRepo) GetByHash(ctx context.Context, txHash string) (*models.TonTransfer, error) {
	var t models.TonTransfer
	var lt int64
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, tx_hash, lt, from_address, to_address, amount_nano, comment, observed_at, matched, raw_payload, created_at
		FROM ton_transfers WHERE tx_hash = $1
	`, txHash).Scan(&t.ID, &t.TxHash, &lt, &t.FromAddress, &t.ToAddress, &t.AmountNano, &t.Comment, &t.ObservedAt, &t.Matched, &raw, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.LT = uint64(lt)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &t.RawPayload)
	}
	return &t, nil
}

// ListUnmatched returns observed transfers never matched to a ledger row,
// for admin adjudication of ambiguous or orphan deposits.
func (r *TransferRepo) ListUnmatched(ctx context.Context, limit int) ([]models.TonTransfer, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tx_hash, lt, from_address, to_address, amount_nano, comment, observed_at, matched, raw_payload, created_at
		FROM ton_transfers WHERE matched = false ORDER BY observed_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []models.TonTransfer
	for rows.Next() {
		var t models.TonTransfer
		var lt int64
		var raw []byte
		if err := rows.Scan(&t.ID, &t.TxHash, &lt, &t.FromAddress, &t.ToAddress, &t.AmountNano, &t.Comment, &t.ObservedAt, &t.Matched, &raw, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.LT = uint64(lt)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &t.RawPayload)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *TransferRepo) ListByAddress(ctx context.Context, toAddress string, limit int) ([]models.TonTransfer, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tx_hash, lt, from_address, to_address, amount_nano, comment, observed_at, matched, raw_payload, created_at
		FROM ton_transfers WHERE to_address = $1 ORDER BY lt DESC LIMIT $2
	`, toAddress, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []models.TonTransfer
	for rows.Next() {
		var t models.TonTransfer
		var lt int64
		var raw []byte
		if err := rows.Scan(&t.ID, &t.TxHash, &lt, &t.FromAddress, &t.ToAddress, &t.AmountNano, &t.Comment, &t.ObservedAt, &t.Matched, &raw, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.LT = uint64(lt)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &t.RawPayload)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
