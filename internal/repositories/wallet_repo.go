package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// CreateWithKey inserts a wallet and its encrypted key atomically. The
// unique (deal_id) constraint guarantees at most one wallet per deal.
func (r *WalletRepo) CreateWithKey(ctx context.Context, w *models.EscrowWallet, encryptedKey []byte, keyVersion int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.CreateWithKeyInTx(ctx, tx, w, encryptedKey, keyVersion); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateWithKeyInTx is CreateWithKey inside an already-open transaction,
// so wallet issuance can commit atomically with a deal transition.
func (r *WalletRepo) CreateWithKeyInTx(ctx context.Context, tx pgx.Tx, w *models.EscrowWallet, encryptedKey []byte, keyVersion int) error {
	var meta []byte
	if w.Metadata != nil {
		meta, _ = json.Marshal(w.Metadata)
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO escrow_wallets (scope, deal_id, user_id, address, status, provider, metadata)
		VALUES ($1::escrow_wallets_scope_enum, $2, $3, $4, $5::escrow_wallets_status_enum, $6, $7)
		RETURNING id, created_at, updated_at
	`, w.Scope, w.DealID, w.UserID, w.Address, w.Status, w.Provider, meta,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateExternalEvent
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO escrow_wallet_keys (wallet_id, key_version, encrypted_key)
		VALUES ($1, $2, $3)
	`, w.ID, keyVersion, encryptedKey); err != nil {
		return err
	}

	return nil
}

func scanWallet(row interface{ Scan(...any) error }) (*models.EscrowWallet, error) {
	var w models.EscrowWallet
	var meta []byte
	err := row.Scan(&w.ID, &w.Scope, &w.DealID, &w.UserID, &w.Address, &w.Status, &w.Provider, &meta, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &w.Metadata)
	}
	return &w, nil
}

const walletColumns = `id, scope, deal_id, user_id, address, status, provider, metadata, created_at, updated_at`

func (r *WalletRepo) GetByDealID(ctx context.Context, dealID uuid.UUID) (*models.EscrowWallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM escrow_wallets WHERE deal_id = $1
	`, dealID))
}

func (r *WalletRepo) GetByAddress(ctx context.Context, address string) (*models.EscrowWallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM escrow_wallets WHERE address = $1
	`, address))
}

// ListActiveAddresses returns every ACTIVE deposit address the watcher
// should track.
func (r *WalletRepo) ListActiveAddresses(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT address FROM escrow_wallets WHERE status = 'ACTIVE'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

func (r *WalletRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_wallets SET status = $2::escrow_wallets_status_enum, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// GetKey returns the encrypted signing material for a wallet. The plaintext
// is only ever produced inside the payout executor's signing step.
func (r *WalletRepo) GetKey(ctx context.Context, walletID uuid.UUID) (*models.EscrowWalletKey, error) {
	var k models.EscrowWalletKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, wallet_id, key_version, encrypted_key, created_at
		FROM escrow_wallet_keys WHERE wallet_id = $1
	`, walletID).Scan(&k.ID, &k.WalletID, &k.KeyVersion, &k.EncryptedKey, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// RotateKey replaces the key material and bumps key_version; the wallet is
// marked ROTATED so operators know the deal was not reissued.
func (r *WalletRepo) RotateKey(ctx context.Context, walletID uuid.UUID, encryptedKey []byte) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE escrow_wallet_keys
		SET encrypted_key = $2, key_version = key_version + 1
		WHERE wallet_id = $1
	`, walletID, encryptedKey); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE escrow_wallets SET status = 'ROTATED', updated_at = now() WHERE id = $1
	`, walletID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
