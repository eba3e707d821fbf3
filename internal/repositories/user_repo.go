package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, telegram_user_id, username, first_name, last_name,
	wallet_address, wallet_address_friendly, wallet_connected_at,
	last_active_at, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TelegramUserID, &u.Username, &u.FirstName, &u.LastName,
		&u.WalletAddress, &u.WalletAddressFriendly, &u.WalletConnectedAt,
		&u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UpsertByTelegramID(ctx context.Context, telegramID int64, username, firstName, lastName *string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_user_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			last_active_at = now(),
			updated_at = now()
		RETURNING `+userColumns,
		telegramID, username, firstName, lastName))
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_user_id = $1`, telegramID))
}

func (r *UserRepo) UpdateLastActive(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_active_at = now() WHERE id = $1`, id)
	return err
}

// SetWallet stores a proof-verified payout wallet for the user.
func (r *UserRepo) SetWallet(ctx context.Context, id uuid.UUID, rawAddress, friendlyAddress string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET wallet_address = $2, wallet_address_friendly = $3,
			wallet_connected_at = $4, updated_at = now()
		WHERE id = $1
	`, id, rawAddress, friendlyAddress, at)
	return err
}

func (r *UserRepo) ClearWallet(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET wallet_address = NULL, wallet_address_friendly = NULL,
			wallet_connected_at = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}
