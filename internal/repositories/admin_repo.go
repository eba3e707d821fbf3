package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

// AdminRepo stores the mirrored Telegram admin lists per channel, refreshed
// by the admin-sync worker.
type AdminRepo struct {
	pool *pgxpool.Pool
}

func NewAdminRepo(pool *pgxpool.Pool) *AdminRepo {
	return &AdminRepo{pool: pool}
}

// ReplaceForChannel swaps the admin set for a channel in one transaction.
func (r *AdminRepo) ReplaceForChannel(ctx context.Context, channelID uuid.UUID, admins []models.ChannelTelegramAdmin) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM channel_telegram_admins WHERE channel_id = $1`, channelID); err != nil {
		return err
	}

	for _, a := range admins {
		if _, err := tx.Exec(ctx, `
			INSERT INTO channel_telegram_admins (channel_id, telegram_user_id, username, display_name, can_post_messages, is_owner)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (channel_id, telegram_user_id) DO UPDATE SET
				username = EXCLUDED.username,
				display_name = EXCLUDED.display_name,
				can_post_messages = EXCLUDED.can_post_messages,
				is_owner = EXCLUDED.is_owner,
				synced_at = now()
		`, channelID, a.TelegramUserID, a.Username, a.DisplayName, a.CanPostMessages, a.IsOwner); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *AdminRepo) GetAdmin(ctx context.Context, channelID uuid.UUID, telegramUserID int64) (*models.ChannelTelegramAdmin, error) {
	var a models.ChannelTelegramAdmin
	err := r.pool.QueryRow(ctx, `
		SELECT id, channel_id, telegram_user_id, username, display_name, can_post_messages, is_owner, synced_at
		FROM channel_telegram_admins WHERE channel_id = $1 AND telegram_user_id = $2
	`, channelID, telegramUserID).Scan(&a.ID, &a.ChannelID, &a.TelegramUserID, &a.Username, &a.DisplayName, &a.CanPostMessages, &a.IsOwner, &a.SyncedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
