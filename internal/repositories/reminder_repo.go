package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

type ReminderRepo struct {
	pool *pgxpool.Pool
}

func NewReminderRepo(pool *pgxpool.Pool) *ReminderRepo {
	return &ReminderRepo{pool: pool}
}

// InsertIfAbsent records that a reminder of the given type was sent for the
// deal. Returns false when a row already exists, so a reminder goes out at
// most once per deadline type no matter how often the sweep runs.
func (r *ReminderRepo) InsertIfAbsent(ctx context.Context, dealID uuid.UUID, reminderType string) (bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO deal_reminders (deal_id, type)
		VALUES ($1, $2::deal_reminder_type_enum)
		ON CONFLICT (deal_id, type) DO NOTHING
		RETURNING id
	`, dealID, reminderType).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ReminderRepo) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]models.DealReminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deal_id, type, sent_at FROM deal_reminders WHERE deal_id = $1 ORDER BY sent_at ASC
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []models.DealReminder
	for rows.Next() {
		var rem models.DealReminder
		if err := rows.Scan(&rem.ID, &rem.DealID, &rem.Type, &rem.SentAt); err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}
