package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

const listingColumns = `id, channel_id, channel_username, channel_chat_id, title, ad_format, price_nano, currency, rules, is_active, created_at, updated_at`

func (r *ListingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var l models.Listing
	err := r.pool.QueryRow(ctx, `
		SELECT `+listingColumns+` FROM listings WHERE id = $1
	`, id).Scan(&l.ID, &l.ChannelID, &l.ChannelUsername, &l.ChannelChatID, &l.Title, &l.AdFormat,
		&l.PriceNano, &l.Currency, &l.Rules, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ChannelUsername resolves a channel's t.me username from its most
// recently updated listing.
func (r *ListingRepo) ChannelUsername(ctx context.Context, channelID uuid.UUID) (string, error) {
	var username string
	err := r.pool.QueryRow(ctx, `
		SELECT channel_username FROM listings
		WHERE channel_id = $1 AND channel_username <> ''
		ORDER BY updated_at DESC LIMIT 1
	`, channelID).Scan(&username)
	return username, err
}

// ListActive returns purchasable listings, newest first.
func (r *ListingRepo) ListActive(ctx context.Context, limit, offset int) ([]models.Listing, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE is_active ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.ChannelID, &l.ChannelUsername, &l.ChannelChatID, &l.Title, &l.AdFormat,
			&l.PriceNano, &l.Currency, &l.Rules, &l.IsActive, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (r *ListingRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE listings SET is_active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	return err
}

func (r *ListingRepo) Create(ctx context.Context, l *models.Listing) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO listings (channel_id, channel_username, channel_chat_id, title, ad_format, price_nano, currency, rules, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, l.ChannelID, l.ChannelUsername, l.ChannelChatID, l.Title, l.AdFormat, l.PriceNano, l.Currency, l.Rules, l.IsActive,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}
