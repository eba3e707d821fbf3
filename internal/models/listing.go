package models

import (
	"time"

	"github.com/google/uuid"
)

type Listing struct {
	ID              uuid.UUID `json:"id"`
	ChannelID       uuid.UUID `json:"channel_id"`
	ChannelUsername string    `json:"channel_username"`
	ChannelChatID   int64     `json:"channel_chat_id"`
	Title           string    `json:"title"`
	AdFormat        string    `json:"ad_format"` // post / repost / story
	PriceNano       int64     `json:"price_nano"`
	Currency        string    `json:"currency"`
	Rules           *string   `json:"rules,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Snapshot freezes the listing terms for a deal at creation time.
func (l *Listing) Snapshot() ListingSnapshot {
	return ListingSnapshot{
		ListingID:       l.ID,
		ChannelUsername: l.ChannelUsername,
		ChannelChatID:   l.ChannelChatID,
		Title:           l.Title,
		AdFormat:        l.AdFormat,
		PriceNano:       l.PriceNano,
		Currency:        l.Currency,
		Rules:           l.Rules,
	}
}

// ChannelTelegramAdmin mirrors the channel admin list fetched from the bot
// internal API, refreshed by the admin-sync worker.
type ChannelTelegramAdmin struct {
	ID              uuid.UUID `json:"id"`
	ChannelID       uuid.UUID `json:"channel_id"`
	TelegramUserID  int64     `json:"telegram_user_id"`
	Username        *string   `json:"username,omitempty"`
	DisplayName     *string   `json:"display_name,omitempty"`
	CanPostMessages bool      `json:"can_post_messages"`
	IsOwner         bool      `json:"is_owner"`
	SyncedAt        time.Time `json:"synced_at"`
}
