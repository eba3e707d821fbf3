package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                    uuid.UUID  `json:"id"`
	TelegramUserID        int64      `json:"telegram_user_id"`
	Username              *string    `json:"username,omitempty"`
	FirstName             *string    `json:"first_name,omitempty"`
	LastName              *string    `json:"last_name,omitempty"`
	WalletAddress         *string    `json:"wallet_address,omitempty"`
	WalletAddressFriendly *string    `json:"wallet_address_friendly,omitempty"`
	WalletConnectedAt     *time.Time `json:"wallet_connected_at,omitempty"`
	LastActiveAt          time.Time  `json:"last_active_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
