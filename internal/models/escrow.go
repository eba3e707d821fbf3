package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow wallet scopes
const (
	WalletScopeDeal = "DEAL"
	WalletScopeUser = "USER"
)

// Escrow wallet statuses
const (
	WalletStatusActive  = "ACTIVE"
	WalletStatusClosed  = "CLOSED"
	WalletStatusRotated = "ROTATED"
)

// EscrowWallet is a deposit-address binding, scoped to a deal or to a user
// (pooled wallets). At most one wallet exists per deal.
type EscrowWallet struct {
	ID        uuid.UUID  `json:"id"`
	Scope     string     `json:"scope"`
	DealID    *uuid.UUID `json:"deal_id,omitempty"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Address   string     `json:"address"`
	Status    string     `json:"status"`
	Provider  string     `json:"provider"`
	Metadata  any        `json:"metadata,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EscrowWalletKey holds encrypted signing material for a wallet. The
// plaintext never leaves the payout executor's signing step.
type EscrowWalletKey struct {
	ID           uuid.UUID `json:"id"`
	WalletID     uuid.UUID `json:"wallet_id"`
	KeyVersion   int       `json:"key_version"`
	EncryptedKey []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
