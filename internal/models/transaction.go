package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types
const (
	TxTypeDeposit       = "DEPOSIT"
	TxTypeWithdraw      = "WITHDRAW"
	TxTypeEscrowHold    = "ESCROW_HOLD"
	TxTypeEscrowRelease = "ESCROW_RELEASE"
	TxTypeEscrowRefund  = "ESCROW_REFUND"
	TxTypeFee           = "FEE"
)

// Transaction directions
const (
	TxDirectionIn       = "IN"
	TxDirectionOut      = "OUT"
	TxDirectionInternal = "INTERNAL"
)

// Transaction statuses
const (
	TxStatusPending              = "PENDING"
	TxStatusAwaitingConfirmation = "AWAITING_CONFIRMATION"
	TxStatusConfirmed            = "CONFIRMED"
	TxStatusCompleted            = "COMPLETED"
	TxStatusFailed               = "FAILED"
	TxStatusCanceled             = "CANCELED"
	TxStatusPartial              = "PARTIAL"
	TxStatusRefunded             = "REFUNDED"
)

// Transaction is a ledger row. A non-null ExternalTxHash is unique per
// currency, which is what prevents crediting the same on-chain event twice.
type Transaction struct {
	ID                     uuid.UUID  `json:"id"`
	Type                   string     `json:"type"`
	Direction              string     `json:"direction"`
	Status                 string     `json:"status"`
	AmountNano             int64      `json:"amount_nano"`
	ReceivedNano           int64      `json:"received_nano"`
	Currency               string     `json:"currency"`
	DealID                 *uuid.UUID `json:"deal_id,omitempty"`
	ChannelID              *uuid.UUID `json:"channel_id,omitempty"`
	CounterpartyUserID     *uuid.UUID `json:"counterparty_user_id,omitempty"`
	DepositAddress         *string    `json:"deposit_address,omitempty"`
	DestinationAddress     *string    `json:"destination_address,omitempty"`
	ExternalTxHash         *string    `json:"external_tx_hash,omitempty"`
	IdempotencyKey         string     `json:"idempotency_key"`
	Attempt                int        `json:"attempt"`
	ExpectedObservedAfter  *time.Time `json:"expected_observed_after,omitempty"`
	ExpectedObservedBefore *time.Time `json:"expected_observed_before,omitempty"`
	ErrorCode              *string    `json:"error_code,omitempty"`
	ErrorMessage           *string    `json:"error_message,omitempty"`
	Metadata               any        `json:"metadata,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Outstanding returns the amount still expected on a deposit-side row.
func (t *Transaction) Outstanding() int64 {
	out := t.AmountNano - t.ReceivedNano
	if out < 0 {
		return 0
	}
	return out
}
