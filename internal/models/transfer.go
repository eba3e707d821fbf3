package models

import (
	"time"

	"github.com/google/uuid"
)

// TonTransfer is a raw observed on-chain event. Immutable once inserted;
// the watcher's source of truth independent of whether it has been matched
// to a ledger transaction yet.
type TonTransfer struct {
	ID          uuid.UUID `json:"id"`
	TxHash      string    `json:"tx_hash"`
	LT          uint64    `json:"lt"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	AmountNano  int64     `json:"amount_nano"`
	Comment     *string   `json:"comment,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	Matched     bool      `json:"matched"`
	RawPayload  any       `json:"raw_payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
