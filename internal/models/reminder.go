package models

import (
	"time"

	"github.com/google/uuid"
)

// Reminder types, one row allowed per (deal, type).
const (
	ReminderCreativeDeadline = "CREATIVE_DEADLINE"
	ReminderAdminDeadline    = "ADMIN_DEADLINE"
	ReminderPaymentDeadline  = "PAYMENT_DEADLINE"
	ReminderIdleExpire       = "IDLE_EXPIRE"
)

// DealReminder is a write-once marker that a deadline notice was sent,
// keeping repeated sweep runs from duplicating notifications.
type DealReminder struct {
	ID     uuid.UUID `json:"id"`
	DealID uuid.UUID `json:"deal_id"`
	Type   string    `json:"type"`
	SentAt time.Time `json:"sent_at"`
}
