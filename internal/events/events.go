package events

import "context"

// Event types published on the deal stream for bot/WebSocket consumers.
const (
	EventDealStatusChanged = "deal_status_changed"
	EventPaymentReceived   = "payment_received"
	EventPaymentPartial    = "payment_partial"
	EventPayoutCompleted   = "payout_completed"
	EventPayoutFailed      = "payout_failed"
	EventReminderSent      = "reminder_sent"
	EventBotNotification   = "bot_notification"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
