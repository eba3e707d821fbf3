package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EscrowStatus is the authoritative lifecycle status of a deal.
// Values are wire-compatible with the deals_escrow_status_enum column.
type EscrowStatus string

const (
	StatusDraft                       EscrowStatus = "DRAFT"
	StatusWaitingSchedule             EscrowStatus = "WAITING_SCHEDULE"
	StatusSchedulingPending           EscrowStatus = "SCHEDULING_PENDING"
	StatusWaitingCreative             EscrowStatus = "WAITING_CREATIVE"
	StatusCreativeSubmitted           EscrowStatus = "CREATIVE_SUBMITTED"
	StatusCreativeChangesNotesPending EscrowStatus = "CREATIVE_CHANGES_NOTES_PENDING"
	StatusCreativeChangesRequested    EscrowStatus = "CREATIVE_CHANGES_REQUESTED"
	StatusAdminReview                 EscrowStatus = "ADMIN_REVIEW"
	StatusAwaitingPayment             EscrowStatus = "AWAITING_PAYMENT"
	StatusFundsConfirmed              EscrowStatus = "FUNDS_CONFIRMED"
	StatusScheduled                   EscrowStatus = "SCHEDULED"
	StatusPosting                     EscrowStatus = "POSTING"
	StatusPostedVerifying             EscrowStatus = "POSTED_VERIFYING"
	StatusReleased                    EscrowStatus = "RELEASED"
	StatusCanceled                    EscrowStatus = "CANCELED"
	StatusRefunded                    EscrowStatus = "REFUNDED"
	StatusDisputed                    EscrowStatus = "DISPUTED"
)

// Valid escrow status transitions: from -> []to
var ValidEscrowTransitions = map[EscrowStatus][]EscrowStatus{
	StatusDraft:                       {StatusWaitingSchedule, StatusSchedulingPending, StatusCanceled},
	StatusWaitingSchedule:             {StatusSchedulingPending, StatusWaitingCreative, StatusCanceled},
	StatusSchedulingPending:           {StatusWaitingCreative, StatusCanceled},
	StatusWaitingCreative:             {StatusCreativeSubmitted, StatusCanceled},
	StatusCreativeSubmitted:           {StatusAdminReview, StatusCreativeChangesNotesPending, StatusCreativeChangesRequested, StatusCanceled},
	StatusCreativeChangesNotesPending: {StatusCreativeChangesRequested, StatusCanceled},
	StatusCreativeChangesRequested:    {StatusCreativeSubmitted, StatusAdminReview, StatusCanceled},
	StatusAdminReview:                 {StatusAwaitingPayment, StatusCanceled, StatusDisputed},
	StatusAwaitingPayment:             {StatusFundsConfirmed, StatusCanceled},
	StatusFundsConfirmed:              {StatusScheduled, StatusRefunded, StatusDisputed},
	StatusScheduled:                   {StatusPosting, StatusRefunded, StatusDisputed},
	StatusPosting:                     {StatusPostedVerifying, StatusRefunded, StatusDisputed},
	StatusPostedVerifying:             {StatusReleased, StatusRefunded, StatusDisputed},
	StatusReleased:                    {},
	StatusCanceled:                    {StatusRefunded},
	StatusRefunded:                    {},
	StatusDisputed:                    {StatusReleased, StatusRefunded},
}

func IsValidTransition(from, to EscrowStatus) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s EscrowStatus) IsTerminal() bool {
	allowed, ok := ValidEscrowTransitions[s]
	return ok && len(allowed) == 0
}

// PaymentAwaitingStatuses is the set the deposit watcher monitors for credits.
var PaymentAwaitingStatuses = []EscrowStatus{StatusAwaitingPayment}

// MapLegacyNegotiatingStatus backfills the escrow status for deals created
// before scheduling and creative fields were mandatory: no scheduled time
// means the deal is still negotiating a slot, a scheduled time without a
// brief means the creative is still owed, and both present means the deal
// was already waiting on admin review.
func MapLegacyNegotiatingStatus(scheduledAt *time.Time, brief *string) EscrowStatus {
	if scheduledAt == nil {
		return StatusWaitingSchedule
	}
	if brief == nil || strings.TrimSpace(*brief) == "" {
		return StatusWaitingCreative
	}
	return StatusAdminReview
}

// Initiator sides
const (
	SideAdvertiser = "ADVERTISER"
	SidePublisher  = "PUBLISHER"
)

// ListingSnapshot is captured once at deal creation and never re-read from
// the mutable listing afterwards.
type ListingSnapshot struct {
	ListingID       uuid.UUID `json:"listing_id"`
	ChannelUsername string    `json:"channel_username"`
	ChannelChatID   int64     `json:"channel_chat_id"`
	Title           string    `json:"title"`
	AdFormat        string    `json:"ad_format"`
	PriceNano       int64     `json:"price_nano"`
	Currency        string    `json:"currency"`
	Rules           *string   `json:"rules,omitempty"`
}

type Deal struct {
	ID                    uuid.UUID       `json:"id"`
	AdvertiserUserID      uuid.UUID       `json:"advertiser_user_id"`
	PublisherUserID       uuid.UUID       `json:"publisher_user_id"`
	CreatorUserID         uuid.UUID       `json:"creator_user_id"`
	InitiatorSide         string          `json:"initiator_side"`
	ChannelID             uuid.UUID       `json:"channel_id"`
	ListingID             *uuid.UUID      `json:"listing_id,omitempty"`
	ListingSnapshot       ListingSnapshot `json:"listing_snapshot"`
	Brief                 *string         `json:"brief,omitempty"`
	EscrowStatus          EscrowStatus    `json:"escrow_status"`
	EscrowAmountNano      int64           `json:"escrow_amount_nano"`
	EscrowCurrency        string          `json:"escrow_currency"`
	EscrowPaymentAddress  *string         `json:"escrow_payment_address,omitempty"`
	EscrowExpiresAt       *time.Time      `json:"escrow_expires_at,omitempty"`
	ScheduledAt           *time.Time      `json:"scheduled_at,omitempty"`
	PublishedMessageID    *int64          `json:"published_message_id,omitempty"`
	PublishedAt           *time.Time      `json:"published_at,omitempty"`
	DeliveryVerifiedAt    *time.Time      `json:"delivery_verified_at,omitempty"`
	MustRemainUntil       *time.Time      `json:"must_remain_until,omitempty"`
	IdleExpiresAt         *time.Time      `json:"idle_expires_at,omitempty"`
	CreativeDeadlineAt    *time.Time      `json:"creative_deadline_at,omitempty"`
	AdminReviewDeadlineAt *time.Time      `json:"admin_review_deadline_at,omitempty"`
	PaymentDeadlineAt     *time.Time      `json:"payment_deadline_at,omitempty"`
	AdminReviewNotifiedAt *time.Time      `json:"admin_review_notified_at,omitempty"`
	LastActivityAt        time.Time       `json:"last_activity_at"`
	StalledAt             *time.Time      `json:"stalled_at,omitempty"`
	CancelReason          *string         `json:"cancel_reason,omitempty"`
	DeliveryError         *string         `json:"delivery_error,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}
