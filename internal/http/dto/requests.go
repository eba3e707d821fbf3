package dto

import (
	"time"

	"github.com/promoplace/backend/internal/ton"
)

type AuthTelegramRequest struct {
	InitData string `json:"init_data"`
}

type CreateListingRequest struct {
	ChannelID       string  `json:"channel_id"`
	ChannelUsername string  `json:"channel_username"`
	ChannelChatID   int64   `json:"channel_chat_id"`
	Title           string  `json:"title"`
	AdFormat        string  `json:"ad_format"` // post / repost / story
	PriceNano       int64   `json:"price_nano"`
	Currency        string  `json:"currency,omitempty"`
	Rules           *string `json:"rules,omitempty"`
}

type CreateDealRequest struct {
	ListingID          string     `json:"listing_id"`
	InitiatorSide      string     `json:"initiator_side"` // ADVERTISER / PUBLISHER
	CounterpartyUserID string     `json:"counterparty_user_id"`
	Brief              *string    `json:"brief,omitempty"`
	AmountNano         int64      `json:"amount_nano,omitempty"` // 0 means listing price
	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
}

type ProposeScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type SubmitCreativeRequest struct {
	Brief string `json:"brief"`
}

type RequestCreativeChangesRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type ProvideChangeNotesRequest struct {
	Notes string `json:"notes"`
}

type CancelDealRequest struct {
	Reason string `json:"reason,omitempty"`
}

type DisputeDealRequest struct {
	Reason string `json:"reason"`
}

type ReleaseDealRequest struct {
	DestinationAddress string `json:"destination_address,omitempty"`
}

type RefundDealRequest struct {
	DestinationAddress *string `json:"destination_address,omitempty"`
}

type AdminRejectRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	ReleaseToPublisher bool    `json:"release_to_publisher"`
	DestinationAddress *string `json:"destination_address,omitempty"`
}

type ConnectWalletRequest struct {
	Address         string    `json:"address"` // raw "0:hex"
	AddressFriendly string    `json:"address_friendly"`
	PublicKey       string    `json:"public_key"`
	Proof           ton.Proof `json:"proof"`
}

type UpdateFeesRequest struct {
	ServiceFeeMode         string `json:"service_fee_mode"`
	ServiceFeeValue        int64  `json:"service_fee_value"`
	ServiceFeeMinNano      *int64 `json:"service_fee_min_nano,omitempty"`
	ServiceFeeMaxNano      *int64 `json:"service_fee_max_nano,omitempty"`
	NetworkFeeMode         string `json:"network_fee_mode"`
	NetworkFeeValue        int64  `json:"network_fee_value"`
	NetworkFeeMinNano      *int64 `json:"network_fee_min_nano,omitempty"`
	NetworkFeeMaxNano      *int64 `json:"network_fee_max_nano,omitempty"`
	PayoutMinNetAmountNano *int64 `json:"payout_min_net_amount_nano,omitempty"`
}

type UpdateLiquidityRequest struct {
	SweepThresholdNano      int64   `json:"sweep_threshold_nano"`
	SweepDestinationAddress *string `json:"sweep_destination_address,omitempty"`
}
