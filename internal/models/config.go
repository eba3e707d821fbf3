package models

import "time"

// Fee modes
const (
	FeeModeFixed = "FIXED"
	FeeModeBPS   = "BPS"
)

// FeesConfig is the singleton fees_config row (id = 1).
type FeesConfig struct {
	ServiceFeeMode         string    `json:"service_fee_mode"`
	ServiceFeeValue        int64     `json:"service_fee_value"`
	ServiceFeeMinNano      *int64    `json:"service_fee_min_nano,omitempty"`
	ServiceFeeMaxNano      *int64    `json:"service_fee_max_nano,omitempty"`
	NetworkFeeMode         string    `json:"network_fee_mode"`
	NetworkFeeValue        int64     `json:"network_fee_value"`
	NetworkFeeMinNano      *int64    `json:"network_fee_min_nano,omitempty"`
	NetworkFeeMaxNano      *int64    `json:"network_fee_max_nano,omitempty"`
	PayoutMinNetAmountNano *int64    `json:"payout_min_net_amount_nano,omitempty"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// LiquidityConfig is the singleton liquidity_config row (id = 1).
type LiquidityConfig struct {
	SweepThresholdNano      int64     `json:"sweep_threshold_nano"`
	SweepDestinationAddress *string   `json:"sweep_destination_address,omitempty"`
	UpdatedAt               time.Time `json:"updated_at"`
}
