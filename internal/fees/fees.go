// Package fees computes service and network fees for payouts.
// All functions are pure; configuration comes from the fees_config
// singleton loaded by the caller.
package fees

import (
	"errors"
	"fmt"

	"github.com/promoplace/backend/internal/models"
)

// ErrFeeBelowMinimum means the payout would net below the configured floor
// and must be rejected before broadcast, not silently adjusted.
var ErrFeeBelowMinimum = errors.New("net payout amount below configured minimum")

// Breakdown is the result of a fee computation.
// ServiceFee + NetworkFee + NetAmount always equals the gross amount.
type Breakdown struct {
	ServiceFeeNano int64 `json:"service_fee_nano"`
	NetworkFeeNano int64 `json:"network_fee_nano"`
	NetAmountNano  int64 `json:"net_amount_nano"`
}

// ComputeFees calculates the fee breakdown for a gross payout amount.
// Each fee mode is either FIXED (flat value) or BPS (basis points of gross,
// clamped to [min, max] when configured). The net amount is floored at zero;
// if it falls below payout_min_net_amount_nano the payout is rejected.
func ComputeFees(grossNano int64, cfg models.FeesConfig) (Breakdown, error) {
	if grossNano < 0 {
		return Breakdown{}, fmt.Errorf("negative gross amount: %d", grossNano)
	}

	serviceFee, err := computeFee(grossNano, cfg.ServiceFeeMode, cfg.ServiceFeeValue, cfg.ServiceFeeMinNano, cfg.ServiceFeeMaxNano)
	if err != nil {
		return Breakdown{}, fmt.Errorf("service fee: %w", err)
	}

	networkFee, err := computeFee(grossNano, cfg.NetworkFeeMode, cfg.NetworkFeeValue, cfg.NetworkFeeMinNano, cfg.NetworkFeeMaxNano)
	if err != nil {
		return Breakdown{}, fmt.Errorf("network fee: %w", err)
	}

	net := grossNano - serviceFee - networkFee
	if net < 0 {
		// Fees exceed the gross amount: the service fee absorbs the deficit
		// so the breakdown still sums to gross.
		serviceFee += net
		if serviceFee < 0 {
			networkFee += serviceFee
			serviceFee = 0
		}
		net = 0
	}

	if cfg.PayoutMinNetAmountNano != nil && net < *cfg.PayoutMinNetAmountNano {
		return Breakdown{}, fmt.Errorf("net %d < minimum %d: %w", net, *cfg.PayoutMinNetAmountNano, ErrFeeBelowMinimum)
	}

	return Breakdown{
		ServiceFeeNano: serviceFee,
		NetworkFeeNano: networkFee,
		NetAmountNano:  net,
	}, nil
}

func computeFee(grossNano int64, mode string, value int64, minNano, maxNano *int64) (int64, error) {
	var fee int64
	switch mode {
	case models.FeeModeFixed:
		fee = value
	case models.FeeModeBPS:
		fee = grossNano / 10000 * value
		// Avoid overflow for realistic amounts while keeping precision on
		// the remainder.
		fee += grossNano % 10000 * value / 10000
	default:
		return 0, fmt.Errorf("unknown fee mode %q", mode)
	}

	if minNano != nil && fee < *minNano {
		fee = *minNano
	}
	if maxNano != nil && fee > *maxNano {
		fee = *maxNano
	}
	if fee < 0 {
		fee = 0
	}
	return fee, nil
}
