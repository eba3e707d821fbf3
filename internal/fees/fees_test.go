package fees

import (
	"errors"
	"testing"

	"github.com/promoplace/backend/internal/models"
)

func i64(v int64) *int64 { return &v }

func TestComputeFeesBPSWithFixedNetwork(t *testing.T) {
	cfg := models.FeesConfig{
		ServiceFeeMode:  models.FeeModeBPS,
		ServiceFeeValue: 50, // 0.5%
		NetworkFeeMode:  models.FeeModeFixed,
		NetworkFeeValue: 5_000_000,
	}

	b, err := ComputeFees(10_000_000_000, cfg)
	if err != nil {
		t.Fatalf("ComputeFees: %v", err)
	}
	if b.ServiceFeeNano != 50_000_000 {
		t.Errorf("service fee = %d, want 50000000", b.ServiceFeeNano)
	}
	if b.NetworkFeeNano != 5_000_000 {
		t.Errorf("network fee = %d, want 5000000", b.NetworkFeeNano)
	}
	if b.NetAmountNano != 9_945_000_000 {
		t.Errorf("net = %d, want 9945000000", b.NetAmountNano)
	}
}

func TestComputeFeesConservation(t *testing.T) {
	configs := []models.FeesConfig{
		{ServiceFeeMode: models.FeeModeFixed, ServiceFeeValue: 100_000_000, NetworkFeeMode: models.FeeModeFixed, NetworkFeeValue: 5_000_000},
		{ServiceFeeMode: models.FeeModeBPS, ServiceFeeValue: 300, NetworkFeeMode: models.FeeModeFixed, NetworkFeeValue: 10_000_000},
		{ServiceFeeMode: models.FeeModeBPS, ServiceFeeValue: 50, ServiceFeeMinNano: i64(20_000_000), NetworkFeeMode: models.FeeModeBPS, NetworkFeeValue: 10},
		{ServiceFeeMode: models.FeeModeBPS, ServiceFeeValue: 9999, NetworkFeeMode: models.FeeModeFixed, NetworkFeeValue: 5_000_000},
		{ServiceFeeMode: models.FeeModeFixed, ServiceFeeValue: 0, NetworkFeeMode: models.FeeModeFixed, NetworkFeeValue: 0},
	}
	amounts := []int64{0, 1, 999, 1_000_000_000, 10_000_000_000, 123_456_789_012}

	for _, cfg := range configs {
		for _, gross := range amounts {
			b, err := ComputeFees(gross, cfg)
			if err != nil {
				t.Fatalf("ComputeFees(%d): %v", gross, err)
			}
			if sum := b.ServiceFeeNano + b.NetworkFeeNano + b.NetAmountNano; sum != gross {
				t.Errorf("gross %d: breakdown sums to %d (%+v)", gross, sum, b)
			}
			if b.NetAmountNano < 0 || b.ServiceFeeNano < 0 || b.NetworkFeeNano < 0 {
				t.Errorf("gross %d: negative component %+v", gross, b)
			}
		}
	}
}

func TestComputeFeesClamps(t *testing.T) {
	cfg := models.FeesConfig{
		ServiceFeeMode:    models.FeeModeBPS,
		ServiceFeeValue:   50,
		ServiceFeeMinNano: i64(100_000_000),
		ServiceFeeMaxNano: i64(200_000_000),
		NetworkFeeMode:    models.FeeModeFixed,
		NetworkFeeValue:   5_000_000,
	}

	// 0.5% of 1 TON = 5_000_000, below min — clamps up.
	b, err := ComputeFees(1_000_000_000, cfg)
	if err != nil {
		t.Fatalf("ComputeFees: %v", err)
	}
	if b.ServiceFeeNano != 100_000_000 {
		t.Errorf("service fee = %d, want min clamp 100000000", b.ServiceFeeNano)
	}

	// 0.5% of 100_000 TON = 500 TON, above max — clamps down.
	b, err = ComputeFees(100_000_000_000_000, cfg)
	if err != nil {
		t.Fatalf("ComputeFees: %v", err)
	}
	if b.ServiceFeeNano != 200_000_000 {
		t.Errorf("service fee = %d, want max clamp 200000000", b.ServiceFeeNano)
	}
}

func TestComputeFeesBelowMinimumRejected(t *testing.T) {
	cfg := models.FeesConfig{
		ServiceFeeMode:         models.FeeModeFixed,
		ServiceFeeValue:        50_000_000,
		NetworkFeeMode:         models.FeeModeFixed,
		NetworkFeeValue:        5_000_000,
		PayoutMinNetAmountNano: i64(1_000_000_000),
	}

	_, err := ComputeFees(100_000_000, cfg)
	if !errors.Is(err, ErrFeeBelowMinimum) {
		t.Errorf("expected ErrFeeBelowMinimum, got %v", err)
	}

	// Comfortably above the floor passes.
	if _, err := ComputeFees(10_000_000_000, cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestComputeFeesExceedingGross(t *testing.T) {
	cfg := models.FeesConfig{
		ServiceFeeMode:  models.FeeModeFixed,
		ServiceFeeValue: 50_000_000,
		NetworkFeeMode:  models.FeeModeFixed,
		NetworkFeeValue: 5_000_000,
	}

	b, err := ComputeFees(10_000_000, cfg)
	if err != nil {
		t.Fatalf("ComputeFees: %v", err)
	}
	if b.NetAmountNano != 0 {
		t.Errorf("net = %d, want 0", b.NetAmountNano)
	}
	if sum := b.ServiceFeeNano + b.NetworkFeeNano + b.NetAmountNano; sum != 10_000_000 {
		t.Errorf("breakdown sums to %d, want 10000000", sum)
	}
}

func TestComputeFeesUnknownMode(t *testing.T) {
	cfg := models.FeesConfig{ServiceFeeMode: "PERCENT", NetworkFeeMode: models.FeeModeFixed}
	if _, err := ComputeFees(1_000_000_000, cfg); err == nil {
		t.Error("expected error for unknown fee mode")
	}
}
