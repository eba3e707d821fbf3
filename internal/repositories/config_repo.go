package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

// ConfigRepo reads the singleton fees_config / liquidity_config rows.
// Workers load the config once per cycle rather than caching indefinitely.
type ConfigRepo struct {
	pool *pgxpool.Pool
}

func NewConfigRepo(pool *pgxpool.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool}
}

func (r *ConfigRepo) GetFees(ctx context.Context) (models.FeesConfig, error) {
	var c models.FeesConfig
	err := r.pool.QueryRow(ctx, `
		SELECT service_fee_mode, service_fee_value, service_fee_min_nano, service_fee_max_nano,
		       network_fee_mode, network_fee_value, network_fee_min_nano, network_fee_max_nano,
		       payout_min_net_amount_nano, updated_at
		FROM fees_config WHERE id = 1
	`).Scan(&c.ServiceFeeMode, &c.ServiceFeeValue, &c.ServiceFeeMinNano, &c.ServiceFeeMaxNano,
		&c.NetworkFeeMode, &c.NetworkFeeValue, &c.NetworkFeeMinNano, &c.NetworkFeeMaxNano,
		&c.PayoutMinNetAmountNano, &c.UpdatedAt)
	return c, err
}

func (r *ConfigRepo) UpdateFees(ctx context.Context, c models.FeesConfig) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE fees_config SET
			service_fee_mode = $1, service_fee_value = $2, service_fee_min_nano = $3, service_fee_max_nano = $4,
			network_fee_mode = $5, network_fee_value = $6, network_fee_min_nano = $7, network_fee_max_nano = $8,
			payout_min_net_amount_nano = $9, updated_at = now()
		WHERE id = 1
	`, c.ServiceFeeMode, c.ServiceFeeValue, c.ServiceFeeMinNano, c.ServiceFeeMaxNano,
		c.NetworkFeeMode, c.NetworkFeeValue, c.NetworkFeeMinNano, c.NetworkFeeMaxNano,
		c.PayoutMinNetAmountNano)
	return err
}

func (r *ConfigRepo) UpdateLiquidity(ctx context.Context, c models.LiquidityConfig) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE liquidity_config SET
			sweep_threshold_nano = $1, sweep_destination_address = $2, updated_at = now()
		WHERE id = 1
	`, c.SweepThresholdNano, c.SweepDestinationAddress)
	return err
}

func (r *ConfigRepo) GetLiquidity(ctx context.Context) (models.LiquidityConfig, error) {
	var c models.LiquidityConfig
	err := r.pool.QueryRow(ctx, `
		SELECT sweep_threshold_nano, sweep_destination_address, updated_at
		FROM liquidity_config WHERE id = 1
	`).Scan(&c.SweepThresholdNano, &c.SweepDestinationAddress, &c.UpdatedAt)
	return c, err
}
