package config

import "fmt"

// ValidateConfig rejects configurations that would weaken the payment
// safeguards or render the daemon inoperable.
func ValidateConfig(cfg *Config) error {
	if cfg.Policy.VelocityWindowSeconds <= 0 {
		return fmt.Errorf("policy: velocity_window_seconds <= 0")
	}
	if cfg.Policy.VelocityMax <= 0 {
		return fmt.Errorf("policy: velocity_max <= 0")
	}
	if cfg.Policy.MinMerchantReputation < 0 || cfg.Policy.MinMerchantReputation > 1 {
		return fmt.Errorf("policy: min_merchant_reputation outside [0,1]")
	}
	if cfg.Policy.TrustScoreFloor < 0 || cfg.Policy.TrustScoreFloor > 1 {
		return fmt.Errorf("policy: trust_score_floor outside [0,1]")
	}
	if _, err := cfg.Policy.Limits(); err != nil {
		return err
	}
	if cfg.Risk.MinTrustedTxns == 0 {
		return fmt.Errorf("risk: min_trusted_txns == 0")
	}
	if cfg.Risk.MinTrustedDays <= 0 {
		return fmt.Errorf("risk: min_trusted_days <= 0")
	}
	if cfg.Risk.MaxRefundRateTrusted <= 0 || cfg.Risk.MaxRefundRateTrusted >= 1 {
		return fmt.Errorf("risk: max_refund_rate_trusted outside (0,1)")
	}
	if cfg.Risk.MaxRefundRateWatchlist <= cfg.Risk.MaxRefundRateTrusted || cfg.Risk.MaxRefundRateWatchlist >= 1 {
		return fmt.Errorf("risk: max_refund_rate_watchlist must sit between max_refund_rate_trusted and 1")
	}
	if cfg.Execution.FailureRate < 0 || cfg.Execution.FailureRate > 1 {
		return fmt.Errorf("execution: failure_rate outside [0,1]")
	}
	if cfg.Execution.IdempotencyTTLSeconds <= 0 {
		return fmt.Errorf("execution: idempotency_ttl_seconds <= 0")
	}
	if cfg.Gateway.RequestsPerMinute <= 0 {
		return fmt.Errorf("gateway: requests_per_minute <= 0")
	}
	if cfg.Gateway.Burst <= 0 {
		return fmt.Errorf("gateway: burst <= 0")
	}
	return nil
}
