package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PolicyLimits represents the parsed policy thresholds.
type PolicyLimits struct {
	DailyLimit            decimal.Decimal
	VelocityWindow        time.Duration
	VelocityMax           int
	NewDeviceCap          decimal.Decimal
	MinMerchantReputation float64
	FraudReportThreshold  uint64
	NewPayeeHighValue     decimal.Decimal
	TrustScoreFloor       float64
}

// Limits parses the configured policy thresholds into runtime values.
func (p Policy) Limits() (PolicyLimits, error) {
	limits := PolicyLimits{
		VelocityWindow:        time.Duration(p.VelocityWindowSeconds) * time.Second,
		VelocityMax:           p.VelocityMax,
		MinMerchantReputation: p.MinMerchantReputation,
		FraudReportThreshold:  p.FraudReportThreshold,
		TrustScoreFloor:       p.TrustScoreFloor,
	}
	daily, err := parseAmount(p.DailyLimit)
	if err != nil {
		return limits, fmt.Errorf("invalid policy.daily_limit: %w", err)
	}
	limits.DailyLimit = daily
	deviceCap, err := parseAmount(p.NewDeviceCap)
	if err != nil {
		return limits, fmt.Errorf("invalid policy.new_device_cap: %w", err)
	}
	limits.NewDeviceCap = deviceCap
	highValue, err := parseAmount(p.NewPayeeHighValue)
	if err != nil {
		return limits, fmt.Errorf("invalid policy.new_payee_high_value: %w", err)
	}
	limits.NewPayeeHighValue = highValue
	return limits, nil
}

// RiskThresholds represents the parsed merchant lifecycle thresholds.
type RiskThresholds struct {
	MinTrustedTxns         uint64
	MinTrustedAge          time.Duration
	MaxRefundRateTrusted   float64
	MaxRefundRateWatchlist float64
}

// Thresholds parses the configured risk section into runtime values.
func (r Risk) Thresholds() RiskThresholds {
	return RiskThresholds{
		MinTrustedTxns:         r.MinTrustedTxns,
		MinTrustedAge:          time.Duration(r.MinTrustedDays) * 24 * time.Hour,
		MaxRefundRateTrusted:   r.MaxRefundRateTrusted,
		MaxRefundRateWatchlist: r.MaxRefundRateWatchlist,
	}
}

// IdempotencyTTL returns the configured replay window.
func (e Execution) IdempotencyTTL() time.Duration {
	return time.Duration(e.IdempotencyTTLSeconds) * time.Second
}

// ArchiveInterval returns the configured archive export cadence.
func (a Audit) ArchiveInterval() time.Duration {
	return time.Duration(a.ArchiveIntervalSeconds) * time.Second
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
