package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payguard/core/types"
	"payguard/native/brand"
)

// balanceSufficientRule refuses payments larger than the payer's wallet.
type balanceSufficientRule struct {
	baseRule
}

func newBalanceSufficientRule() *balanceSufficientRule {
	return &balanceSufficientRule{baseRule{
		name:        "balance_sufficient",
		category:    types.CategoryHardInvariant,
		description: "Payment amount must not exceed wallet balance",
		severity:    types.SeverityCritical,
	}}
}

func (r *balanceSufficientRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || user == nil {
		return true, nil
	}
	if intent.Amount.GreaterThan(user.WalletBalance) {
		return false, r.violation(
			fmt.Sprintf("Insufficient balance: wallet holds ₹%s, payment requires ₹%s",
				user.WalletBalance.StringFixed(2), intent.Amount.StringFixed(2)),
			map[string]string{
				"wallet_balance":   user.WalletBalance.StringFixed(2),
				"requested_amount": intent.Amount.StringFixed(2),
			})
	}
	return true, nil
}

// dailyLimitRule caps cumulative spend per calendar day.
type dailyLimitRule struct {
	baseRule
	limit decimal.Decimal
}

func newDailyLimitRule(limit decimal.Decimal) *dailyLimitRule {
	return &dailyLimitRule{baseRule: baseRule{
		name:        "daily_limit",
		category:    types.CategoryHardInvariant,
		description: "Cumulative daily spend must stay within the daily limit",
		severity:    types.SeverityCritical,
	}, limit: limit}
}

func (r *dailyLimitRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || user == nil {
		return true, nil
	}
	projected := user.DailySpendToday.Add(intent.Amount)
	if projected.GreaterThan(r.limit) {
		return false, r.violation(
			fmt.Sprintf("Payment of ₹%s would exceed daily limit of ₹%s (spent today ₹%s)",
				intent.Amount.StringFixed(2), r.limit.String(), user.DailySpendToday.StringFixed(2)),
			map[string]string{
				"requested_amount": intent.Amount.StringFixed(2),
				"daily_spend":      user.DailySpendToday.StringFixed(2),
				"daily_limit":      r.limit.String(),
			})
	}
	return true, nil
}

// velocityBurstRule flags payment bursts inside the rolling window.
type velocityBurstRule struct {
	baseRule
	max    int
	window time.Duration
}

func newVelocityBurstRule(max int, window time.Duration) *velocityBurstRule {
	return &velocityBurstRule{baseRule: baseRule{
		name:        "velocity_burst",
		category:    types.CategoryVelocity,
		description: "Cap the number of payments inside the rolling window",
		severity:    types.SeverityHigh,
	}, max: max, window: window}
}

func (r *velocityBurstRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || user == nil {
		return true, nil
	}
	if user.TransactionsLast5m >= r.max {
		return false, r.violation(
			fmt.Sprintf("Velocity limit exceeded: %d transactions in the last %d minutes (max %d)",
				user.TransactionsLast5m, int(r.window.Minutes()), r.max),
			map[string]string{
				"transactions_in_window": strconv.Itoa(user.TransactionsLast5m),
				"velocity_max":           strconv.Itoa(r.max),
			})
	}
	return true, nil
}

// deviceCapRule applies a stricter amount ceiling to unrecognized devices.
type deviceCapRule struct {
	baseRule
	cap decimal.Decimal
}

func newDeviceCapRule(cap decimal.Decimal) *deviceCapRule {
	return &deviceCapRule{baseRule: baseRule{
		name:        "new_device_cap",
		category:    types.CategoryBehavioral,
		description: "Validate device and apply new device limits",
		severity:    types.SeverityHigh,
	}, cap: cap}
}

func (r *deviceCapRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || user == nil {
		return true, nil
	}
	if !user.IsKnownDevice && intent.Amount.GreaterThan(r.cap) {
		fingerprint := user.DeviceFingerprint
		if len(fingerprint) > 8 {
			fingerprint = fingerprint[:8] + "..."
		}
		return false, r.violation(
			fmt.Sprintf("New device detected. Amount ₹%s exceeds new device limit of ₹%s",
				intent.Amount.StringFixed(2), r.cap.String()),
			map[string]string{
				"is_known_device":    "false",
				"device_fingerprint": fingerprint,
				"requested_amount":   intent.Amount.StringFixed(2),
				"new_device_limit":   r.cap.String(),
			})
	}
	return true, nil
}

// merchantReputationRule flags payees with a reputation under the floor.
type merchantReputationRule struct {
	baseRule
	min float64
}

func newMerchantReputationRule(min float64) *merchantReputationRule {
	return &merchantReputationRule{baseRule: baseRule{
		name:        "merchant_reputation",
		category:    types.CategoryBehavioral,
		description: fmt.Sprintf("Merchant reputation must be above %.2f", min),
		severity:    types.SeverityHigh,
	}, min: min}
}

func (r *merchantReputationRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || merchant == nil {
		return true, nil
	}
	if merchant.ReputationScore < r.min {
		return false, r.violation(
			fmt.Sprintf("Merchant reputation (%.2f) below threshold (%.2f). Fraud reports: %d",
				merchant.ReputationScore, r.min, merchant.FraudReports),
			map[string]string{
				"merchant_vpa":     merchant.MerchantVPA,
				"reputation_score": formatScore(merchant.ReputationScore),
				"threshold":        formatScore(r.min),
				"fraud_reports":    strconv.FormatUint(merchant.FraudReports, 10),
				"refund_rate":      formatScore(merchant.RefundRate),
			})
	}
	return true, nil
}

// fraudReportsRule flags payees with too many user fraud reports.
type fraudReportsRule struct {
	baseRule
	threshold uint64
}

func newFraudReportsRule(threshold uint64) *fraudReportsRule {
	return &fraudReportsRule{baseRule: baseRule{
		name:        "fraud_reports",
		category:    types.CategoryBehavioral,
		description: "Flag merchants with fraud reports",
		severity:    types.SeverityHigh,
	}, threshold: threshold}
}

func (r *fraudReportsRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || merchant == nil {
		return true, nil
	}
	if merchant.FraudReports >= r.threshold {
		return false, r.violation(
			fmt.Sprintf("Merchant has %d fraud reports", merchant.FraudReports),
			map[string]string{
				"merchant_vpa":  merchant.MerchantVPA,
				"fraud_reports": strconv.FormatUint(merchant.FraudReports, 10),
				"refund_rate":   formatScore(merchant.RefundRate),
			})
	}
	return true, nil
}

// brandImpersonationRule refuses payees whose address mimics a known brand.
type brandImpersonationRule struct {
	baseRule
	detector *brand.Detector
}

func newBrandImpersonationRule(detector *brand.Detector) *brandImpersonationRule {
	return &brandImpersonationRule{baseRule: baseRule{
		name:        "brand_impersonation",
		category:    types.CategoryBehavioral,
		description: "Prevent brand impersonation and typosquatting",
		severity:    types.SeverityCritical,
	}, detector: detector}
}

func (r *brandImpersonationRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || r.detector == nil {
		return true, nil
	}
	vpa := strings.TrimSpace(intent.MerchantVPA)
	if vpa == "" {
		return true, nil
	}
	impersonating, brandName := r.detector.Check(vpa)
	if impersonating {
		return false, r.violation(
			fmt.Sprintf("Brand Impersonation Detected: VPA '%s' mimics brand '%s'.", vpa, brandName),
			map[string]string{
				"merchant_vpa": vpa,
				"target_brand": brandName,
			})
	}
	return true, nil
}

// merchantRiskStateRule enforces the fraud lifecycle verdicts.
type merchantRiskStateRule struct {
	baseRule
}

func newMerchantRiskStateRule() *merchantRiskStateRule {
	return &merchantRiskStateRule{baseRule{
		name:        "merchant_risk_state",
		category:    types.CategoryBehavioral,
		description: "Enforce merchant risk state restrictions",
		severity:    types.SeverityCritical,
	}}
}

func (r *merchantRiskStateRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || merchant == nil {
		return true, nil
	}
	switch merchant.RiskState {
	case types.RiskStateBlocked:
		return false, r.violation("Merchant is BLOCKED due to fraud risk.",
			map[string]string{"risk_state": string(merchant.RiskState)})
	case types.RiskStateWatchlist:
		return false, r.violation("Merchant is on WATCHLIST.",
			map[string]string{"risk_state": string(merchant.RiskState)})
	default:
		return true, nil
	}
}

// payeeHighValueRule flags large payments to addresses outside the payer's
// contact book.
type payeeHighValueRule struct {
	baseRule
	threshold decimal.Decimal
}

func newPayeeHighValueRule(threshold decimal.Decimal) *payeeHighValueRule {
	return &payeeHighValueRule{baseRule: baseRule{
		name:        "new_payee_high_value",
		category:    types.CategoryTrust,
		description: "Flag high value payments to payees outside the contact book",
		severity:    types.SeverityMedium,
	}, threshold: threshold}
}

func (r *payeeHighValueRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || user == nil {
		return true, nil
	}
	if intent.Amount.GreaterThan(r.threshold) && !user.KnowsContact(intent.MerchantVPA) {
		return false, r.violation(
			fmt.Sprintf("High value payment to new payee: %s", strings.TrimSpace(intent.MerchantVPA)),
			map[string]string{
				"merchant_vpa":     strings.TrimSpace(intent.MerchantVPA),
				"requested_amount": intent.Amount.StringFixed(2),
				"threshold":        r.threshold.String(),
			})
	}
	return true, nil
}

// trustScoreFloorRule asks for verification when the payer profile itself is
// weak.
type trustScoreFloorRule struct {
	baseRule
	floor float64
}

func newTrustScoreFloorRule(floor float64) *trustScoreFloorRule {
	return &trustScoreFloorRule{baseRule: baseRule{
		name:        "trust_score_floor",
		category:    types.CategoryTrust,
		description: "Require a minimum user trust score",
		severity:    types.SeverityMedium,
	}, floor: floor}
}

func (r *trustScoreFloorRule) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation) {
	if intent.Type != types.IntentPayment || user == nil {
		return true, nil
	}
	if user.TrustScore < r.floor {
		return false, r.violation(
			fmt.Sprintf("Low trust user profile (score: %.2f)", user.TrustScore),
			map[string]string{
				"trust_score": formatScore(user.TrustScore),
				"trust_floor": formatScore(r.floor),
			})
	}
	return true, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
