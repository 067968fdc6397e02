package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"payguard/core/types"
	"payguard/native/brand"
)

// Rule is the contract every policy check implements. Evaluate returns
// passed=false together with a violation describing the failure; a passing
// rule returns (true, nil). Rules are pure with respect to their inputs and
// never touch shared state.
type Rule interface {
	Name() string
	Category() types.RuleCategory
	Description() string
	Severity() types.Severity
	Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (bool, *types.RuleViolation)
}

// Params carries the tunable thresholds for the rule catalog. Zero values are
// not defaulted here; construct via DefaultParams or config.Policy.Limits.
type Params struct {
	DailyLimit            decimal.Decimal
	VelocityWindow        time.Duration
	VelocityMax           int
	NewDeviceCap          decimal.Decimal
	MinMerchantReputation float64
	FraudReportThreshold  uint64
	NewPayeeHighValue     decimal.Decimal
	TrustScoreFloor       float64
}

// DefaultParams returns the stock thresholds.
func DefaultParams() Params {
	return Params{
		DailyLimit:            decimal.NewFromInt(2000),
		VelocityWindow:        5 * time.Minute,
		VelocityMax:           10,
		NewDeviceCap:          decimal.NewFromInt(200),
		MinMerchantReputation: 0.3,
		FraudReportThreshold:  5,
		NewPayeeHighValue:     decimal.NewFromInt(500),
		TrustScoreFloor:       0.4,
	}
}

// Catalog builds the full rule set from the supplied thresholds. The slice is
// ordered by category (hard invariants first) and, within a category, by the
// order rules are registered here. A nil detector disables the brand
// impersonation check.
func Catalog(params Params, detector *brand.Detector) []Rule {
	return []Rule{
		newBalanceSufficientRule(),
		newDailyLimitRule(params.DailyLimit),
		newVelocityBurstRule(params.VelocityMax, params.VelocityWindow),
		newDeviceCapRule(params.NewDeviceCap),
		newMerchantReputationRule(params.MinMerchantReputation),
		newFraudReportsRule(params.FraudReportThreshold),
		newBrandImpersonationRule(detector),
		newMerchantRiskStateRule(),
		newPayeeHighValueRule(params.NewPayeeHighValue),
		newTrustScoreFloorRule(params.TrustScoreFloor),
	}
}

// baseRule carries the static identity shared by every catalog rule.
type baseRule struct {
	name        string
	category    types.RuleCategory
	description string
	severity    types.Severity
}

func (r baseRule) Name() string                 { return r.name }
func (r baseRule) Category() types.RuleCategory { return r.category }
func (r baseRule) Description() string          { return r.description }
func (r baseRule) Severity() types.Severity     { return r.severity }

func (r baseRule) violation(message string, details map[string]string) *types.RuleViolation {
	return &types.RuleViolation{
		RuleName: r.name,
		Category: r.category,
		Severity: r.severity,
		Message:  message,
		Details:  details,
	}
}
