package policy

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"payguard/core/events"
	"payguard/core/types"
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func newTestEngine() *Engine {
	return New(DefaultParams(), testDetector())
}

func TestEvaluateApprove(t *testing.T) {
	engine := newTestEngine()
	result := engine.Evaluate(paymentIntent(100, "friend@upi"), healthyUser(), healthyMerchant("friend@upi"))

	if result.Decision != types.DecisionApprove {
		t.Fatalf("decision %s, want APPROVE (reason: %s)", result.Decision, result.Reason)
	}
	if result.Reason != "All security checks passed" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if result.RiskScore != 0 {
		t.Fatalf("unexpected risk score: %f", result.RiskScore)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", result.Violations)
	}
	wantOrder := []string{
		"balance_sufficient",
		"daily_limit",
		"velocity_burst",
		"new_device_cap",
		"merchant_reputation",
		"fraud_reports",
		"brand_impersonation",
		"merchant_risk_state",
		"new_payee_high_value",
		"trust_score_floor",
	}
	if len(result.PassedRules) != len(wantOrder) {
		t.Fatalf("passed rules %v", result.PassedRules)
	}
	for i, name := range wantOrder {
		if result.PassedRules[i] != name {
			t.Fatalf("rule order mismatch at %d: got %s, want %s", i, result.PassedRules[i], name)
		}
	}
}

func TestEvaluateMissingFields(t *testing.T) {
	engine := newTestEngine()
	intent := types.PaymentIntent{
		IntentID:        "intent-3",
		Type:            types.IntentPayment,
		ConfidenceScore: 0.9,
	}
	result := engine.Evaluate(intent, healthyUser(), healthyMerchant("shop@upi"))

	if result.Decision != types.DecisionDeny {
		t.Fatalf("decision %s, want DENY", result.Decision)
	}
	if result.Reason != "missing required field(s): amount, merchant_vpa" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if result.RiskScore != 1.0 {
		t.Fatalf("unexpected risk score: %f", result.RiskScore)
	}
	if len(result.Violations) != 0 || len(result.PassedRules) != 0 {
		t.Fatalf("rules must not run on malformed intents: %+v", result)
	}
}

func TestEvaluateNilContextFailsClosed(t *testing.T) {
	engine := newTestEngine()
	intent := paymentIntent(100, "shop@upi")

	for name, tc := range map[string]struct {
		user     *types.UserContext
		merchant *types.MerchantContext
	}{
		"nil user":     {nil, healthyMerchant("shop@upi")},
		"nil merchant": {healthyUser(), nil},
		"nil both":     {nil, nil},
	} {
		result := engine.Evaluate(intent, tc.user, tc.merchant)
		if result.Decision != types.DecisionDeny {
			t.Fatalf("%s: decision %s, want DENY", name, result.Decision)
		}
		if result.Reason != "payer or merchant context unavailable" {
			t.Fatalf("%s: unexpected reason: %s", name, result.Reason)
		}
	}
}

func TestEvaluateNonPaymentSkipsContexts(t *testing.T) {
	engine := newTestEngine()
	intent := types.PaymentIntent{
		IntentID:        "intent-4",
		Type:            types.IntentBalanceInquiry,
		ConfidenceScore: 0.9,
	}
	result := engine.Evaluate(intent, nil, nil)
	if result.Decision != types.DecisionApprove {
		t.Fatalf("decision %s, want APPROVE", result.Decision)
	}
	if len(result.PassedRules) != 10 {
		t.Fatalf("expected all rules to pass, got %v", result.PassedRules)
	}
}

func TestEvaluateBlockedMerchantDenied(t *testing.T) {
	engine := newTestEngine()
	merchant := healthyMerchant("shop@upi")
	merchant.RiskState = types.RiskStateBlocked

	result := engine.Evaluate(paymentIntent(100, "shop@upi"), healthyUser(), merchant)
	if result.Decision != types.DecisionDeny {
		t.Fatalf("decision %s, want DENY", result.Decision)
	}
	if result.Reason != "Critical security violation: Merchant is BLOCKED due to fraud risk." {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if result.RiskScore != 1.0 {
		t.Fatalf("unexpected risk score: %f", result.RiskScore)
	}
}

func TestEvaluateImpersonationDenied(t *testing.T) {
	engine := newTestEngine()
	result := engine.Evaluate(paymentIntent(100, "amaz0n@upi"), healthyUser(), healthyMerchant("amaz0n@upi"))

	if result.Decision != types.DecisionDeny {
		t.Fatalf("decision %s, want DENY", result.Decision)
	}
	want := "Critical security violation: Brand Impersonation Detected: VPA 'amaz0n@upi' mimics brand 'amazon'."
	if result.Reason != want {
		t.Fatalf("reason mismatch:\n got %s\nwant %s", result.Reason, want)
	}
	if len(result.Violations) != 1 || result.Violations[0].RuleName != "brand_impersonation" {
		t.Fatalf("unexpected violations: %+v", result.Violations)
	}
}

func TestEvaluateVelocityBurstVerify(t *testing.T) {
	engine := newTestEngine()
	user := healthyUser()
	user.TransactionsLast5m = 10

	result := engine.Evaluate(paymentIntent(10, "friend@upi"), user, healthyMerchant("friend@upi"))
	if result.Decision != types.DecisionVerify {
		t.Fatalf("decision %s, want VERIFY", result.Decision)
	}
	if result.Reason != "Velocity limit exceeded: 10 transactions in the last 5 minutes (max 10)" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if result.RiskScore != 0.35 {
		t.Fatalf("unexpected risk score: %f", result.RiskScore)
	}
}

func TestEvaluateHighMessagesJoined(t *testing.T) {
	engine := newTestEngine()
	user := healthyUser()
	user.TransactionsLast5m = 10
	user.IsKnownDevice = false
	user.DeviceFingerprint = "fp-new"

	result := engine.Evaluate(paymentIntent(250, "friend@upi"), user, healthyMerchant("friend@upi"))
	if result.Decision != types.DecisionVerify {
		t.Fatalf("decision %s, want VERIFY", result.Decision)
	}
	want := "Velocity limit exceeded: 10 transactions in the last 5 minutes (max 10); " +
		"New device detected. Amount ₹250.00 exceeds new device limit of ₹200"
	if result.Reason != want {
		t.Fatalf("reason mismatch:\n got %s\nwant %s", result.Reason, want)
	}
	if result.RiskScore != 0.7 {
		t.Fatalf("unexpected risk score: %f", result.RiskScore)
	}
}

func TestEvaluateMediumVerify(t *testing.T) {
	engine := newTestEngine()
	user := healthyUser()
	user.TrustScore = 0.3

	result := engine.Evaluate(paymentIntent(100, "friend@upi"), user, healthyMerchant("friend@upi"))
	if result.Decision != types.DecisionVerify {
		t.Fatalf("decision %s, want VERIFY", result.Decision)
	}
	if result.Reason != "Additional verification required: Low trust user profile (score: 0.30)" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if result.RiskScore != 0.15 {
		t.Fatalf("unexpected risk score: %f", result.RiskScore)
	}
}

func TestEvaluateRunsEveryRule(t *testing.T) {
	engine := newTestEngine()
	user := healthyUser()
	user.WalletBalance = decimal.NewFromInt(5000)
	user.DailySpendToday = decimal.NewFromInt(1900)
	user.TransactionsLast5m = 12
	user.IsKnownDevice = false
	user.TrustScore = 0.2
	merchant := healthyMerchant("shop@upi")
	merchant.RiskState = types.RiskStateBlocked
	merchant.ReputationScore = 0.1
	merchant.FraudReports = 7

	result := engine.Evaluate(paymentIntent(6000, "shop@upi"), user, merchant)
	if result.Decision != types.DecisionDeny {
		t.Fatalf("decision %s, want DENY", result.Decision)
	}
	if got := len(result.Violations) + len(result.PassedRules); got != 10 {
		t.Fatalf("expected all 10 rules to run, got %d outcomes", got)
	}
	if len(result.Violations) != 9 {
		t.Fatalf("expected 9 violations, got %d: %+v", len(result.Violations), result.Violations)
	}
	// First critical in evaluation order drives the reason.
	if !strings.HasPrefix(result.Reason, "Critical security violation: Insufficient balance") {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if result.RiskScore != 1.0 {
		t.Fatalf("risk score not clamped: %f", result.RiskScore)
	}
}

type panicRule struct {
	baseRule
}

func (panicRule) Evaluate(types.PaymentIntent, *types.UserContext, *types.MerchantContext) (bool, *types.RuleViolation) {
	panic("boom")
}

func TestEvaluateSurvivesPanickingRule(t *testing.T) {
	engine := NewWithRules([]Rule{panicRule{baseRule{
		name:     "explosive",
		category: types.CategoryBehavioral,
		severity: types.SeverityHigh,
	}}})

	result := engine.Evaluate(paymentIntent(100, "shop@upi"), healthyUser(), healthyMerchant("shop@upi"))
	if result.Decision != types.DecisionVerify {
		t.Fatalf("decision %s, want VERIFY", result.Decision)
	}
	if len(result.Violations) != 1 {
		t.Fatalf("expected one violation, got %+v", result.Violations)
	}
	v := result.Violations[0]
	if v.RuleName != "explosive" || v.Severity != types.SeverityHigh {
		t.Fatalf("unexpected violation: %+v", v)
	}
	if v.Message != "rule error: boom" {
		t.Fatalf("unexpected message: %s", v.Message)
	}
}

func TestEvaluateEmitsPolicyEvaluated(t *testing.T) {
	engine := newTestEngine()
	capture := &captureEmitter{}
	engine.SetEmitter(capture)

	engine.Evaluate(paymentIntent(100, "friend@upi"), healthyUser(), healthyMerchant("friend@upi"))
	if len(capture.events) != 1 {
		t.Fatalf("expected one event, got %d", len(capture.events))
	}
	evt, ok := capture.events[0].(events.PolicyEvaluated)
	if !ok {
		t.Fatalf("unexpected event type %T", capture.events[0])
	}
	if evt.EventType() != events.TypePolicyEvaluated {
		t.Fatalf("unexpected event type: %s", evt.EventType())
	}
	if evt.Decision != types.DecisionApprove || evt.Violations != 0 {
		t.Fatalf("unexpected event payload: %+v", evt)
	}
	if evt.UserID != "user-1" || evt.MerchantVPA != "friend@upi" {
		t.Fatalf("unexpected event identity: %+v", evt)
	}
}

func TestEvaluateInvariants(t *testing.T) {
	engine := newTestEngine()
	scenarios := []struct {
		name     string
		intent   types.PaymentIntent
		user     func() *types.UserContext
		merchant func() *types.MerchantContext
	}{
		{"clean", paymentIntent(100, "friend@upi"), healthyUser, func() *types.MerchantContext { return healthyMerchant("friend@upi") }},
		{"impersonation", paymentIntent(100, "amaz0n@upi"), healthyUser, func() *types.MerchantContext { return healthyMerchant("amaz0n@upi") }},
		{"low trust", paymentIntent(100, "friend@upi"), func() *types.UserContext {
			u := healthyUser()
			u.TrustScore = 0.1
			return u
		}, func() *types.MerchantContext { return healthyMerchant("friend@upi") }},
		{"overdraft", paymentIntent(9000, "shop@upi"), healthyUser, func() *types.MerchantContext { return healthyMerchant("shop@upi") }},
	}
	for _, tc := range scenarios {
		result := engine.Evaluate(tc.intent, tc.user(), tc.merchant())
		if result.RiskScore < 0 || result.RiskScore > 1 {
			t.Fatalf("%s: risk score out of range: %f", tc.name, result.RiskScore)
		}
		if result.Decision == types.DecisionApprove {
			if max, found := result.MaxSeverity(); found && max.Rank() >= types.SeverityHigh.Rank() {
				t.Fatalf("%s: approved despite %s violation", tc.name, max)
			}
		}
	}
}
