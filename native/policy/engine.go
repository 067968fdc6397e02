package policy

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"payguard/core/events"
	"payguard/core/types"
	"payguard/native/brand"
	"payguard/observability"
)

// Engine composes the rule catalog into a single decision per intent. It
// holds no mutable state; the same inputs always produce the same result.
type Engine struct {
	rules   []Rule
	emitter events.Emitter
	metrics *observability.PolicyMetrics
}

// New builds an engine over the stock catalog.
func New(params Params, detector *brand.Detector) *Engine {
	return NewWithRules(Catalog(params, detector))
}

// NewWithRules builds an engine over a custom rule set. The rules are
// reordered by category (hard invariants, velocity, behavioral, trust);
// relative order within a category is preserved.
func NewWithRules(rules []Rule) *Engine {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return categoryRank(ordered[i].Category()) < categoryRank(ordered[j].Category())
	})
	return &Engine{
		rules:   ordered,
		emitter: events.NoopEmitter{},
		metrics: observability.Policy(),
	}
}

// SetEmitter wires the audit emitter. Passing nil resets to a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Evaluate runs every rule against the intent and composes the verdict.
// PAYMENT intents missing required fields are denied before any rule runs;
// PAYMENT intents without payer or merchant snapshots are denied rather than
// evaluated on partial context.
func (e *Engine) Evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) types.PolicyResult {
	start := time.Now()
	normalized := intent.Normalized()
	result := e.evaluate(normalized, user, merchant)

	e.metrics.ObserveDecision(string(result.Decision), time.Since(start))
	for _, v := range result.Violations {
		e.metrics.RecordViolation(v.RuleName, string(v.Severity))
	}
	var userID string
	if user != nil {
		userID = user.UserID
	}
	e.emitter.Emit(events.PolicyEvaluated{
		IntentID:    normalized.IntentID,
		UserID:      userID,
		MerchantVPA: normalized.MerchantVPA,
		Decision:    result.Decision,
		RiskScore:   result.RiskScore,
		Violations:  len(result.Violations),
		Reason:      result.Reason,
	})
	return result
}

func (e *Engine) evaluate(intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) types.PolicyResult {
	if missing := intent.MissingPaymentFields(); len(missing) > 0 {
		return types.PolicyResult{
			Decision:  types.DecisionDeny,
			RiskScore: 1.0,
			Reason:    "missing required field(s): " + strings.Join(missing, ", "),
		}
	}
	if intent.Type == types.IntentPayment && (user == nil || merchant == nil) {
		return types.PolicyResult{
			Decision:  types.DecisionDeny,
			RiskScore: 1.0,
			Reason:    "payer or merchant context unavailable",
		}
	}

	violations := make([]types.RuleViolation, 0, 4)
	passed := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		ok, violation := runRule(rule, intent, user, merchant)
		if ok {
			passed = append(passed, rule.Name())
			continue
		}
		if violation == nil {
			violation = &types.RuleViolation{
				RuleName: rule.Name(),
				Category: rule.Category(),
				Severity: types.SeverityHigh,
				Message:  "rule error: failed without violation",
			}
		}
		violations = append(violations, *violation)
	}

	result := types.PolicyResult{
		Decision:    types.DecisionApprove,
		Violations:  violations,
		PassedRules: passed,
		Reason:      "All security checks passed",
	}
	var score float64
	for _, v := range violations {
		score += v.Severity.Weight()
	}
	result.RiskScore = clamp01(score)

	max, found := result.MaxSeverity()
	if !found {
		return result
	}
	switch max {
	case types.SeverityCritical:
		result.Decision = types.DecisionDeny
		result.Reason = "Critical security violation: " + messagesAt(violations, types.SeverityCritical)[0]
	case types.SeverityHigh:
		result.Decision = types.DecisionVerify
		result.Reason = strings.Join(messagesAt(violations, types.SeverityHigh), "; ")
	default:
		result.Decision = types.DecisionVerify
		result.Reason = "Additional verification required: " + strings.Join(messagesAt(violations, ""), "; ")
	}
	return result
}

// runRule shields the engine from panicking rules. A panic is reported as a
// high-severity violation attributed to the rule.
func runRule(rule Rule, intent types.PaymentIntent, user *types.UserContext, merchant *types.MerchantContext) (passed bool, violation *types.RuleViolation) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("policy: rule panicked", "rule", rule.Name(), "panic", fmt.Sprint(r))
			passed = false
			violation = &types.RuleViolation{
				RuleName: rule.Name(),
				Category: rule.Category(),
				Severity: types.SeverityHigh,
				Message:  fmt.Sprintf("rule error: %v", r),
			}
		}
	}()
	return rule.Evaluate(intent, user, merchant)
}

// messagesAt collects violation messages at the given severity; an empty
// severity collects all of them.
func messagesAt(violations []types.RuleViolation, severity types.Severity) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		if severity == "" || v.Severity == severity {
			out = append(out, v.Message)
		}
	}
	return out
}

func categoryRank(category types.RuleCategory) int {
	for i, c := range types.RuleCategories() {
		if c == category {
			return i
		}
	}
	return len(types.RuleCategories())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
