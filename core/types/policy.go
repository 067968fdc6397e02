package types

// Severity grades how badly a rule violation compromises the payment. The
// ordering drives both the final decision and the additive risk score.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is a supported value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank orders severities from low (0) to critical (3). Unknown values rank
// below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Weight is the risk-score contribution of a single violation at this
// severity. The policy engine clamps the sum into [0,1].
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.05
	case SeverityMedium:
		return 0.15
	case SeverityHigh:
		return 0.35
	case SeverityCritical:
		return 1.0
	default:
		return 0
	}
}

// RuleCategory groups rules for evaluation ordering and reporting.
type RuleCategory string

const (
	CategoryHardInvariant RuleCategory = "HARD_INVARIANT"
	CategoryVelocity      RuleCategory = "VELOCITY"
	CategoryBehavioral    RuleCategory = "BEHAVIORAL"
	CategoryTrust         RuleCategory = "TRUST"
)

// RuleCategories returns the evaluation order shared by the rule catalog and
// the policy engine.
func RuleCategories() []RuleCategory {
	return []RuleCategory{CategoryHardInvariant, CategoryVelocity, CategoryBehavioral, CategoryTrust}
}

// Valid reports whether the category is a supported value.
func (c RuleCategory) Valid() bool {
	switch c {
	case CategoryHardInvariant, CategoryVelocity, CategoryBehavioral, CategoryTrust:
		return true
	default:
		return false
	}
}

// Decision is the policy engine's verdict on an intent.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionDeny    Decision = "DENY"
	DecisionVerify  Decision = "VERIFY"
)

// Valid reports whether the decision is a supported value.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionDeny, DecisionVerify:
		return true
	default:
		return false
	}
}

// RuleViolation records a single failed rule. Details carries rule-specific
// context as formatted strings so violations can travel on audit events
// unchanged.
type RuleViolation struct {
	RuleName string            `json:"rule_name"`
	Category RuleCategory      `json:"category"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
}

// Clone returns a deep copy of the violation.
func (v RuleViolation) Clone() RuleViolation {
	clone := v
	if v.Details != nil {
		clone.Details = make(map[string]string, len(v.Details))
		for k, val := range v.Details {
			clone.Details[k] = val
		}
	}
	return clone
}

// PolicyResult composes every rule outcome into a single decision. Violations
// preserve evaluation order; PassedRules lists the names of rules that held.
type PolicyResult struct {
	Decision    Decision        `json:"decision"`
	RiskScore   float64         `json:"risk_score"`
	Violations  []RuleViolation `json:"violations"`
	PassedRules []string        `json:"passed_rules"`
	Reason      string          `json:"reason"`
}

// Clone returns a deep copy of the result.
func (r PolicyResult) Clone() PolicyResult {
	clone := r
	if r.Violations != nil {
		clone.Violations = make([]RuleViolation, len(r.Violations))
		for i, v := range r.Violations {
			clone.Violations[i] = v.Clone()
		}
	}
	if r.PassedRules != nil {
		clone.PassedRules = append([]string(nil), r.PassedRules...)
	}
	return clone
}

// MaxSeverity returns the highest severity among the violations, or false when
// there are none.
func (r PolicyResult) MaxSeverity() (Severity, bool) {
	var max Severity
	found := false
	for _, v := range r.Violations {
		if !found || v.Severity.Rank() > max.Rank() {
			max = v.Severity
			found = true
		}
	}
	return max, found
}
