package gateway

import (
	"time"

	"github.com/shopspring/decimal"

	"payguard/core/types"
)

// Status is the top-level outcome of a processed intent.
type Status string

const (
	// StatusProcessed marks intents that completed without settlement:
	// inquiries, history lookups and step-up verdicts.
	StatusProcessed Status = "processed"
	// StatusExecuted marks an approved payment that settled.
	StatusExecuted Status = "executed"
	// StatusFailed marks an approved payment whose execution did not settle.
	StatusFailed Status = "failed"
	// StatusDenied marks a payment refused by policy.
	StatusDenied Status = "denied"
	// StatusError marks requests rejected before a policy verdict: bad input,
	// unknown users, throttles and dependency failures.
	StatusError Status = "error"
)

// Response is the envelope returned for every processed intent. Optional
// sections are nil when the pipeline never reached them.
type Response struct {
	Status          Status               `json:"status"`
	Message         string               `json:"message"`
	Intent          *types.PaymentIntent `json:"intent,omitempty"`
	PolicyDecision  types.Decision       `json:"policy_decision,omitempty"`
	ExecutionResult any                  `json:"execution_result,omitempty"`
	RiskInfo        *RiskInfo            `json:"risk_info,omitempty"`
	UserState       *UserState           `json:"user_state,omitempty"`
}

// RiskInfo summarises the policy verdict for the caller.
type RiskInfo struct {
	Score       float64  `json:"score"`
	Violations  []string `json:"violations"`
	PassedRules []string `json:"passed_rules"`
	Reason      string   `json:"reason"`
}

// UserState is the payer snapshot attached to responses whenever the user is
// known, including denials and errors.
type UserState struct {
	Balance            decimal.Decimal     `json:"balance"`
	DailySpend         decimal.Decimal     `json:"daily_spend"`
	DailyLimit         decimal.Decimal     `json:"daily_limit"`
	TrustScore         float64             `json:"trust_score"`
	RecentTransactions []RecentTransaction `json:"recent_transactions"`
}

// RecentTransaction is a compact history line for the user state snapshot.
type RecentTransaction struct {
	Merchant  string          `json:"merchant"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

func riskInfo(result types.PolicyResult) *RiskInfo {
	messages := make([]string, 0, len(result.Violations))
	for _, violation := range result.Violations {
		messages = append(messages, violation.Message)
	}
	passed := append([]string(nil), result.PassedRules...)
	return &RiskInfo{
		Score:       result.RiskScore,
		Violations:  messages,
		PassedRules: passed,
		Reason:      result.Reason,
	}
}
