package events

import (
	"strconv"
	"strings"

	"payguard/core/types"
)

const (
	// TypePolicyEvaluated is emitted after every policy engine run, regardless
	// of the resulting decision.
	TypePolicyEvaluated = "POLICY_EVALUATED"
	// TypeTransactionCreated marks a routed decision that produced a persisted
	// transaction record.
	TypeTransactionCreated = "TRANSACTION_CREATED"
)

// PolicyEvaluated records the outcome of a policy evaluation for the audit
// trail. Violations are summarised by count; the full detail lives in the
// policy result returned to the caller.
type PolicyEvaluated struct {
	IntentID    string
	UserID      string
	MerchantVPA string
	Decision    types.Decision
	RiskScore   float64
	Violations  int
	Reason      string
}

// EventType satisfies the events.Event interface.
func (PolicyEvaluated) EventType() string { return TypePolicyEvaluated }

// Event converts the structured payload into a broadcastable event.
func (e PolicyEvaluated) Event() *types.Event {
	attrs := map[string]string{
		"decision":  string(e.Decision),
		"riskScore": strconv.FormatFloat(e.RiskScore, 'f', 4, 64),
	}
	if intent := strings.TrimSpace(e.IntentID); intent != "" {
		attrs["intentId"] = intent
	}
	if user := strings.TrimSpace(e.UserID); user != "" {
		attrs["userId"] = user
	}
	if merchant := strings.TrimSpace(e.MerchantVPA); merchant != "" {
		attrs["merchantVpa"] = merchant
	}
	if e.Violations > 0 {
		attrs["violations"] = strconv.Itoa(e.Violations)
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypePolicyEvaluated, Attributes: attrs}
}

// TransactionCreated records a freshly routed transaction together with the
// approval hash that binds it to the originating decision.
type TransactionCreated struct {
	TransactionID string
	IntentID      string
	UserID        string
	MerchantVPA   string
	Amount        string
	State         types.TransactionState
	ApprovalHash  string
}

// EventType satisfies the events.Event interface.
func (TransactionCreated) EventType() string { return TypeTransactionCreated }

// Event converts the structured payload into a broadcastable event.
func (e TransactionCreated) Event() *types.Event {
	txnID := strings.TrimSpace(e.TransactionID)
	if txnID == "" {
		return nil
	}
	attrs := map[string]string{
		"transactionId": txnID,
		"state":         string(e.State),
	}
	if intent := strings.TrimSpace(e.IntentID); intent != "" {
		attrs["intentId"] = intent
	}
	if user := strings.TrimSpace(e.UserID); user != "" {
		attrs["userId"] = user
	}
	if merchant := strings.TrimSpace(e.MerchantVPA); merchant != "" {
		attrs["merchantVpa"] = merchant
	}
	if amount := strings.TrimSpace(e.Amount); amount != "" {
		attrs["amount"] = amount
	}
	if hash := strings.TrimSpace(e.ApprovalHash); hash != "" {
		attrs["approvalHash"] = hash
	}
	return &types.Event{Type: TypeTransactionCreated, Attributes: attrs}
}
