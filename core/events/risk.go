package events

import (
	"strings"

	"payguard/core/types"
)

const (
	// TypeRiskStateChanged marks a merchant moving between risk states.
	TypeRiskStateChanged = "RISK_STATE_CHANGED"
	// TypeImpersonationFlagged marks a merchant manually flagged as a brand
	// impersonator.
	TypeImpersonationFlagged = "IMPERSONATION_FLAGGED"
)

// RiskStateChanged records a merchant risk state transition. It is emitted
// only when the state actually changed.
type RiskStateChanged struct {
	MerchantVPA string
	From        types.RiskState
	To          types.RiskState
	Reason      string
}

// EventType satisfies the events.Event interface.
func (RiskStateChanged) EventType() string { return TypeRiskStateChanged }

// Event converts the structured payload into a broadcastable event.
func (e RiskStateChanged) Event() *types.Event {
	merchant := strings.TrimSpace(e.MerchantVPA)
	if merchant == "" {
		return nil
	}
	attrs := map[string]string{
		"merchantVpa": merchant,
		"from":        string(e.From),
		"to":          string(e.To),
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeRiskStateChanged, Attributes: attrs}
}

// ImpersonationFlagged records an operator or detector flagging a merchant as
// impersonating a protected brand. The merchant is blocked as a side effect.
type ImpersonationFlagged struct {
	MerchantVPA string
	Brand       string
	Reason      string
}

// EventType satisfies the events.Event interface.
func (ImpersonationFlagged) EventType() string { return TypeImpersonationFlagged }

// Event converts the structured payload into a broadcastable event.
func (e ImpersonationFlagged) Event() *types.Event {
	merchant := strings.TrimSpace(e.MerchantVPA)
	if merchant == "" {
		return nil
	}
	attrs := map[string]string{"merchantVpa": merchant}
	if brand := strings.TrimSpace(e.Brand); brand != "" {
		attrs["brand"] = brand
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeImpersonationFlagged, Attributes: attrs}
}
