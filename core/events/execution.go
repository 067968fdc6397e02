package events

import (
	"strconv"
	"strings"
	"time"

	"payguard/core/types"
)

const (
	// TypeExecutionStarted marks the moment an approved transaction enters the
	// execution engine.
	TypeExecutionStarted = "EXECUTION_STARTED"
	// TypeExecutionCompleted marks a settled transaction.
	TypeExecutionCompleted = "EXECUTION_COMPLETED"
	// TypeExecutionFailed marks a transaction that entered execution but could
	// not settle.
	TypeExecutionFailed = "EXECUTION_FAILED"
)

// ExecutionStarted records the transition of a transaction into the EXECUTING
// state.
type ExecutionStarted struct {
	TransactionID string
	UserID        string
	MerchantVPA   string
	Amount        string
}

// EventType satisfies the events.Event interface.
func (ExecutionStarted) EventType() string { return TypeExecutionStarted }

// Event converts the structured payload into a broadcastable event.
func (e ExecutionStarted) Event() *types.Event {
	txnID := strings.TrimSpace(e.TransactionID)
	if txnID == "" {
		return nil
	}
	attrs := map[string]string{"transactionId": txnID}
	if user := strings.TrimSpace(e.UserID); user != "" {
		attrs["userId"] = user
	}
	if merchant := strings.TrimSpace(e.MerchantVPA); merchant != "" {
		attrs["merchantVpa"] = merchant
	}
	if amount := strings.TrimSpace(e.Amount); amount != "" {
		attrs["amount"] = amount
	}
	return &types.Event{Type: TypeExecutionStarted, Attributes: attrs}
}

// ExecutionCompleted records a settled transaction together with the rail
// reference and the execution hash that seals the settlement time.
type ExecutionCompleted struct {
	TransactionID string
	SettlementRef string
	ExecutionHash string
	Amount        string
	ExecutedAt    time.Time
}

// EventType satisfies the events.Event interface.
func (ExecutionCompleted) EventType() string { return TypeExecutionCompleted }

// Event converts the structured payload into a broadcastable event.
func (e ExecutionCompleted) Event() *types.Event {
	txnID := strings.TrimSpace(e.TransactionID)
	if txnID == "" {
		return nil
	}
	attrs := map[string]string{"transactionId": txnID}
	if ref := strings.TrimSpace(e.SettlementRef); ref != "" {
		attrs["settlementRef"] = ref
	}
	if hash := strings.TrimSpace(e.ExecutionHash); hash != "" {
		attrs["executionHash"] = hash
	}
	if amount := strings.TrimSpace(e.Amount); amount != "" {
		attrs["amount"] = amount
	}
	if !e.ExecutedAt.IsZero() {
		attrs["executedAtUnix"] = strconv.FormatInt(e.ExecutedAt.UTC().Unix(), 10)
	}
	return &types.Event{Type: TypeExecutionCompleted, Attributes: attrs}
}

// ExecutionFailed records a transaction that could not settle, together with
// the machine-readable error code surfaced to the caller.
type ExecutionFailed struct {
	TransactionID string
	Code          string
	Reason        string
}

// EventType satisfies the events.Event interface.
func (ExecutionFailed) EventType() string { return TypeExecutionFailed }

// Event converts the structured payload into a broadcastable event.
func (e ExecutionFailed) Event() *types.Event {
	txnID := strings.TrimSpace(e.TransactionID)
	if txnID == "" {
		return nil
	}
	attrs := map[string]string{"transactionId": txnID}
	if code := strings.TrimSpace(e.Code); code != "" {
		attrs["code"] = code
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeExecutionFailed, Attributes: attrs}
}
