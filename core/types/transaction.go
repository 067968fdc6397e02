package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionState is the lifecycle label on a transaction record. The legal
// graph is PENDING → APPROVED → EXECUTING → (COMPLETED | FAILED) and
// PENDING → REJECTED; every other edge is refused.
type TransactionState string

const (
	TxStatePending   TransactionState = "PENDING"
	TxStateApproved  TransactionState = "APPROVED"
	TxStateExecuting TransactionState = "EXECUTING"
	TxStateCompleted TransactionState = "COMPLETED"
	TxStateFailed    TransactionState = "FAILED"
	TxStateRejected  TransactionState = "REJECTED"
)

// Valid reports whether the state is a supported value.
func (s TransactionState) Valid() bool {
	switch s {
	case TxStatePending, TxStateApproved, TxStateExecuting, TxStateCompleted, TxStateFailed, TxStateRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are legal from the state.
func (s TransactionState) Terminal() bool {
	switch s {
	case TxStateCompleted, TxStateFailed, TxStateRejected:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the edge from s to next exists in the legal
// state graph.
func (s TransactionState) CanTransition(next TransactionState) bool {
	switch s {
	case TxStatePending:
		return next == TxStateApproved || next == TxStateRejected
	case TxStateApproved:
		return next == TxStateExecuting
	case TxStateExecuting:
		return next == TxStateCompleted || next == TxStateFailed
	default:
		return false
	}
}

// TransactionRecord is the execution unit created by the decision router and
// owned by the execution engine from then on.
type TransactionRecord struct {
	TransactionID string           `json:"transaction_id"`
	IntentID      string           `json:"intent_id"`
	UserID        string           `json:"user_id"`
	Amount        decimal.Decimal  `json:"amount"`
	MerchantVPA   string           `json:"merchant_vpa"`
	State         TransactionState `json:"state"`
	CreatedAt     time.Time        `json:"created_at"`
	ApprovalHash  string           `json:"approval_hash,omitempty"`
	ExecutionHash string           `json:"execution_hash,omitempty"`
	ExecutedAt    *time.Time       `json:"executed_at,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *TransactionRecord) Clone() *TransactionRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.ExecutedAt != nil {
		ts := *r.ExecutedAt
		clone.ExecutedAt = &ts
	}
	return &clone
}

// Transition moves the record to the next state, failing fast on any edge the
// state graph does not permit.
func (r *TransactionRecord) Transition(next TransactionState) error {
	if r == nil {
		return fmt.Errorf("types: nil transaction record")
	}
	if !next.Valid() {
		return fmt.Errorf("types: invalid transaction state %q", string(next))
	}
	if !r.State.CanTransition(next) {
		return fmt.Errorf("types: illegal transaction transition %s -> %s", string(r.State), string(next))
	}
	r.State = next
	return nil
}
