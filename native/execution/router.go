package execution

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"payguard/core/events"
	"payguard/core/types"
)

// Router turns a policy verdict into a persisted transaction record. APPROVE
// routes to the APPROVED state; everything else lands in REJECTED so denied
// intents still leave an auditable record.
type Router struct {
	store   *Store
	emitter events.Emitter
	now     func() time.Time
}

// NewRouter builds a router over the transaction store.
func NewRouter(store *Store) *Router {
	return &Router{
		store:   store,
		emitter: events.NoopEmitter{},
		now:     time.Now,
	}
}

// SetEmitter wires the audit emitter. Passing nil resets to a no-op emitter.
func (r *Router) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// SetNowFunc overrides the wall clock. Passing nil resets to time.Now.
func (r *Router) SetNowFunc(now func() time.Time) {
	if r == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	r.now = now
}

// Route mints a transaction record for the decided intent, persists it and
// emits TRANSACTION_CREATED. The approval hash binds the intent, the decision
// and the payer so the execution engine can refuse tampered records.
func (r *Router) Route(intent types.PaymentIntent, result types.PolicyResult, userID string) (*types.TransactionRecord, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("execution: router not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("execution: user id required")
	}
	if !result.Decision.Valid() {
		return nil, fmt.Errorf("execution: invalid decision %q", string(result.Decision))
	}

	normalized := intent.Normalized()
	record := &types.TransactionRecord{
		TransactionID: uuid.NewString(),
		IntentID:      normalized.IntentID,
		UserID:        userID,
		Amount:        normalized.Amount,
		MerchantVPA:   normalized.MerchantVPA,
		State:         types.TxStatePending,
		CreatedAt:     r.now().UTC(),
		ApprovalHash:  ApprovalHash(normalized, result.Decision, userID),
	}
	next := types.TxStateRejected
	if result.Decision == types.DecisionApprove {
		next = types.TxStateApproved
	}
	if err := record.Transition(next); err != nil {
		return nil, err
	}
	if err := r.store.Put(record); err != nil {
		return nil, err
	}

	r.emitter.Emit(events.TransactionCreated{
		TransactionID: record.TransactionID,
		IntentID:      record.IntentID,
		UserID:        record.UserID,
		MerchantVPA:   record.MerchantVPA,
		Amount:        record.Amount.String(),
		State:         record.State,
		ApprovalHash:  record.ApprovalHash,
	})
	return record, nil
}

// ApprovalHash derives the binding between a decided intent and its execution
// attempt. Any change to the intent, the decision or the payer produces a
// different digest.
func ApprovalHash(intent types.PaymentIntent, decision types.Decision, userID string) string {
	digest := ethcrypto.Keccak256(
		[]byte(intent.IntentID),
		[]byte(intent.Type),
		[]byte(intent.Amount.String()),
		[]byte(intent.MerchantVPA),
		[]byte(decision),
		[]byte(userID),
	)
	return hex.EncodeToString(digest)
}
