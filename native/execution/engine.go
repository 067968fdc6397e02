// Package execution owns the transaction half of the authorization core: the
// decision router that mints records from policy verdicts and the engine that
// settles approved records at most once per idempotency window.
package execution

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"payguard/core/events"
	"payguard/core/types"
	"payguard/native/intel"
	"payguard/observability"
	"payguard/observability/logging"
)

// Machine-readable failure codes carried inside a Result. They are part of
// the caller contract; Execute never surfaces them as Go errors.
const (
	CodeInvalidState = "INVALID_STATE"
	CodeDuplicate    = "DUPLICATE"
	CodeHashMismatch = "HASH_MISMATCH"
	CodeNetworkError = "NETWORK_ERROR"
	CodeTimeout      = "TIMEOUT"
)

// DefaultIdempotencyTTL is the replay window applied when no TTL is
// configured.
const DefaultIdempotencyTTL = 24 * time.Hour

const lockStripes = 64

// Result reports the outcome of one execution attempt.
type Result struct {
	Success         bool                   `json:"success"`
	TransactionID   string                 `json:"transaction_id"`
	State           types.TransactionState `json:"state"`
	Message         string                 `json:"message"`
	ReferenceNumber string                 `json:"reference_number,omitempty"`
	ExecutionHash   string                 `json:"execution_hash,omitempty"`
	ExecutedAt      *time.Time             `json:"executed_at,omitempty"`
	ErrorCode       string                 `json:"error_code,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
}

// Engine settles approved transactions. Replays inside the idempotency window
// are refused, the approval hash is verified before any state moves, and a
// record that enters EXECUTING always leaves it, even on context expiry.
type Engine struct {
	store    *Store
	settler  Settler
	recorder intel.Recorder
	emitter  events.Emitter
	metrics  *observability.ExecutionMetrics
	ttl      time.Duration
	now      func() time.Time
	locks    [lockStripes]sync.Mutex
}

// NewEngine builds an engine over the transaction store. A nil settler falls
// back to the simulated rail; a nil recorder disables merchant feedback; a
// non-positive ttl falls back to DefaultIdempotencyTTL.
func NewEngine(store *Store, settler Settler, recorder intel.Recorder, ttl time.Duration) *Engine {
	if settler == nil {
		settler = NewSimulatedSettler(DefaultFailureRate)
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &Engine{
		store:    store,
		settler:  settler,
		recorder: recorder,
		emitter:  events.NoopEmitter{},
		metrics:  observability.Execution(),
		ttl:      ttl,
		now:      time.Now,
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

// SetNowFunc overrides the wall clock. Passing nil resets to time.Now.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	e.now = now
}

// Execute drives an approved record through settlement. Business failures
// come back inside the result under one of the Code constants; the returned
// error is reserved for storage faults, on which callers must fail closed.
// Merchant feedback failures are logged and never roll back a settlement.
func (e *Engine) Execute(ctx context.Context, record *types.TransactionRecord) (Result, error) {
	if e == nil || e.store == nil {
		return Result{}, fmt.Errorf("execution: engine not initialised")
	}
	start := time.Now()
	result, err := e.run(ctx, record)
	if err != nil {
		return Result{}, err
	}

	e.metrics.Observe(string(result.State), time.Since(start))
	if result.ErrorCode != "" {
		e.metrics.RecordError(result.ErrorCode)
	}
	if result.Success && e.recorder != nil {
		if _, err := e.recorder.UpdateTransactionStats(ctx, record.MerchantVPA, true, false); err != nil {
			slog.Error("execution: merchant stats update failed",
				"transactionId", record.TransactionID,
				"merchantVpa", logging.MaskVPA(record.MerchantVPA),
				"error", err)
		}
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, record *types.TransactionRecord) (Result, error) {
	if record == nil {
		return Result{
			Message:      "Cannot execute without a transaction record",
			ErrorCode:    CodeInvalidState,
			ErrorMessage: "Expected APPROVED, got nil record",
		}, nil
	}
	if record.State != types.TxStateApproved {
		return Result{
			TransactionID: record.TransactionID,
			State:         record.State,
			Message:       fmt.Sprintf("Cannot execute transaction in state: %s", record.State),
			ErrorCode:     CodeInvalidState,
			ErrorMessage:  fmt.Sprintf("Expected APPROVED, got %s", record.State),
		}, nil
	}

	key := IdempotencyKey(record)
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	originalID, replay, err := e.store.Idempotency(key, e.now())
	if err != nil {
		return Result{}, err
	}
	if replay {
		return Result{
			TransactionID: record.TransactionID,
			State:         types.TxStateFailed,
			Message:       "Duplicate transaction - already processed",
			ErrorCode:     CodeDuplicate,
			ErrorMessage:  "Original transaction: " + originalID,
		}, nil
	}

	if !validApprovalHash(record.ApprovalHash) {
		return Result{
			TransactionID: record.TransactionID,
			State:         types.TxStateFailed,
			Message:       "Hash verification failed - potential tampering",
			ErrorCode:     CodeHashMismatch,
			ErrorMessage:  "Approval hash does not match intent hash",
		}, nil
	}

	// Deadline expiry before the EXECUTING transition leaves no trace.
	if err := ctx.Err(); err != nil {
		return Result{
			TransactionID: record.TransactionID,
			State:         record.State,
			Message:       "Payment timed out - please try again",
			ErrorCode:     CodeTimeout,
			ErrorMessage:  err.Error(),
		}, nil
	}

	if err := record.Transition(types.TxStateExecuting); err != nil {
		return Result{}, err
	}
	if err := e.store.Put(record); err != nil {
		return Result{}, err
	}
	e.emitter.Emit(events.ExecutionStarted{
		TransactionID: record.TransactionID,
		UserID:        record.UserID,
		MerchantVPA:   record.MerchantVPA,
		Amount:        record.Amount.String(),
	})

	receipt, settleErr := e.settler.Settle(ctx, record)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return e.fail(record, CodeTimeout, "Payment timed out - please try again", ctxErr.Error())
	}
	if settleErr != nil {
		return e.fail(record, CodeNetworkError, "Payment failed - please try again", settleErr.Error())
	}

	if err := record.Transition(types.TxStateCompleted); err != nil {
		return Result{}, err
	}
	executedAt := e.now().UTC()
	record.ExecutedAt = &executedAt
	record.ExecutionHash = ExecutionHash(record.TransactionID, executedAt, record.Amount)
	if err := e.store.Put(record); err != nil {
		return Result{}, err
	}
	if err := e.store.PutIdempotency(key, record.TransactionID, executedAt.Add(e.ttl)); err != nil {
		return Result{}, err
	}

	reference := receipt.Reference
	if reference == "" {
		reference = NewReference()
	}
	e.emitter.Emit(events.ExecutionCompleted{
		TransactionID: record.TransactionID,
		SettlementRef: reference,
		ExecutionHash: record.ExecutionHash,
		Amount:        record.Amount.String(),
		ExecutedAt:    executedAt,
	})
	return Result{
		Success:         true,
		TransactionID:   record.TransactionID,
		State:           record.State,
		Message:         fmt.Sprintf("Payment of ₹%s to %s successful", record.Amount.StringFixed(2), record.MerchantVPA),
		ReferenceNumber: reference,
		ExecutionHash:   record.ExecutionHash,
		ExecutedAt:      &executedAt,
	}, nil
}

// fail moves an EXECUTING record to FAILED and reports the failure. The
// record is persisted before the event fires so the ledger never references a
// state the store has not seen.
func (e *Engine) fail(record *types.TransactionRecord, code, message, errorMessage string) (Result, error) {
	if err := record.Transition(types.TxStateFailed); err != nil {
		return Result{}, err
	}
	record.ErrorMessage = errorMessage
	if err := e.store.Put(record); err != nil {
		return Result{}, err
	}
	e.emitter.Emit(events.ExecutionFailed{
		TransactionID: record.TransactionID,
		Code:          code,
		Reason:        errorMessage,
	})
	return Result{
		TransactionID: record.TransactionID,
		State:         record.State,
		Message:       message,
		ErrorCode:     code,
		ErrorMessage:  errorMessage,
	}, nil
}

// Transaction returns the stored record by id.
func (e *Engine) Transaction(id string) (*types.TransactionRecord, bool, error) {
	if e == nil || e.store == nil {
		return nil, false, fmt.Errorf("execution: engine not initialised")
	}
	return e.store.Get(id)
}

// History returns a user's transactions sorted newest-first. Zero start or
// end timestamps leave the window unbounded on that side; a limit of zero or
// below means no cap.
func (e *Engine) History(ctx context.Context, userID string, limit int, start, end time.Time) ([]*types.TransactionRecord, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("execution: engine not initialised")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := e.store.UserTransactions(userID, 0)
	if err != nil {
		return nil, err
	}
	filtered := make([]*types.TransactionRecord, 0, len(records))
	for _, record := range records {
		if !start.IsZero() && record.CreatedAt.Before(start) {
			continue
		}
		if !end.IsZero() && record.CreatedAt.After(end) {
			continue
		}
		filtered = append(filtered, record)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered, nil
}

// MerchantSpend is one slice of a spending breakdown.
type MerchantSpend struct {
	MerchantVPA string          `json:"merchant_vpa"`
	Amount      decimal.Decimal `json:"amount"`
}

// SpendingSummary aggregates a user's outgoing spend over a window.
type SpendingSummary struct {
	TotalSpend       decimal.Decimal `json:"total_spend"`
	TransactionCount int             `json:"transaction_count"`
	Breakdown        []MerchantSpend `json:"breakdown"`
}

// SpendingAnalysis totals COMPLETED and EXECUTING transactions for the user;
// EXECUTING counts because the debit is already in flight. The breakdown is
// sorted by amount, largest first.
func (e *Engine) SpendingAnalysis(ctx context.Context, userID string, start, end time.Time) (SpendingSummary, error) {
	records, err := e.History(ctx, userID, 0, start, end)
	if err != nil {
		return SpendingSummary{}, err
	}
	summary := SpendingSummary{TotalSpend: decimal.Zero}
	byMerchant := make(map[string]decimal.Decimal)
	for _, record := range records {
		if record.State != types.TxStateCompleted && record.State != types.TxStateExecuting {
			continue
		}
		summary.TotalSpend = summary.TotalSpend.Add(record.Amount)
		summary.TransactionCount++
		byMerchant[record.MerchantVPA] = byMerchant[record.MerchantVPA].Add(record.Amount)
	}
	summary.Breakdown = make([]MerchantSpend, 0, len(byMerchant))
	for vpa, amount := range byMerchant {
		summary.Breakdown = append(summary.Breakdown, MerchantSpend{MerchantVPA: vpa, Amount: amount})
	}
	sort.Slice(summary.Breakdown, func(i, j int) bool {
		if !summary.Breakdown[i].Amount.Equal(summary.Breakdown[j].Amount) {
			return summary.Breakdown[i].Amount.GreaterThan(summary.Breakdown[j].Amount)
		}
		return summary.Breakdown[i].MerchantVPA < summary.Breakdown[j].MerchantVPA
	})
	return summary, nil
}

// IdempotencyKey buckets a record into its replay window: payer, payee,
// amount and the creation minute.
func IdempotencyKey(record *types.TransactionRecord) string {
	return strings.Join([]string{
		record.UserID,
		record.MerchantVPA,
		record.Amount.String(),
		record.CreatedAt.UTC().Format("200601021504"),
	}, "|")
}

// ExecutionHash seals the settlement moment into the record.
func ExecutionHash(transactionID string, executedAt time.Time, amount decimal.Decimal) string {
	digest := ethcrypto.Keccak256(
		[]byte(transactionID),
		[]byte(strconv.FormatInt(executedAt.UTC().Unix(), 10)),
		[]byte(amount.String()),
	)
	return hex.EncodeToString(digest)
}

// validApprovalHash accepts exactly 64 hex characters.
func validApprovalHash(hash string) bool {
	hash = strings.TrimSpace(hash)
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func (e *Engine) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &e.locks[h.Sum32()%lockStripes]
}
