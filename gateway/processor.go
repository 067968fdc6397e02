// Package gateway orchestrates the authorization pipeline: admission,
// payer and merchant context retrieval, policy evaluation, routing and
// execution, and the response envelope callers consume.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payguard/core/types"
	"payguard/native/brand"
	"payguard/native/execution"
	"payguard/native/intel"
	"payguard/native/policy"
	"payguard/observability"
	"payguard/observability/logging"
)

// recentTransactionCount caps the history lines attached to user state.
const recentTransactionCount = 3

// Config carries the dependencies required to construct a Processor.
type Config struct {
	Policy   *policy.Engine
	Router   *execution.Router
	Engine   *execution.Engine
	Intel    intel.Reader
	Recorder intel.Recorder
	Detector *brand.Detector
	Users    UserDirectory

	// DailyLimit is echoed in user state snapshots so callers can render
	// remaining headroom. Zero falls back to the stock limit.
	DailyLimit decimal.Decimal
	// RequestsPerMinute and Burst bound per-user intent admission.
	RequestsPerMinute float64
	Burst             int
}

// Processor drives a single intent through the full authorization pipeline.
// It never returns a Go error for business outcomes; those are reported in
// the Response so callers always fail closed on partial context.
type Processor struct {
	policy     *policy.Engine
	router     *execution.Router
	engine     *execution.Engine
	intel      intel.Reader
	recorder   intel.Recorder
	detector   *brand.Detector
	users      UserDirectory
	dailyLimit decimal.Decimal
	admission  *admission
	metrics    *observability.GatewayMetrics
}

// NewProcessor validates the wiring and returns a ready processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("gateway: policy engine is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("gateway: decision router is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("gateway: execution engine is required")
	}
	if cfg.Intel == nil {
		return nil, fmt.Errorf("gateway: merchant intel reader is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("gateway: user directory is required")
	}
	dailyLimit := cfg.DailyLimit
	if !dailyLimit.IsPositive() {
		dailyLimit = policy.DefaultParams().DailyLimit
	}
	return &Processor{
		policy:     cfg.Policy,
		router:     cfg.Router,
		engine:     cfg.Engine,
		intel:      cfg.Intel,
		recorder:   cfg.Recorder,
		detector:   cfg.Detector,
		users:      cfg.Users,
		dailyLimit: dailyLimit,
		admission:  newAdmission(cfg.RequestsPerMinute, cfg.Burst),
		metrics:    observability.Gateway(),
	}, nil
}

// Process runs one intent through admission, context retrieval, policy and
// execution. The returned error is reserved for a context that was already
// dead on arrival; every operational failure is reported inside the Response
// with status error so the caller never mistakes a dependency outage for an
// approval.
func (p *Processor) Process(ctx context.Context, userID string, intent types.PaymentIntent) (*Response, error) {
	if p == nil {
		return nil, fmt.Errorf("gateway: processor not initialised")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	resp := p.processSafely(ctx, userID, intent)
	p.metrics.Observe(string(intent.Type), string(resp.Status), time.Since(start))
	return resp, nil
}

// processSafely converts panics anywhere below into a dependency failure.
func (p *Processor) processSafely(ctx context.Context, userID string, intent types.PaymentIntent) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("gateway: intent processing panicked", "panic", r)
			resp = &Response{
				Status:  StatusError,
				Message: "Service dependency failed - request not processed",
			}
		}
	}()
	return p.process(ctx, userID, intent)
}

func (p *Processor) process(ctx context.Context, userID string, intent types.PaymentIntent) *Response {
	normalized := intent.Normalized()
	resp := &Response{Intent: &normalized}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		resp.Status = StatusError
		resp.Message = "User context unavailable - request not processed"
		return resp
	}

	if !p.admission.allow(userID) {
		p.metrics.RecordThrottle("rate_limit")
		resp.Status = StatusError
		resp.Message = "Too many requests - please try again shortly"
		return resp
	}

	user, known, err := p.users.User(ctx, userID)
	if err != nil {
		slog.Error("gateway: user lookup failed", "user", userID, "error", err)
		resp.Status = StatusError
		resp.Message = "Service dependency failed - request not processed"
		return resp
	}
	if !known {
		p.metrics.RecordThrottle("unknown_user")
		resp.Status = StatusError
		resp.Message = "User context unavailable - request not processed"
		return resp
	}
	resp.UserState = p.userState(ctx, user)

	if err := normalized.Validate(); err != nil {
		resp.Status = StatusError
		resp.Message = err.Error()
		return resp
	}
	if normalized.Type == types.IntentUnknown {
		resp.Status = StatusError
		resp.Message = "Could not understand the request - no action taken"
		return resp
	}

	switch normalized.Type {
	case types.IntentBalanceInquiry:
		resp.Status = StatusProcessed
		resp.Message = "Balance Inquiry"
		resp.PolicyDecision = types.DecisionApprove
		resp.ExecutionResult = map[string]any{
			"balance":     user.WalletBalance,
			"daily_spend": user.DailySpendToday,
			"currency":    types.DefaultCurrency,
		}
		return resp
	case types.IntentTransactionHistory:
		history, err := p.engine.History(ctx, userID, 0, time.Time{}, time.Time{})
		if err != nil {
			slog.Error("gateway: history lookup failed", "user", userID, "error", err)
			resp.Status = StatusError
			resp.Message = "Service dependency failed - request not processed"
			return resp
		}
		resp.Status = StatusProcessed
		resp.Message = "Transaction History"
		resp.PolicyDecision = types.DecisionApprove
		resp.ExecutionResult = map[string]any{"history": historyEntries(history)}
		return resp
	}

	return p.processPayment(ctx, resp, userID, user, normalized)
}

func (p *Processor) processPayment(ctx context.Context, resp *Response, userID string, user types.UserContext, intent types.PaymentIntent) *Response {
	var merchant *types.MerchantContext
	if intent.MerchantVPA != "" {
		snapshot, err := p.intel.MerchantContext(ctx, intent.MerchantVPA)
		if err != nil {
			slog.Error("gateway: merchant lookup failed",
				"merchant", logging.MaskVPA(intent.MerchantVPA), "error", err)
			resp.Status = StatusError
			resp.Message = "Service dependency failed - request not processed"
			return resp
		}
		merchant = &snapshot

		// A detected imposter is recorded before policy runs so the store
		// blocks the address even when this intent is denied for other
		// reasons.
		if p.detector != nil && p.recorder != nil {
			if impersonating, brandName := p.detector.Check(intent.MerchantVPA); impersonating {
				if err := p.recorder.FlagImpersonation(ctx, intent.MerchantVPA, brandName); err != nil {
					slog.Error("gateway: impersonation flag not recorded",
						"merchant", logging.MaskVPA(intent.MerchantVPA), "brand", brandName, "error", err)
				}
			}
		}
	}

	result := p.policy.Evaluate(intent, &user, merchant)
	resp.PolicyDecision = result.Decision
	resp.RiskInfo = riskInfo(result)
	resp.Message = fmt.Sprintf("Processed: %s", intent.Type)

	switch result.Decision {
	case types.DecisionApprove:
		record, err := p.router.Route(intent, result, userID)
		if err != nil {
			slog.Error("gateway: routing failed", "user", userID, "error", err)
			resp.Status = StatusError
			resp.Message = "Service dependency failed - request not processed"
			return resp
		}
		execResult, err := p.engine.Execute(ctx, record)
		if err != nil {
			slog.Error("gateway: execution store failed", "transaction", record.TransactionID, "error", err)
			resp.Status = StatusError
			resp.Message = "Service dependency failed - request not processed"
			return resp
		}
		resp.ExecutionResult = execResult
		if execResult.Success {
			resp.Status = StatusExecuted
			p.recordSessionSpend(ctx, userID, intent.Amount, execResult.ExecutedAt)
			if user, known, err := p.users.User(ctx, userID); err == nil && known {
				resp.UserState = p.userState(ctx, user)
			}
		} else {
			resp.Status = StatusFailed
		}
	case types.DecisionDeny:
		resp.Status = StatusDenied
		if _, err := p.router.Route(intent, result, userID); err != nil {
			slog.Error("gateway: denied record not persisted", "user", userID, "error", err)
		}
	default:
		resp.Status = StatusProcessed
	}
	return resp
}

// recordSessionSpend applies the post-settlement debit and velocity bump to
// the payer snapshot. Failures are logged; a settled payment is never rolled
// back over session bookkeeping.
func (p *Processor) recordSessionSpend(ctx context.Context, userID string, amount decimal.Decimal, executedAt *time.Time) {
	err := p.users.Apply(ctx, userID, func(user *types.UserContext) {
		user.WalletBalance = user.WalletBalance.Sub(amount)
		user.DailySpendToday = user.DailySpendToday.Add(amount)
		user.TransactionsToday++
		user.TransactionsLast5m++
		if executedAt != nil {
			ts := *executedAt
			user.LastTransactionTime = &ts
		}
	})
	if err != nil {
		slog.Error("gateway: session spend not recorded", "user", userID, "error", err)
	}
}

func (p *Processor) userState(ctx context.Context, user types.UserContext) *UserState {
	state := &UserState{
		Balance:            user.WalletBalance,
		DailySpend:         user.DailySpendToday,
		DailyLimit:         p.dailyLimit,
		TrustScore:         user.TrustScore,
		RecentTransactions: []RecentTransaction{},
	}
	records, err := p.engine.History(ctx, user.UserID, recentTransactionCount, time.Time{}, time.Time{})
	if err != nil {
		slog.Warn("gateway: recent transactions unavailable", "user", user.UserID, "error", err)
		return state
	}
	for _, record := range records {
		line := RecentTransaction{
			Merchant: record.MerchantVPA,
			Amount:   record.Amount,
			Status:   string(record.State),
		}
		if !record.CreatedAt.IsZero() {
			ts := record.CreatedAt
			line.Timestamp = &ts
		}
		state.RecentTransactions = append(state.RecentTransactions, line)
	}
	return state
}

// HistoryEntry is one transaction line in a TRANSACTION_HISTORY result.
type HistoryEntry struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	MerchantVPA   string          `json:"merchant_vpa"`
	State         string          `json:"state"`
	Timestamp     *time.Time      `json:"timestamp,omitempty"`
}

func historyEntries(records []*types.TransactionRecord) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(records))
	for _, record := range records {
		entry := HistoryEntry{
			TransactionID: record.TransactionID,
			Amount:        record.Amount,
			MerchantVPA:   record.MerchantVPA,
			State:         string(record.State),
		}
		if !record.CreatedAt.IsZero() {
			ts := record.CreatedAt
			entry.Timestamp = &ts
		}
		entries = append(entries, entry)
	}
	return entries
}
