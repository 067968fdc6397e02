package risk

import (
	"fmt"
	"time"

	"payguard/core/types"
)

// Policy carries the thresholds steering the merchant lifecycle. All rates
// are fractions in [0,1].
type Policy struct {
	// MinTrustedTxns is the transaction count required before a NEW merchant
	// can be promoted.
	MinTrustedTxns uint64
	// MinTrustedAge is how long a merchant must have been observed before
	// promotion.
	MinTrustedAge time.Duration
	// PromoteRefundRate is the refund rate a NEW merchant must stay below to
	// earn TRUSTED.
	PromoteRefundRate float64
	// WatchlistRefundRate is the refund rate above which a TRUSTED merchant
	// is demoted.
	WatchlistRefundRate float64
	// BlockRefundRate is the refund rate above which a WATCHLIST merchant is
	// blocked outright.
	BlockRefundRate float64
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinTrustedTxns:      5,
		MinTrustedAge:       7 * 24 * time.Hour,
		PromoteRefundRate:   0.05,
		WatchlistRefundRate: 0.20,
		BlockRefundRate:     0.50,
	}
}

// EvaluateInput captures a merchant's evidence at evaluation time.
type EvaluateInput struct {
	CurrentState    types.RiskState
	TotalTxns       uint64
	TotalRefunds    uint64
	FirstSeen       time.Time
	IsImpersonating bool
	Now             time.Time
}

// EvaluateResult reports the next state and, when it differs from the current
// one, a short reason suitable for the audit trail.
type EvaluateResult struct {
	State   types.RiskState
	Changed bool
	Reason  string
}

// Evaluate computes the next risk state for a merchant. It is a total, pure
// function: no evidence combination errors, and the same input always yields
// the same output.
//
// Transitions are tried top-down, first match wins:
//
//	impersonation           -> BLOCKED, from any state
//	BLOCKED                 -> BLOCKED (terminal)
//	NEW       -> TRUSTED    when txns, age and refund rate all clear the bar
//	TRUSTED   -> WATCHLIST  when the refund rate exceeds the watchlist bar
//	WATCHLIST -> BLOCKED    when the refund rate exceeds the block bar
//
// Recovery from WATCHLIST or BLOCKED is a manual operation, never automatic.
func Evaluate(input EvaluateInput, policy Policy) EvaluateResult {
	current := input.CurrentState
	if !current.Valid() {
		current = types.RiskStateNew
	}

	if input.IsImpersonating {
		return EvaluateResult{
			State:   types.RiskStateBlocked,
			Changed: current != types.RiskStateBlocked,
			Reason:  "brand impersonation",
		}
	}
	if current == types.RiskStateBlocked {
		return EvaluateResult{State: types.RiskStateBlocked}
	}

	rate := RefundRate(input.TotalTxns, input.TotalRefunds)

	switch current {
	case types.RiskStateNew:
		age := merchantAge(input.FirstSeen, input.Now)
		if input.TotalTxns >= policy.MinTrustedTxns && age >= policy.MinTrustedAge && rate < policy.PromoteRefundRate {
			return EvaluateResult{
				State:   types.RiskStateTrusted,
				Changed: true,
				Reason:  fmt.Sprintf("promoted after %d transactions over %d days", input.TotalTxns, int(age.Hours()/24)),
			}
		}
	case types.RiskStateTrusted:
		if rate > policy.WatchlistRefundRate {
			return EvaluateResult{
				State:   types.RiskStateWatchlist,
				Changed: true,
				Reason:  fmt.Sprintf("refund rate %.2f above %.2f", rate, policy.WatchlistRefundRate),
			}
		}
	case types.RiskStateWatchlist:
		if rate > policy.BlockRefundRate {
			return EvaluateResult{
				State:   types.RiskStateBlocked,
				Changed: true,
				Reason:  fmt.Sprintf("refund rate %.2f above %.2f", rate, policy.BlockRefundRate),
			}
		}
	}

	return EvaluateResult{State: current, Changed: current != input.CurrentState}
}

// RefundRate computes refunds over transactions, defining 0/0 as zero so
// brand-new merchants are never penalised for missing history.
func RefundRate(totalTxns, totalRefunds uint64) float64 {
	if totalTxns == 0 {
		return 0
	}
	return float64(totalRefunds) / float64(totalTxns)
}

func merchantAge(firstSeen, now time.Time) time.Duration {
	if firstSeen.IsZero() || now.Before(firstSeen) {
		return 0
	}
	return now.Sub(firstSeen)
}
