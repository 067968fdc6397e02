package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RiskState is the categorical fraud label carried by every merchant. States
// only progress toward BLOCKED; BLOCKED is terminal short of a manual
// operator override.
type RiskState string

const (
	RiskStateNew       RiskState = "NEW"
	RiskStateTrusted   RiskState = "TRUSTED"
	RiskStateWatchlist RiskState = "WATCHLIST"
	RiskStateBlocked   RiskState = "BLOCKED"
)

// Valid reports whether the state is one of the supported values.
func (s RiskState) Valid() bool {
	switch s {
	case RiskStateNew, RiskStateTrusted, RiskStateWatchlist, RiskStateBlocked:
		return true
	default:
		return false
	}
}

// Rank orders states by escalation so monotonic progression can be asserted.
// NEW and TRUSTED share the lowest band; WATCHLIST and BLOCKED escalate.
func (s RiskState) Rank() int {
	switch s {
	case RiskStateNew:
		return 0
	case RiskStateTrusted:
		return 1
	case RiskStateWatchlist:
		return 2
	case RiskStateBlocked:
		return 3
	default:
		return -1
	}
}

// UserContext is the per-payer snapshot consumed by the policy rules. It is
// produced by the surrounding session tracking and mutated only through the
// execution feedback path.
type UserContext struct {
	UserID              string          `json:"user_id"`
	WalletBalance       decimal.Decimal `json:"wallet_balance"`
	DailySpendToday     decimal.Decimal `json:"daily_spend_today"`
	TransactionsToday   int             `json:"transactions_today"`
	TransactionsLast5m  int             `json:"transactions_last_5min"`
	DeviceFingerprint   string          `json:"device_fingerprint"`
	IsKnownDevice       bool            `json:"is_known_device"`
	SessionAgeSeconds   int64           `json:"session_age_seconds"`
	AccountAgeDays      int             `json:"account_age_days"`
	TrustScore          float64         `json:"trust_score"`
	KnownContacts       map[string]bool `json:"known_contacts,omitempty"`
	LastTransactionTime *time.Time      `json:"last_transaction_time,omitempty"`
}

// Clone returns a deep copy so callers can mutate the copy without aliasing
// the stored snapshot.
func (u UserContext) Clone() UserContext {
	clone := u
	if u.KnownContacts != nil {
		clone.KnownContacts = make(map[string]bool, len(u.KnownContacts))
		for vpa, known := range u.KnownContacts {
			clone.KnownContacts[vpa] = known
		}
	}
	if u.LastTransactionTime != nil {
		ts := *u.LastTransactionTime
		clone.LastTransactionTime = &ts
	}
	return clone
}

// KnowsContact reports whether the payee already appears in the payer's
// contact book.
func (u UserContext) KnowsContact(vpa string) bool {
	if len(u.KnownContacts) == 0 {
		return false
	}
	return u.KnownContacts[strings.TrimSpace(vpa)]
}

// MerchantContext is the per-payee snapshot served by the fraud intelligence
// store. All fields are derived values; the store remains the single writer.
type MerchantContext struct {
	MerchantVPA            string    `json:"merchant_vpa"`
	ReputationScore        float64   `json:"reputation_score"`
	IsWhitelisted          bool      `json:"is_whitelisted"`
	TotalTransactions      uint64    `json:"total_transactions"`
	SuccessfulTransactions uint64    `json:"successful_transactions"`
	RefundRate             float64   `json:"refund_rate"`
	FraudReports           uint64    `json:"fraud_reports"`
	RiskState              RiskState `json:"risk_state"`
	FirstSeen              time.Time `json:"first_seen"`
}

// Clone returns a copy of the snapshot.
func (m MerchantContext) Clone() MerchantContext {
	return m
}
