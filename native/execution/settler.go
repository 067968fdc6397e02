package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"

	"payguard/core/types"
)

// ErrNetworkFailure is the failure injected by the simulated settlement rail.
// Its text is persisted verbatim on failed records.
var ErrNetworkFailure = errors.New("simulated network failure")

// DefaultFailureRate is the probability of a simulated settlement failure.
const DefaultFailureRate = 0.05

// SettlementReceipt is returned by a settler on success.
type SettlementReceipt struct {
	Reference string
}

// Settler performs the settlement leg of an approved transaction. A real
// implementation would talk to a UPI PSP; the core only requires the receipt
// or an error.
type Settler interface {
	Settle(ctx context.Context, record *types.TransactionRecord) (SettlementReceipt, error)
}

// SimulatedSettler settles instantly and fails with a configured probability.
type SimulatedSettler struct {
	failureRate float64

	mu   sync.Mutex
	rand func() float64
}

// NewSimulatedSettler builds a settler with the supplied failure probability.
// Rates outside [0,1] fall back to the default.
func NewSimulatedSettler(failureRate float64) *SimulatedSettler {
	if failureRate < 0 || failureRate > 1 {
		failureRate = DefaultFailureRate
	}
	return &SimulatedSettler{
		failureRate: failureRate,
		rand:        rand.Float64,
	}
}

// SetRandFunc overrides the failure dice. Passing nil resets to math/rand.
func (s *SimulatedSettler) SetRandFunc(fn func() float64) {
	if s == nil {
		return
	}
	if fn == nil {
		fn = rand.Float64
	}
	s.mu.Lock()
	s.rand = fn
	s.mu.Unlock()
}

// Settle rolls the failure dice and mints a rail reference on success.
func (s *SimulatedSettler) Settle(ctx context.Context, record *types.TransactionRecord) (SettlementReceipt, error) {
	if err := ctx.Err(); err != nil {
		return SettlementReceipt{}, err
	}
	s.mu.Lock()
	roll := s.rand()
	s.mu.Unlock()
	if roll < s.failureRate {
		return SettlementReceipt{}, ErrNetworkFailure
	}
	return SettlementReceipt{Reference: NewReference()}, nil
}

// NewReference mints a rail-style reference number: "UPI" followed by twelve
// uppercase hex characters.
func NewReference() string {
	id := uuid.New()
	return "UPI" + strings.ToUpper(hex.EncodeToString(id[:6]))
}
