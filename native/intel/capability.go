package intel

import (
	"context"

	"payguard/core/types"
)

// Reader is the read-only capability handed to policy orchestration. Callers
// that only need merchant snapshots should depend on this instead of the full
// store.
type Reader interface {
	MerchantContext(ctx context.Context, vpa string) (types.MerchantContext, error)
}

// Recorder is the mutation capability consumed by the execution feedback path
// and the impersonation flagging flow.
type Recorder interface {
	UpdateTransactionStats(ctx context.Context, vpa string, success, isRefund bool) (types.RiskState, error)
	FlagImpersonation(ctx context.Context, vpa, brand string) error
}

var (
	_ Reader   = (*Store)(nil)
	_ Recorder = (*Store)(nil)
)
