package intel

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"payguard/core/events"
	"payguard/core/types"
	"payguard/native/risk"
	"payguard/observability"
)

// ErrMerchantRequired is returned when an operation is missing the merchant
// address.
var ErrMerchantRequired = errors.New("intel: merchant vpa required")

const lockStripes = 64

// MerchantScore is the persisted per-merchant evidence row. It is the single
// source of truth for merchant risk; everything else reads derived snapshots.
type MerchantScore struct {
	MerchantVPA     string    `gorm:"column:merchant_vpa;primaryKey;size:128"`
	RiskState       string    `gorm:"column:risk_state;size:16;index"`
	TotalTxns       uint64    `gorm:"column:total_txns"`
	TotalRefunds    uint64    `gorm:"column:total_refunds"`
	FraudReports    uint64    `gorm:"column:fraud_reports"`
	ReputationScore float64   `gorm:"column:reputation_score"`
	IsWhitelisted   bool      `gorm:"column:is_whitelisted"`
	FirstSeen       time.Time `gorm:"column:first_seen"`
	LastUpdated     time.Time `gorm:"column:last_updated"`
}

// TableName pins the historical table name.
func (MerchantScore) TableName() string { return "scores" }

// Open connects to the merchant intelligence database. DSNs with a postgres
// scheme use the shared server driver; anything else is treated as an
// embedded sqlite file path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("intel: dsn required")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
}

// Store owns merchant risk records. All mutations of a single merchant are
// serialized through striped locks; reads see committed snapshots only.
type Store struct {
	db      *gorm.DB
	policy  risk.Policy
	emitter events.Emitter
	metrics *observability.IntelMetrics
	now     func() time.Time
	locks   [lockStripes]sync.Mutex
}

// NewStore migrates the schema and returns a store enforcing the supplied
// lifecycle policy.
func NewStore(db *gorm.DB, policy risk.Policy) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("intel: database required")
	}
	if err := db.AutoMigrate(&MerchantScore{}); err != nil {
		return nil, fmt.Errorf("intel: migrate: %w", err)
	}
	return &Store{
		db:      db,
		policy:  policy,
		emitter: events.NoopEmitter{},
		metrics: observability.Intel(),
		now:     time.Now,
	}, nil
}

// SetEmitter wires the audit emitter. Passing nil resets to a no-op emitter.
func (s *Store) SetEmitter(emitter events.Emitter) {
	if s == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	s.emitter = emitter
}

// SetNowFunc overrides the wall clock. Passing nil resets to time.Now.
func (s *Store) SetNowFunc(now func() time.Time) {
	if s == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// MerchantContext returns the current snapshot for a merchant. Unseen
// merchants synthesize a NEW context with a neutral reputation so policy
// evaluation never blocks on missing history.
func (s *Store) MerchantContext(ctx context.Context, vpa string) (types.MerchantContext, error) {
	vpa = strings.TrimSpace(vpa)
	if vpa == "" {
		return types.MerchantContext{}, ErrMerchantRequired
	}
	var score MerchantScore
	err := s.db.WithContext(ctx).First(&score, "merchant_vpa = ?", vpa).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultContext(vpa), nil
	}
	if err != nil {
		return types.MerchantContext{}, fmt.Errorf("intel: load merchant %s: %w", vpa, err)
	}
	return snapshot(score), nil
}

// UpdateTransactionStats records an execution observation for a merchant and
// re-evaluates its risk state. It returns the state after evaluation. A
// RISK_STATE_CHANGED event is emitted if and only if the state moved.
func (s *Store) UpdateTransactionStats(ctx context.Context, vpa string, success, isRefund bool) (types.RiskState, error) {
	vpa = strings.TrimSpace(vpa)
	if vpa == "" {
		return "", ErrMerchantRequired
	}

	lock := s.lockFor(vpa)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().UTC()
	var result risk.EvaluateResult
	var previous types.RiskState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		score, exists, err := loadScore(tx, vpa, now)
		if err != nil {
			return err
		}
		if success {
			score.TotalTxns++
		}
		if isRefund {
			score.TotalRefunds++
		}
		previous = types.RiskState(score.RiskState)
		result = risk.Evaluate(risk.EvaluateInput{
			CurrentState: previous,
			TotalTxns:    score.TotalTxns,
			TotalRefunds: score.TotalRefunds,
			FirstSeen:    score.FirstSeen,
			Now:          now,
		}, s.policy)
		score.RiskState = string(result.State)
		score.LastUpdated = now
		return saveScore(tx, score, exists)
	})
	if err != nil {
		return "", fmt.Errorf("intel: update stats for %s: %w", vpa, err)
	}

	if result.Changed {
		s.recordTransition(vpa, previous, result)
	}
	return result.State, nil
}

// FlagImpersonation forces a merchant into the BLOCKED state.
func (s *Store) FlagImpersonation(ctx context.Context, vpa, brand string) error {
	vpa = strings.TrimSpace(vpa)
	if vpa == "" {
		return ErrMerchantRequired
	}

	lock := s.lockFor(vpa)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().UTC()
	var result risk.EvaluateResult
	var previous types.RiskState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		score, exists, err := loadScore(tx, vpa, now)
		if err != nil {
			return err
		}
		previous = types.RiskState(score.RiskState)
		result = risk.Evaluate(risk.EvaluateInput{
			CurrentState:    previous,
			TotalTxns:       score.TotalTxns,
			TotalRefunds:    score.TotalRefunds,
			FirstSeen:       score.FirstSeen,
			IsImpersonating: true,
			Now:             now,
		}, s.policy)
		score.RiskState = string(result.State)
		score.LastUpdated = now
		return saveScore(tx, score, exists)
	})
	if err != nil {
		return fmt.Errorf("intel: flag impersonation for %s: %w", vpa, err)
	}

	s.metrics.RecordImpersonationFlag()
	s.emitter.Emit(events.ImpersonationFlagged{MerchantVPA: vpa, Brand: brand})
	if result.Changed {
		s.recordTransition(vpa, previous, result)
	}
	return nil
}

// ReportFraud increments the fraud report counter for a merchant and returns
// the new total. Reports feed the policy layer; they do not move the risk
// state by themselves.
func (s *Store) ReportFraud(ctx context.Context, vpa string) (uint64, error) {
	vpa = strings.TrimSpace(vpa)
	if vpa == "" {
		return 0, ErrMerchantRequired
	}

	lock := s.lockFor(vpa)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().UTC()
	var reports uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		score, exists, err := loadScore(tx, vpa, now)
		if err != nil {
			return err
		}
		score.FraudReports++
		score.LastUpdated = now
		reports = score.FraudReports
		return saveScore(tx, score, exists)
	})
	if err != nil {
		return 0, fmt.Errorf("intel: report fraud for %s: %w", vpa, err)
	}

	s.metrics.RecordFraudReport()
	return reports, nil
}

// Whitelist toggles the manual whitelist flag for a merchant.
func (s *Store) Whitelist(ctx context.Context, vpa string, whitelisted bool) error {
	vpa = strings.TrimSpace(vpa)
	if vpa == "" {
		return ErrMerchantRequired
	}

	lock := s.lockFor(vpa)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		score, exists, err := loadScore(tx, vpa, now)
		if err != nil {
			return err
		}
		score.IsWhitelisted = whitelisted
		score.LastUpdated = now
		return saveScore(tx, score, exists)
	})
	if err != nil {
		return fmt.Errorf("intel: whitelist %s: %w", vpa, err)
	}
	return nil
}

func (s *Store) recordTransition(vpa string, from types.RiskState, result risk.EvaluateResult) {
	s.metrics.RecordTransition(string(from), string(result.State))
	s.emitter.Emit(events.RiskStateChanged{
		MerchantVPA: vpa,
		From:        from,
		To:          result.State,
		Reason:      result.Reason,
	})
}

func (s *Store) lockFor(vpa string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(vpa))
	return &s.locks[h.Sum32()%lockStripes]
}

func loadScore(tx *gorm.DB, vpa string, now time.Time) (MerchantScore, bool, error) {
	var score MerchantScore
	err := tx.First(&score, "merchant_vpa = ?", vpa).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MerchantScore{
			MerchantVPA:     vpa,
			RiskState:       string(types.RiskStateNew),
			ReputationScore: 0.5,
			FirstSeen:       now,
			LastUpdated:     now,
		}, false, nil
	}
	if err != nil {
		return MerchantScore{}, false, err
	}
	if score.FirstSeen.IsZero() {
		score.FirstSeen = now
	}
	return score, true, nil
}

func saveScore(tx *gorm.DB, score MerchantScore, exists bool) error {
	if exists {
		return tx.Save(&score).Error
	}
	return tx.Create(&score).Error
}

func defaultContext(vpa string) types.MerchantContext {
	return types.MerchantContext{
		MerchantVPA:     vpa,
		ReputationScore: 0.5,
		RiskState:       types.RiskStateNew,
	}
}

func snapshot(score MerchantScore) types.MerchantContext {
	return types.MerchantContext{
		MerchantVPA:            score.MerchantVPA,
		ReputationScore:        score.ReputationScore,
		IsWhitelisted:          score.IsWhitelisted,
		TotalTransactions:      score.TotalTxns + score.TotalRefunds,
		SuccessfulTransactions: score.TotalTxns,
		RefundRate:             risk.RefundRate(score.TotalTxns, score.TotalRefunds),
		FraudReports:           score.FraudReports,
		RiskState:              types.RiskState(score.RiskState),
		FirstSeen:              score.FirstSeen,
	}
}
