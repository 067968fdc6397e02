package execution

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/shopspring/decimal"

	"payguard/core/types"
	"payguard/storage"
)

var (
	txnPrefix     = []byte("txn/")
	userTxnPrefix = []byte("usertxn/")
	idemPrefix    = []byte("idem/")
)

// Store persists transaction records and idempotency entries in a key-value
// backend. Records live under txn/<id>; a per-user index under
// usertxn/<user>/<reverse-ts>/<id> keeps history scans newest-first without a
// full keyspace walk.
type Store struct {
	db storage.Database
	mu sync.RWMutex
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// storedTransaction is the RLP wire form of a transaction record. Timestamps
// are uint64 nanoseconds and amounts decimal strings; RLP has no signed
// integer or float encoding.
type storedTransaction struct {
	TransactionID string
	IntentID      string
	UserID        string
	Amount        string
	MerchantVPA   string
	State         string
	CreatedAt     uint64
	ApprovalHash  string
	ExecutionHash string
	ExecutedAt    uint64
	ErrorMessage  string
}

// storedIdempotency pins a settled transaction to its replay key until the
// entry expires.
type storedIdempotency struct {
	Key           string
	TransactionID string
	ExpiresAt     uint64
}

// Put writes the record and refreshes its position in the per-user index. The
// index key derives from user and created_at, both immutable, so state
// updates overwrite in place.
func (s *Store) Put(record *types.TransactionRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("execution: store not initialised")
	}
	if record == nil {
		return fmt.Errorf("execution: record required")
	}
	id := strings.TrimSpace(record.TransactionID)
	if id == "" {
		return fmt.Errorf("execution: transaction id required")
	}
	stored := storedTransaction{
		TransactionID: id,
		IntentID:      record.IntentID,
		UserID:        record.UserID,
		Amount:        record.Amount.String(),
		MerchantVPA:   record.MerchantVPA,
		State:         string(record.State),
		CreatedAt:     uint64(record.CreatedAt.UTC().UnixNano()),
		ApprovalHash:  record.ApprovalHash,
		ExecutionHash: record.ExecutionHash,
		ErrorMessage:  record.ErrorMessage,
	}
	if record.ExecutedAt != nil {
		stored.ExecutedAt = uint64(record.ExecutedAt.UTC().UnixNano())
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("execution: encode record %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(txnKey(id), encoded); err != nil {
		return fmt.Errorf("execution: store record %s: %w", id, err)
	}
	if user := strings.TrimSpace(record.UserID); user != "" {
		if err := s.db.Put(userTxnKey(user, record.CreatedAt, id), []byte(id)); err != nil {
			return fmt.Errorf("execution: index record %s: %w", id, err)
		}
	}
	return nil
}

// Get loads a record by transaction id.
func (s *Store) Get(id string) (*types.TransactionRecord, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("execution: store not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, fmt.Errorf("execution: transaction id required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

// UserTransactions walks the per-user index newest-first. A limit of zero or
// below means no cap.
func (s *Store) UserTransactions(userID string, limit int) ([]*types.TransactionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("execution: store not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("execution: user id required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := []byte(fmt.Sprintf("%s%s/", userTxnPrefix, userID))
	iter := s.db.NewIterator(prefix)
	defer iter.Release()

	records := make([]*types.TransactionRecord, 0, 16)
	for iter.Next() {
		record, ok, err := s.get(string(iter.Value()))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		records = append(records, record)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("execution: scan history for %s: %w", userID, err)
	}
	return records, nil
}

// Idempotency reports the transaction pinned to the replay key, if the entry
// is still live at now. Expired entries are removed so the key can be reused.
func (s *Store) Idempotency(key string, now time.Time) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("execution: store not initialised")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dbKey := idemKey(key)
	data, err := s.db.Get(dbKey)
	if err != nil {
		return "", false, nil
	}
	var stored storedIdempotency
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return "", false, fmt.Errorf("execution: decode idempotency entry: %w", err)
	}
	if stored.ExpiresAt <= uint64(now.UTC().UnixNano()) {
		if err := s.db.Delete(dbKey); err != nil {
			return "", false, fmt.Errorf("execution: evict idempotency entry: %w", err)
		}
		return "", false, nil
	}
	return stored.TransactionID, true, nil
}

// PutIdempotency pins a settled transaction to its replay key until expiresAt.
func (s *Store) PutIdempotency(key, transactionID string, expiresAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("execution: store not initialised")
	}
	stored := storedIdempotency{
		Key:           key,
		TransactionID: transactionID,
		ExpiresAt:     uint64(expiresAt.UTC().UnixNano()),
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("execution: encode idempotency entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(idemKey(key), encoded); err != nil {
		return fmt.Errorf("execution: store idempotency entry: %w", err)
	}
	return nil
}

func (s *Store) get(id string) (*types.TransactionRecord, bool, error) {
	data, err := s.db.Get(txnKey(id))
	if err != nil {
		return nil, false, nil
	}
	var stored storedTransaction
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("execution: decode record %s: %w", id, err)
	}
	amount, err := decimal.NewFromString(stored.Amount)
	if err != nil {
		return nil, false, fmt.Errorf("execution: decode amount for %s: %w", id, err)
	}
	record := &types.TransactionRecord{
		TransactionID: stored.TransactionID,
		IntentID:      stored.IntentID,
		UserID:        stored.UserID,
		Amount:        amount,
		MerchantVPA:   stored.MerchantVPA,
		State:         types.TransactionState(stored.State),
		CreatedAt:     time.Unix(0, int64(stored.CreatedAt)).UTC(),
		ApprovalHash:  stored.ApprovalHash,
		ExecutionHash: stored.ExecutionHash,
		ErrorMessage:  stored.ErrorMessage,
	}
	if stored.ExecutedAt > 0 {
		executedAt := time.Unix(0, int64(stored.ExecutedAt)).UTC()
		record.ExecutedAt = &executedAt
	}
	return record, true, nil
}

func txnKey(id string) []byte {
	key := make([]byte, 0, len(txnPrefix)+len(id))
	key = append(key, txnPrefix...)
	return append(key, id...)
}

// userTxnKey orders a user's records newest-first under ascending byte order
// by embedding the complement of the creation timestamp.
func userTxnKey(userID string, createdAt time.Time, id string) []byte {
	reverse := uint64(math.MaxInt64 - createdAt.UTC().UnixNano())
	return []byte(fmt.Sprintf("%s%s/%020d/%s", userTxnPrefix, userID, reverse, id))
}

func idemKey(key string) []byte {
	digest := ethcrypto.Keccak256([]byte(key))
	return []byte(fmt.Sprintf("%s%s", idemPrefix, hex.EncodeToString(digest)))
}
