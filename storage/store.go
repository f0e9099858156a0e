// Package storage provides broadcast idempotency tracking for submitted
// transactions, adapted from the teacher's storage/store.go +
// storage/memory.go TransactionStateStore.
package storage

import (
	"time"

	"github.com/arcsign/evmrpc/types"
)

// Status is the lifecycle stage of a submitted transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// TxState is the persisted state of one submitted transaction, keyed by
// its hash, used to make resubmission-after-retry idempotent.
type TxState struct {
	TxHash     types.Hash
	ChainID    uint64
	RawTx      []byte
	RetryCount int
	FirstSeen  time.Time
	LastRetry  time.Time
	Status     Status
}

// TransactionStateStore persists TxState. Implementations must be
// thread-safe.
type TransactionStateStore interface {
	Get(hash types.Hash) (*TxState, error)
	Set(hash types.Hash, state *TxState) error
	Delete(hash types.Hash) error
	List() ([]*TxState, error)
	ListByStatus(status Status) ([]*TxState, error)
	Clean(olderThan time.Duration) (int, error)
}
