package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/bizledger/internal/domain"
)

// MemoryStore keeps the ledger in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	txs     map[string]domain.Transaction
	outputs []ModelOutput
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txs: make(map[string]domain.Transaction)}
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, tx domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("Insert: transaction ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txs[tx.ID]; exists {
		return fmt.Errorf("Insert: transaction %s already exists", tx.ID)
	}
	s.txs[tx.ID] = tx
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Transaction{}
	for _, tx := range s.txs {
		if f.match(tx) {
			out = append(out, tx)
		}
	}
	SortChronologically(out)
	return out, nil
}

// InsertModelOutput implements OutputWriter. An output whose ID is already
// stored is ignored.
func (s *MemoryStore) InsertModelOutput(ctx context.Context, out ModelOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.outputs {
		if out.OutputID != "" && existing.OutputID == out.OutputID {
			return nil
		}
	}
	s.outputs = append(s.outputs, out)
	return nil
}

// ModelOutputs returns a copy of the archived outputs in insertion order.
func (s *MemoryStore) ModelOutputs() []ModelOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ModelOutput(nil), s.outputs...)
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ OutputWriter = (*MemoryStore)(nil)
)

// Close is a no-op; it lets MemoryStore stand in wherever a BigQueryStore is used.
func (s *MemoryStore) Close() error { return nil }
