// Package ledger stores confirmed transactions and the audit trail of model
// outputs. The assistant flows never touch it; callers use it to assemble
// grounding context and to persist drafts the user accepted.
package ledger

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bizledger/internal/domain"
)

// Filter narrows a transaction listing. Zero dates leave that side open.
type Filter struct {
	Start civil.Date
	End   civil.Date
	Kind  domain.Kind
}

func (f Filter) match(tx domain.Transaction) bool {
	if f.Start.IsValid() && tx.Date.Before(f.Start) {
		return false
	}
	if f.End.IsValid() && tx.Date.After(f.End) {
		return false
	}
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	return true
}

// Store persists ledger transactions.
type Store interface {
	Insert(ctx context.Context, tx domain.Transaction) error
	// List returns matching transactions in chronological order.
	List(ctx context.Context, f Filter) ([]domain.Transaction, error)
}

// ModelOutput is one archived assistant flow run.
type ModelOutput struct {
	OutputID   string
	JobID      string
	Flow       string
	ModelName  string
	Succeeded  bool
	Input      string
	RawJSON    string
	Error      string
	ReceiptURI string
	LatencyMS  int64
	CreatedAt  time.Time
}

// OutputWriter archives model outputs.
type OutputWriter interface {
	InsertModelOutput(ctx context.Context, out ModelOutput) error
}

// SortChronologically orders txs by date, then creation time, in place.
func SortChronologically(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
}
