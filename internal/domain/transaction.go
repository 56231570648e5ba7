package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Kind is the direction of a transaction. Amounts are always positive;
// the sign lives here.
type Kind string

const (
	KindRevenue Kind = "revenue"
	KindExpense Kind = "expense"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindRevenue || k == KindExpense
}

// TransactionDraft is a transaction produced by an extraction flow.
// It is handed back to the caller and never persisted by the assistant itself.
type TransactionDraft struct {
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Amount      float64    `json:"amount"` // always > 0
	Kind        Kind       `json:"type"`
	Date        civil.Date `json:"date"` // serialized as YYYY-MM-DD
}

// Source records how a ledger transaction was created.
type Source string

const (
	SourceManual Source = "manual"
	SourceText   Source = "text"
	SourceImage  Source = "image"
)

// Transaction is a confirmed ledger record.
type Transaction struct {
	ID          string     `json:"id" yaml:"id"`
	Kind        Kind       `json:"type" yaml:"type"`
	Date        civil.Date `json:"date" yaml:"date"`
	Amount      float64    `json:"amount" yaml:"amount"`
	Description string     `json:"description" yaml:"description"`
	Category    string     `json:"category" yaml:"category"`
	ProjectID   string     `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	Source      Source     `json:"source,omitempty" yaml:"source,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt,omitempty"`
}

// FromDraft builds a ledger transaction out of a confirmed draft.
func FromDraft(id string, d TransactionDraft, source Source, createdAt time.Time) Transaction {
	return Transaction{
		ID:          id,
		Kind:        d.Kind,
		Date:        d.Date,
		Amount:      d.Amount,
		Description: d.Description,
		Category:    d.Category,
		Source:      source,
		CreatedAt:   createdAt,
	}
}
