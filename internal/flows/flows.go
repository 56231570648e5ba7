// Package flows implements the stateless assistant operations: structured
// extraction from text or receipt images, insight generation and chat.
package flows

import (
	"context"

	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/schema"
)

// Model is the subset of the model invocation layer used by the flows.
// *llm.Invoker satisfies it.
type Model interface {
	GenerateStructured(ctx context.Context, prompt string, image *datauri.Image, s *schema.Schema) (domain.TransactionDraft, error)
	GenerateText(ctx context.Context, system, prompt string, history []domain.ConversationTurn) (string, error)
}

// Service runs the flows against a model. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	model Model
}

// NewService creates a flow service.
func NewService(model Model) *Service {
	return &Service{model: model}
}
