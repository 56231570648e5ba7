package flows

import (
	"context"
	"sync"

	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/schema"
)

// fakeModel records every call and answers with canned output.
// Structured replies go through the real schema so validation behaves as in production.
type fakeModel struct {
	mu sync.Mutex

	structuredReply string
	textReply       string
	err             error

	prompts []string
	systems []string
	images  []*datauri.Image
	history [][]domain.ConversationTurn
}

func (f *fakeModel) GenerateStructured(ctx context.Context, prompt string, image *datauri.Image, s *schema.Schema) (domain.TransactionDraft, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, image)
	f.mu.Unlock()

	if f.err != nil {
		return domain.TransactionDraft{}, f.err
	}
	return s.Decode([]byte(f.structuredReply))
}

func (f *fakeModel) GenerateText(ctx context.Context, system, prompt string, history []domain.ConversationTurn) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, system)
	f.history = append(f.history, history)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	return f.textReply, nil
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}
