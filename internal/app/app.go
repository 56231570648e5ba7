// Package app wires configuration into the concrete services shared by the
// API server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bizledger/internal/actions"
	"github.com/dvloznov/bizledger/internal/config"
	"github.com/dvloznov/bizledger/internal/flows"
	"github.com/dvloznov/bizledger/internal/ledger"
	"github.com/dvloznov/bizledger/internal/llm"
)

// Ledger is a ledger backend that also archives model outputs.
type Ledger interface {
	ledger.Store
	ledger.OutputWriter
	Close() error
}

// NewBackend creates the configured model backend.
func NewBackend(ctx context.Context, cfg config.AssistantConfig) (llm.Backend, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		b, err := llm.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("NewBackend: %w", err)
		}
		return b, nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	}
	return nil, fmt.Errorf("NewBackend: unknown provider %q", cfg.Provider)
}

// responseMargin covers request decoding, prompt building and response writing.
const responseMargin = 15 * time.Second

// InvokerOptions maps the assistant settings onto the model call policy.
func InvokerOptions(cfg config.AssistantConfig) llm.Options {
	return llm.Options{
		Timeout:    cfg.CallTimeout,
		MaxRetries: cfg.MaxRetries,
	}
}

// RequestTimeout is how long an HTTP request running one assistant action may take.
func RequestTimeout(cfg config.AssistantConfig) time.Duration {
	return InvokerOptions(cfg).Budget() + responseMargin
}

// NewAssistant builds the action boundary over the configured backend.
// auditor may be nil.
func NewAssistant(ctx context.Context, cfg config.AssistantConfig, auditor actions.Auditor) (*actions.Assistant, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	invoker := llm.NewInvoker(backend, InvokerOptions(cfg))
	return actions.New(flows.NewService(invoker), actions.Options{Auditor: auditor}), nil
}

// NewLedger opens the configured ledger backend.
func NewLedger(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case config.LedgerMemory:
		return ledger.NewMemoryStore(), nil
	case config.LedgerBigQuery:
		store, err := ledger.NewBigQueryStore(ctx, cfg.ProjectID, cfg.Dataset)
		if err != nil {
			return nil, fmt.Errorf("NewLedger: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("NewLedger: unknown backend %q", cfg.Backend)
}
