// Package llm sends prompts to a generative language service and turns the
// replies into text or validated transaction drafts.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/logger"
	"github.com/dvloznov/bizledger/internal/schema"
)

// Default call policy.
const (
	DefaultTimeout = 30 * time.Second
	defaultBackoff = 500 * time.Millisecond
)

// Request is a single model call.
type Request struct {
	System  string
	Prompt  string
	History []domain.ConversationTurn
	Image   *datauri.Image
	// Schema, when set, asks the backend for a JSON object of this shape.
	Schema *schema.Schema
}

// Backend performs one round trip to a model provider and returns the raw reply.
// Implementations wrap transport and provider failures with domain.ErrServiceUnavailable
// and mark the ones worth retrying with Transient.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// transientError marks a service failure that may succeed on retry.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as a retryable service failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Options tune the invoker's call policy. MaxRetries is the number of extra
// attempts after the first; zero or negative means a single attempt.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = defaultBackoff
	}
	return o
}

// Budget is the longest a single Generate* call can take under o:
// every attempt running to its timeout plus the largest possible backoff between them.
func (o Options) Budget() time.Duration {
	o = o.withDefaults()
	total := o.Timeout * time.Duration(o.MaxRetries+1)
	for attempt := 1; attempt <= o.MaxRetries; attempt++ {
		base := time.Duration(attempt*attempt) * o.Backoff
		total += base + base/2
	}
	return total
}

// Invoker adds a per-call timeout, bounded retries and output validation on top of a Backend.
// It is safe for concurrent use.
type Invoker struct {
	backend    Backend
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewInvoker creates an invoker. A zero Timeout or Backoff picks the default.
func NewInvoker(backend Backend, opts Options) *Invoker {
	opts = opts.withDefaults()
	return &Invoker{
		backend:    backend,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
	}
}

// GenerateStructured sends prompt (and image, if any) and validates the reply against s.
func (m *Invoker) GenerateStructured(ctx context.Context, prompt string, image *datauri.Image, s *schema.Schema) (domain.TransactionDraft, error) {
	raw, err := m.call(ctx, Request{Prompt: prompt, Image: image, Schema: s})
	if err != nil {
		return domain.TransactionDraft{}, fmt.Errorf("GenerateStructured: %w", err)
	}

	draft, err := s.Decode([]byte(CleanJSON(raw)))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("backend", m.backend.Name()).
			Str("raw_response", truncate(raw, 2000)).
			Msg("Model output rejected")
		return domain.TransactionDraft{}, fmt.Errorf("GenerateStructured: %w", err)
	}
	return draft, nil
}

// GenerateText sends a free-form prompt with optional prior turns and returns the reply unmodified.
func (m *Invoker) GenerateText(ctx context.Context, system, prompt string, history []domain.ConversationTurn) (string, error) {
	raw, err := m.call(ctx, Request{System: system, Prompt: prompt, History: history})
	if err != nil {
		return "", fmt.Errorf("GenerateText: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("GenerateText: %w: empty response from model", domain.ErrMalformedOutput)
	}
	return raw, nil
}

// call runs the backend with a timeout per attempt and retries transient failures.
func (m *Invoker) call(ctx context.Context, req Request) (string, error) {
	log := logger.FromContext(ctx)
	var lastErr error

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * m.backoff
			wait := base + time.Duration(rand.Int64N(int64(base/2)+1))
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Str("backend", m.backend.Name()).
				Msg("Retrying model call")

			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}

		start := time.Now()
		raw, err := m.attempt(ctx, req)
		if err == nil {
			log.Debug().
				Str("backend", m.backend.Name()).
				Dur("latency", time.Since(start)).
				Bool("structured", req.Schema != nil).
				Bool("image", req.Image != nil).
				Msg("Model call succeeded")
			return raw, nil
		}

		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			break
		}
	}

	if !errors.Is(lastErr, domain.ErrServiceUnavailable) {
		lastErr = fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, lastErr)
	}
	return "", lastErr
}

func (m *Invoker) attempt(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	raw, err := m.backend.Generate(callCtx, req)
	if err != nil {
		// A per-attempt deadline is worth retrying as long as the caller is still waiting.
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !IsTransient(err) {
			return "", Transient(fmt.Errorf("%s: call timed out after %s: %w", m.backend.Name(), m.timeout, err))
		}
		return "", err
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
