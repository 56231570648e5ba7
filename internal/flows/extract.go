package flows

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/logger"
	"github.com/dvloznov/bizledger/internal/prompts"
	"github.com/dvloznov/bizledger/internal/schema"
)

// TextToTransaction extracts a transaction draft from a free-text description.
// Relative dates in text are resolved against currentDate.
func (s *Service) TextToTransaction(ctx context.Context, text string, currentDate civil.Date) (domain.TransactionDraft, error) {
	if strings.TrimSpace(text) == "" {
		return domain.TransactionDraft{}, fmt.Errorf("TextToTransaction: %w: %w: text is empty", domain.ErrExtractionFailed, domain.ErrMalformedInput)
	}
	if !currentDate.IsValid() {
		return domain.TransactionDraft{}, fmt.Errorf("TextToTransaction: %w: %w: invalid current date", domain.ErrExtractionFailed, domain.ErrMalformedInput)
	}

	prompt, err := prompts.BuildTextExtraction(text, currentDate.String())
	if err != nil {
		return domain.TransactionDraft{}, fmt.Errorf("TextToTransaction: build prompt: %w: %w", domain.ErrExtractionFailed, err)
	}

	draft, err := s.model.GenerateStructured(ctx, prompt, nil, &schema.Transaction)
	if err != nil {
		return domain.TransactionDraft{}, fmt.Errorf("TextToTransaction: %w: %w", domain.ErrExtractionFailed, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("kind", string(draft.Kind)).
		Float64("amount", draft.Amount).
		Str("date", draft.Date.String()).
		Msg("Extracted transaction from text")
	return draft, nil
}

// ImageToTransaction extracts a transaction draft from a receipt or invoice image.
// The image is expected to be decoded already; currentDate is the fallback when
// the document shows no date.
func (s *Service) ImageToTransaction(ctx context.Context, image datauri.Image, currentDate civil.Date) (domain.TransactionDraft, error) {
	if len(image.Data) == 0 || image.MIMEType == "" {
		return domain.TransactionDraft{}, fmt.Errorf("ImageToTransaction: %w: %w: empty image", domain.ErrExtractionFailed, domain.ErrMalformedInput)
	}
	if !currentDate.IsValid() {
		return domain.TransactionDraft{}, fmt.Errorf("ImageToTransaction: %w: %w: invalid current date", domain.ErrExtractionFailed, domain.ErrMalformedInput)
	}

	prompt, err := prompts.BuildImageExtraction(currentDate.String())
	if err != nil {
		return domain.TransactionDraft{}, fmt.Errorf("ImageToTransaction: build prompt: %w: %w", domain.ErrExtractionFailed, err)
	}

	draft, err := s.model.GenerateStructured(ctx, prompt, &image, &schema.Transaction)
	if err != nil {
		return domain.TransactionDraft{}, fmt.Errorf("ImageToTransaction: %w: %w", domain.ErrExtractionFailed, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("mime_type", image.MIMEType).
		Int("image_bytes", len(image.Data)).
		Str("kind", string(draft.Kind)).
		Float64("amount", draft.Amount).
		Msg("Extracted transaction from image")
	return draft, nil
}
