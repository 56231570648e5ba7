package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/prompts"
)

// IsEmptyCollection reports whether a serialized collection carries no entries.
func IsEmptyCollection(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "[]", "null", "{}":
		return true
	}
	return false
}

// GenerateInsight asks the model for anomalies in the revenue and expense history.
// Both inputs are serialized, chronologically sorted collections. Callers are
// expected to short-circuit when both are empty; the flow refuses such input
// with domain.ErrInsufficientData rather than calling the model.
func (s *Service) GenerateInsight(ctx context.Context, revenueJSON, expenseJSON string) (domain.InsightResult, error) {
	if IsEmptyCollection(revenueJSON) && IsEmptyCollection(expenseJSON) {
		return domain.InsightResult{}, fmt.Errorf("GenerateInsight: %w: %w", domain.ErrInsightFailed, domain.ErrInsufficientData)
	}

	prompt, err := prompts.BuildInsight(revenueJSON, expenseJSON)
	if err != nil {
		return domain.InsightResult{}, fmt.Errorf("GenerateInsight: build prompt: %w: %w", domain.ErrInsightFailed, err)
	}

	text, err := s.model.GenerateText(ctx, "", prompt, nil)
	if err != nil {
		return domain.InsightResult{}, fmt.Errorf("GenerateInsight: %w: %w", domain.ErrInsightFailed, err)
	}

	return domain.InsightResult{Text: text}, nil
}
