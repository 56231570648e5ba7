package flows

import (
	"context"
	"fmt"

	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/prompts"
)

// Chat answers the last user turn of history, grounded in financialContext.
// The caller owns the transcript; nothing is kept between calls.
func (s *Service) Chat(ctx context.Context, history []domain.ConversationTurn, financialContext string) (domain.ChatAnswer, error) {
	if err := ValidateHistory(history); err != nil {
		return domain.ChatAnswer{}, fmt.Errorf("Chat: %w: %w", domain.ErrChatFailed, err)
	}

	system, err := prompts.BuildChatSystem(financialContext)
	if err != nil {
		return domain.ChatAnswer{}, fmt.Errorf("Chat: build system prompt: %w: %w", domain.ErrChatFailed, err)
	}

	last := history[len(history)-1]
	prior := history[:len(history)-1]

	reply, err := s.model.GenerateText(ctx, system, last.Text, prior)
	if err != nil {
		return domain.ChatAnswer{}, fmt.Errorf("Chat: %w: %w", domain.ErrChatFailed, err)
	}

	return domain.ChatAnswer{Answer: reply}, nil
}

// ValidateHistory checks that history is non-empty and ends with a user turn.
func ValidateHistory(history []domain.ConversationTurn) error {
	if len(history) == 0 {
		return fmt.Errorf("%w: conversation history is empty", domain.ErrMalformedInput)
	}
	for i, turn := range history {
		if turn.Speaker != domain.SpeakerUser && turn.Speaker != domain.SpeakerAssistant {
			return fmt.Errorf("%w: turn %d has unknown speaker %q", domain.ErrMalformedInput, i, turn.Speaker)
		}
	}
	if history[len(history)-1].Speaker != domain.SpeakerUser {
		return fmt.Errorf("%w: last turn must come from the user", domain.ErrMalformedInput)
	}
	return nil
}
