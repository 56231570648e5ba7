package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when the OpenAI-compatible backend has no model configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// chatCompleter matches (*openai.Client).CreateChatCompletion.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	model  string
	client chatCompleter
}

// NewOpenAIBackend creates an OpenAI-compatible backend. baseURL may be empty for api.openai.com.
func NewOpenAIBackend(apiKey, baseURL, model string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIBackend{model: model, client: openai.NewClientWithConfig(cfg)}
}

// Name implements Backend.
func (o *OpenAIBackend) Name() string {
	return "openai/" + o.model
}

// Generate implements Backend.
func (o *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, buildOpenAIRequest(o.model, req))
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", domain.ErrServiceUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

func buildOpenAIRequest(model string, req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Speaker == domain.SpeakerAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.Image != nil {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    req.Image.String(),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	} else {
		user.Content = req.Prompt
	}
	messages = append(messages, user)

	out := openai.ChatCompletionRequest{Model: model, Messages: messages}
	if req.Schema != nil {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: openai: %w", domain.ErrServiceUnavailable, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status != 0 && status != http.StatusTooManyRequests && status < http.StatusInternalServerError {
		return fmt.Errorf("%w: openai: %w", domain.ErrServiceUnavailable, err)
	}
	return Transient(fmt.Errorf("openai: %w", err))
}
