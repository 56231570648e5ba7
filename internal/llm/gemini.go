package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dvloznov/bizledger/internal/domain"
	"google.golang.org/genai"
)

// DefaultGeminiModel is the default Gemini model used by the assistant.
const DefaultGeminiModel = "gemini-2.5-flash"

// generateContentFunc matches (*genai.Models).GenerateContent.
type generateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiBackend talks to Gemini through the Gen AI SDK.
type GeminiBackend struct {
	model    string
	generate generateContentFunc
}

// NewGeminiBackend creates a Gemini API client. An empty apiKey lets the SDK
// fall back to GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiBackend: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiBackend{model: model, generate: client.Models.GenerateContent}, nil
}

// Name implements Backend.
func (g *GeminiBackend) Name() string {
	return "gemini/" + g.model
}

// Generate implements Backend.
func (g *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	contents, config := buildGeminiRequest(req)

	resp, err := g.generate(ctx, g.model, contents, config)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: gemini returned no response", domain.ErrServiceUnavailable)
	}
	return resp.Text(), nil
}

func buildGeminiRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := "user"
		if turn.Speaker == domain.SpeakerAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Image != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: req.Image.MIMEType,
				Data:     req.Image.Data,
			},
		})
	}
	contents = append(contents, &genai.Content{Role: "user", Parts: parts})

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.Schema.GenAI()
	}
	return contents, config
}

// classifyGeminiError marks rate limits, server errors and transport failures as transient.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: gemini: %w", domain.ErrServiceUnavailable, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return Transient(fmt.Errorf("gemini: %w", err))
		}
		return fmt.Errorf("%w: gemini: %w", domain.ErrServiceUnavailable, err)
	}
	return Transient(fmt.Errorf("gemini: %w", err))
}
