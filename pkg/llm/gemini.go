package llm

import (
	"context"
	"fmt"
	"strings"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/translator"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when the configured model is not a Gemini model.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiCompleter sends single-prompt completions to Google's Gemini API.
type GeminiCompleter struct {
	client *genai.Client
}

// NewGeminiCompleter creates a Gemini client for apiKey.
func NewGeminiCompleter(ctx context.Context, apiKey string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client}, nil
}

// Close releases the underlying client.
func (c *GeminiCompleter) Close() error {
	return c.client.Close()
}

// Complete implements translator.Completer.
func (c *GeminiCompleter) Complete(ctx context.Context, req translator.CompletionRequest) (string, error) {
	modelName := req.Model
	if !strings.HasPrefix(modelName, "gemini") {
		modelName = DefaultGeminiModel
	}

	model := c.client.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: genai.Ptr(int32(req.MaxTokens)),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", apperrors.WrapRetryable(err, apperrors.ErrCodeLLMProvider, "gemini API call failed")
	}
	return responseText(resp)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", apperrors.New(apperrors.ErrCodeLLMProvider, "empty response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", apperrors.New(apperrors.ErrCodeLLMProvider, "unexpected response type from gemini")
	}
	return b.String(), nil
}
