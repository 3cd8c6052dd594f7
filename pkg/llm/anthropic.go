package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/translator"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// AnthropicBaseURL is Anthropic's OpenAI-compatible endpoint.
const AnthropicBaseURL = "https://api.anthropic.com/v1/"

// AnthropicCompleter sends single-prompt completions to Anthropic through
// the OpenAI-compatible chat completions API.
type AnthropicCompleter struct {
	client openai.Client
}

// NewAnthropicCompleter builds a completer. An empty baseURL selects AnthropicBaseURL.
// SDK-level retries are disabled; the translator owns the retry policy.
func NewAnthropicCompleter(apiKey, baseURL string, timeout time.Duration) (*AnthropicCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if baseURL == "" {
		baseURL = AnthropicBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	)
	return &AnthropicCompleter{client: client}, nil
}

// Complete implements translator.Completer.
func (c *AnthropicCompleter) Complete(ctx context.Context, req translator.CompletionRequest) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		if status == 0 {
			status = http.StatusBadGateway
		}
		return "", apperrors.NewAPIError("llm", "chat/completions", status, err)
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrCodeLLMProvider, "empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
