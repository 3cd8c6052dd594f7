// Package llm provides translator.Completer implementations for the
// supported model providers.
package llm

import (
	"context"
	"fmt"
	"time"

	"tgrelay/internal/translator"
)

// Provider names accepted in configuration.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// NewCompleter builds the completer for provider.
func NewCompleter(ctx context.Context, provider, apiKey, baseURL string, timeout time.Duration) (translator.Completer, error) {
	switch provider {
	case "", ProviderAnthropic:
		return NewAnthropicCompleter(apiKey, baseURL, timeout)
	case ProviderGemini:
		return NewGeminiCompleter(ctx, apiKey)
	}
	return nil, fmt.Errorf("unsupported llm provider: %s", provider)
}
