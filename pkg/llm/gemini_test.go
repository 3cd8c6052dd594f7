package llm

import (
	"context"
	"testing"

	apperrors "tgrelay/internal/errors"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(parts ...genai.Part) *genai.Candidate {
	return &genai.Candidate{Content: &genai.Content{Role: "model", Parts: parts}}
}

func TestResponseText_JoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		candidate(genai.Text("<b>Hello</b>"), genai.Blob{MIMEType: "image/png"}, genai.Text(" world")),
		candidate(genai.Text("ignored")),
	}}

	out, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, "<b>Hello</b> world", out)
}

func TestResponseText_Empty(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"nil response", nil, "empty response from gemini"},
		{"no candidates", &genai.GenerateContentResponse{}, "empty response from gemini"},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, "empty response from gemini"},
		{"no parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{candidate()}}, "empty response from gemini"},
		{"no text parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{candidate(genai.Blob{MIMEType: "image/png"})}}, "unexpected response type from gemini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := responseText(tt.resp)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeLLMProvider, apperrors.GetCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewCompleter_Providers(t *testing.T) {
	_, err := NewGeminiCompleter(context.Background(), "")
	assert.Error(t, err)

	_, err = NewCompleter(context.Background(), "mistral", "key", "", 0)
	assert.EqualError(t, err, "unsupported llm provider: mistral")
}
