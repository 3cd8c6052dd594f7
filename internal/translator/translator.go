package translator

import (
	"context"
	"fmt"
	"time"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/logging"
	"tgrelay/internal/metrics"
	"tgrelay/internal/models"
	"tgrelay/internal/retry"
	"tgrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultModel       = "claude-3-haiku-20240307"
	DefaultMaxTokens   = 1500
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// CompletionRequest is a single-prompt chat completion.
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer is an LLM provider.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Options configures a Translator.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	MaxAttempts int
	RetryDelay  time.Duration
}

// Result is a successful translation plus the effort it took.
type Result struct {
	Text       string
	Prompt     string
	Attempts   int
	RetryCount int
	Duration   time.Duration
}

// Translator turns payload HTML into translated HTML.
type Translator struct {
	completer Completer
	template  *Template
	backoff   *retry.Backoff
	opts      Options
	logger    *logrus.Logger
	errs      *apperrors.Logger
}

// New creates a translator. Zero options fall back to the defaults.
func New(completer Completer, tmpl *Template, opts Options, logger *logrus.Logger) *Translator {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	} else if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if tmpl == nil {
		tmpl = NewTemplate("")
	}
	return &Translator{
		completer: completer,
		template:  tmpl,
		backoff:   retry.NewBackoff(retry.FixedConfig(opts.MaxAttempts, opts.RetryDelay)),
		opts:      opts,
		logger:    logger,
		errs:      apperrors.FromLogrus(logger),
	}
}

// Template returns the live template so callers can hot-swap it.
func (t *Translator) Template() *Template {
	return t.template
}

// Translate calls the provider with bounded retries. On exhaustion the last
// provider error is returned wrapped as TRANSLATION_FAILED; the Result still
// carries the attempt count.
func (t *Translator) Translate(ctx context.Context, payload models.TranslationPayload) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "translator.translate",
		attribute.String("llm.model", t.opts.Model),
		attribute.Int("payload.html_size", len(payload.HTML)),
	)
	defer span.End()

	prompt := BuildPrompt(payload, t.template)
	start := time.Now()
	var text string

	attempts, err := t.backoff.Do(ctx, func(ctx context.Context) error {
		out, err := t.completer.Complete(ctx, CompletionRequest{
			Model:       t.opts.Model,
			Prompt:      prompt,
			MaxTokens:   t.opts.MaxTokens,
			Temperature: t.opts.Temperature,
		})
		if err != nil {
			t.errs.LogRetryableError(err, "Translation attempt failed", logrus.Fields{
				logging.LogFieldModel:   t.opts.Model,
				logging.LogFieldService: "llm",
			})
			metrics.IncrementCounter("translation_attempt_failures", nil, "Failed translation attempts")
			return err
		}
		text = out
		return nil
	}, nil)

	result := Result{
		Prompt:     prompt,
		Attempts:   attempts,
		RetryCount: max(attempts-1, 0),
		Duration:   time.Since(start),
	}
	metrics.RecordTimer("translation_duration", result.Duration, nil, "Translation latency including retries")

	if err != nil {
		tracing.RecordError(ctx, err)
		return result, apperrors.Wrap(err, apperrors.ErrCodeTranslationFailed,
			fmt.Sprintf("translation failed after %d attempts", attempts)).
			WithContext(logging.LogFieldAttempt, attempts)
	}

	result.Text = CleanResponse(text)
	return result, nil
}
