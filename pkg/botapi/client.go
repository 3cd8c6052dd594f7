// Package botapi is a small Telegram Bot API client for the calls the
// relay makes against destination channels.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tgrelay/internal/constants"
	"tgrelay/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// Client is the destination-side Bot API surface.
type Client interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) (*Message, error)
	SendPhoto(ctx context.Context, chatID, photo, caption, parseMode string) (*Message, error)
	EditMessageText(ctx context.Context, chatID string, messageID int, text, parseMode string) (*Message, error)
	GetChat(ctx context.Context, chatID string) (*Chat, error)
}

// HTTPClient talks to the Bot API over JSON POST requests.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewClient builds a client for baseURL (usually https://api.telegram.org).
func NewClient(baseURL, token string, timeout time.Duration, logger *logrus.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = constants.DefaultBotAPIURL
	}
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultHTTPTimeoutSec) * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("telegram-bot-api", 5, 30*time.Second, logger,
			circuitbreaker.WithFailurePredicate(countsAsOutage)),
		logger: logger,
	}
}

// countsAsOutage keeps rejected requests (bad HTML, missing chat, flood
// control) from opening the breaker; only transport failures and 5xx do.
func countsAsOutage(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// Breaker exposes the circuit breaker for health reporting.
func (c *HTTPClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

func (c *HTTPClient) SendMessage(ctx context.Context, chatID, text, parseMode string) (*Message, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendPhoto posts photo, which is a file id or an HTTP URL Telegram can fetch.
func (c *HTTPClient) SendPhoto(ctx context.Context, chatID, photo, caption, parseMode string) (*Message, error) {
	var msg Message
	err := c.call(ctx, "sendPhoto", sendPhotoRequest{
		ChatID:    chatID,
		Photo:     photo,
		Caption:   caption,
		ParseMode: parseMode,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *HTTPClient) EditMessageText(ctx context.Context, chatID string, messageID int, text, parseMode string) (*Message, error) {
	var msg Message
	err := c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: parseMode,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *HTTPClient) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var chat Chat
	if err := c.call(ctx, "getChat", getChatRequest{ChatID: chatID}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *HTTPClient) call(ctx context.Context, method string, payload, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.sendRequest(ctx, method, payload, result)
	})
}

func (c *HTTPClient) sendRequest(ctx context.Context, method string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, token included.
		return fmt.Errorf("failed to send %s request: %s", method, c.redact(err.Error()))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope apiResponse[json.RawMessage]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Method: method, StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if !envelope.OK {
		apiErr := &APIError{
			Method:      method,
			StatusCode:  envelope.ErrorCode,
			Description: envelope.Description,
		}
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = resp.StatusCode
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		c.logger.WithFields(logrus.Fields{
			"method":      method,
			"status_code": apiErr.StatusCode,
			"description": apiErr.Description,
		}).Debug("Bot API rejected request")
		return apiErr
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *HTTPClient) redact(s string) string {
	if c.token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.token, "<redacted>")
}

