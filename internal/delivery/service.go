// Package delivery posts translated content to destination channels. It
// owns the Telegram-specific rules: the HTML subset, the length limits,
// chunking, unchanged-edit detection and error classification.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/logging"
	"tgrelay/internal/metrics"
	"tgrelay/internal/models"
	"tgrelay/internal/retry"
	"tgrelay/pkg/botapi"

	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Notes recorded as the exception message of an edit that changed nothing.
const (
	NoteEditSkipped      = "Content unchanged - edit skipped"
	NoteContentUnchanged = "Message content unchanged"
)

var errThrottled = errors.New("destination send rate exhausted")

// Result describes a completed delivery.
type Result struct {
	DestMessageID string
	Chunks        int
	// Unchanged is set when an edit was skipped or Telegram reported no change.
	Unchanged bool
	Note      string
}

// Error is a delivery failure reported by the Bot API or its transport.
type Error struct {
	Op      string
	Details ErrorDetails
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Details.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Description is the raw failure text for the event log.
func (e *Error) Description() string {
	var apiErr *botapi.APIError
	if errors.As(e.Err, &apiErr) && apiErr.Description != "" {
		return apiErr.Description
	}
	return e.Err.Error()
}

// MessageCache remembers what was last posted to each destination message,
// so an edit can be compared against it. *cache.ChannelMessageCache
// satisfies it.
type MessageCache interface {
	Add(channelID string, msg models.CachedMessage) error
	Update(channelID string, messageID int, htmlText string, date time.Time) (bool, error)
	Find(channelID string, messageID int) (models.CachedMessage, bool)
}

// Options tunes the per-destination throttle and the delivered-message cache.
type Options struct {
	// Cache is optional.
	Cache MessageCache
	// RatePerMinute caps sends per destination chat. Zero disables throttling.
	RatePerMinute int64
	// MaxThrottleWait bounds how long a send waits for the window to reopen.
	MaxThrottleWait time.Duration
	// ThrottlePoll is the delay between throttle checks.
	ThrottlePoll time.Duration
}

// Service sends, edits and posts photos on destination channels.
type Service struct {
	client   botapi.Client
	limiter  *limiter.Limiter
	rate     int64
	throttle *retry.Backoff
	cache    MessageCache
	now      func() time.Time
	logger   *logrus.Logger
	errs     *apperrors.Logger
}

// NewService builds a delivery service over client.
func NewService(client botapi.Client, opts Options, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ThrottlePoll <= 0 {
		opts.ThrottlePoll = time.Second
	}
	if opts.MaxThrottleWait <= 0 {
		opts.MaxThrottleWait = time.Minute
	}

	s := &Service{
		client: client,
		rate:   opts.RatePerMinute,
		cache:  opts.Cache,
		now:    time.Now,
		logger: logger,
		errs:   apperrors.FromLogrus(logger),
	}
	if opts.RatePerMinute > 0 {
		s.limiter = limiter.New(memory.NewStore(), limiter.Rate{
			Period: time.Minute,
			Limit:  opts.RatePerMinute,
		})
		attempts := int(opts.MaxThrottleWait/opts.ThrottlePoll) + 1
		s.throttle = retry.NewBackoff(retry.FixedConfig(attempts, opts.ThrottlePoll))
	}
	return s
}

// Send posts text to chatID, splitting it into several messages when it is
// over the length limit. Chunks go out in order and the first failure
// aborts the rest; chunks already posted stay posted. The returned id is
// the last chunk's.
func (s *Service) Send(ctx context.Context, chatID, text string) (Result, error) {
	if err := validateVisible(text); err != nil {
		return Result{}, err
	}

	chunks := Split(text)
	var (
		res      Result
		lastBody string
	)
	for i, chunk := range chunks {
		body := Sanitize(chunk)
		if body == "" {
			s.logger.WithFields(logrus.Fields{
				logging.LogFieldChannelID: chatID,
				"chunk":                   i,
			}).Debug("Skipping chunk that is empty after sanitizing")
			continue
		}
		if err := Validate(body); err != nil {
			return res, err
		}
		if err := s.wait(ctx, chatID); err != nil {
			return res, err
		}

		msg, err := s.client.SendMessage(ctx, chatID, body, botapi.ParseModeHTML)
		if err != nil {
			return res, s.fail("send", chatID, err, logrus.Fields{"chunk": i, logging.LogFieldChunks: len(chunks)})
		}
		res.DestMessageID = strconv.Itoa(msg.MessageID)
		res.Chunks++
		lastBody = body
	}

	if res.Chunks == 0 {
		return res, apperrors.NewValidationError("text", "", ReasonNoVisible)
	}
	s.remember(chatID, res.DestMessageID, lastBody)
	s.succeed("send", chatID, res)
	return res, nil
}

// SendPhoto posts a photo, given as a file id or URL, with an HTML caption.
func (s *Service) SendPhoto(ctx context.Context, chatID, photo, caption string) (Result, error) {
	body := Sanitize(caption)
	if err := ValidateCaption(body); err != nil {
		return Result{}, err
	}
	if err := s.wait(ctx, chatID); err != nil {
		return Result{}, err
	}

	msg, err := s.client.SendPhoto(ctx, chatID, photo, body, botapi.ParseModeHTML)
	if err != nil {
		return Result{}, s.fail("send_photo", chatID, err, nil)
	}
	res := Result{DestMessageID: strconv.Itoa(msg.MessageID), Chunks: 1}
	s.remember(chatID, res.DestMessageID, body)
	s.succeed("send_photo", chatID, res)
	return res, nil
}

// Edit replaces the text of messageID. previous is the text currently
// shown; when empty, the cached copy of the last delivery is used. If the
// two match under any normalization pass no request is made. A "message is
// not modified" rejection is also reported as success.
func (s *Service) Edit(ctx context.Context, chatID string, messageID int, newText, previous string) (Result, error) {
	body := Sanitize(newText)
	if err := Validate(body); err != nil {
		return Result{}, err
	}

	if previous == "" && s.cache != nil {
		if cached, ok := s.cache.Find(chatID, messageID); ok {
			previous = cached.HTML
		}
	}

	unchanged := Result{DestMessageID: strconv.Itoa(messageID), Unchanged: true}
	if previous != "" && SameContent(previous, newText) {
		unchanged.Note = NoteEditSkipped
		s.logger.WithFields(logrus.Fields{
			logging.LogFieldChannelID: chatID,
			logging.LogFieldMessageID: messageID,
		}).Info("Content unchanged, skipping edit")
		metrics.IncrementCounter("edits_skipped", nil, "Edits skipped because content was unchanged")
		return unchanged, nil
	}

	if err := s.wait(ctx, chatID); err != nil {
		return Result{}, err
	}

	msg, err := s.client.EditMessageText(ctx, chatID, messageID, body, botapi.ParseModeHTML)
	if err != nil {
		if Classify(err).Code == CodeNotModified {
			unchanged.Note = NoteContentUnchanged
			s.logger.WithFields(logrus.Fields{
				logging.LogFieldChannelID: chatID,
				logging.LogFieldMessageID: messageID,
			}).Warn("Telegram reported message unchanged, treating edit as successful")
			s.refresh(chatID, messageID, body)
			return unchanged, nil
		}
		return Result{}, s.fail("edit", chatID, err, logrus.Fields{logging.LogFieldMessageID: messageID})
	}

	res := Result{DestMessageID: strconv.Itoa(messageID), Chunks: 1}
	if msg != nil && msg.MessageID != 0 {
		res.DestMessageID = strconv.Itoa(msg.MessageID)
	}
	s.refresh(chatID, messageID, body)
	s.succeed("edit", chatID, res)
	return res, nil
}

// wait blocks until the destination's send window has room.
func (s *Service) wait(ctx context.Context, chatID string) error {
	if s.limiter == nil {
		return nil
	}

	start := time.Now()
	attempts, err := s.throttle.Do(ctx, func(ctx context.Context) error {
		lc, err := s.limiter.Get(ctx, chatID)
		if err != nil {
			return err
		}
		if lc.Reached {
			return errThrottled
		}
		return nil
	}, func(err error) bool {
		return errors.Is(err, errThrottled)
	})

	if attempts > 1 {
		metrics.RecordTimer("delivery_throttle_wait", time.Since(start), nil, "Time spent waiting for the destination send window")
	}
	if errors.Is(err, errThrottled) {
		return apperrors.NewRateLimitError(chatID, s.rate, "1m")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeRateLimit, "throttle check failed")
	}
	return nil
}

// remember caches a freshly posted message. Cache failures are logged only.
func (s *Service) remember(chatID, destMessageID, body string) {
	if s.cache == nil {
		return
	}
	id, err := strconv.Atoi(destMessageID)
	if err != nil {
		return
	}
	msg := models.CachedMessage{
		MessageID: id,
		HTML:      body,
		Date:      s.now().UTC().Format(time.RFC3339),
	}
	if err := s.cache.Add(chatID, msg); err != nil {
		s.logger.WithError(err).WithField(logging.LogFieldChannelID, chatID).Warn("Failed to cache delivered message")
	}
}

func (s *Service) refresh(chatID string, messageID int, body string) {
	if s.cache == nil {
		return
	}
	found, err := s.cache.Update(chatID, messageID, body, s.now())
	if err != nil {
		s.logger.WithError(err).WithField(logging.LogFieldChannelID, chatID).Warn("Failed to update cached message")
		return
	}
	if !found {
		s.remember(chatID, strconv.Itoa(messageID), body)
	}
}

func (s *Service) fail(op, chatID string, err error, fields logrus.Fields) error {
	details := Classify(err)
	base := logrus.Fields{
		logging.LogFieldChannelID: chatID,
		logging.LogFieldOperation: op,
		logging.LogFieldErrorCode: details.Code,
		"severity":                details.Severity,
	}
	if details.Severity == SeverityWarning {
		s.errs.LogWarn(err, details.Message, base, fields)
	} else {
		s.errs.LogError(err, details.Message, base, fields)
	}

	metrics.IncrementCounter("deliveries", map[string]string{"operation": op, "status": "failure"}, "Delivery attempts by outcome")
	return &Error{Op: op, Details: details, Err: err}
}

func (s *Service) succeed(op, chatID string, res Result) {
	s.logger.WithFields(logrus.Fields{
		logging.LogFieldChannelID:     chatID,
		logging.LogFieldOperation:     op,
		logging.LogFieldDestMessageID: res.DestMessageID,
		logging.LogFieldChunks:        res.Chunks,
	}).Info("Delivered message")
	metrics.IncrementCounter("deliveries", map[string]string{"operation": op, "status": "success"}, "Delivery attempts by outcome")
}

