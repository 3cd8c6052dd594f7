// Package relay runs the per-message pipeline: enrich, format, translate,
// deliver, record.
package relay

import (
	"context"
	"errors"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"tgrelay/internal/cache"
	"tgrelay/internal/constants"
	"tgrelay/internal/delivery"
	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/events"
	"tgrelay/internal/format"
	"tgrelay/internal/gateway"
	"tgrelay/internal/logging"
	"tgrelay/internal/metrics"
	"tgrelay/internal/models"
	"tgrelay/internal/router"
	"tgrelay/internal/tracing"
	"tgrelay/internal/translator"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

// State is a pipeline stage of one message.
type State string

const (
	StateReceived    State = "received"
	StateEnriching   State = "enriching"
	StateFormatting  State = "formatting"
	StateTranslating State = "translating"
	StateDelivering  State = "delivering"
	StateRecorded    State = "recorded"
	StateFailed      State = "failed"
)

// EditTargetMissingMessage is recorded when an edit has no delivered
// counterpart to change.
const EditTargetMissingMessage = "No matching message found to edit."

// MetadataGateway queues enrichment requests.
type MetadataGateway interface {
	Enqueue(req models.MetadataRequest) (*gateway.Future[models.Metadata], error)
}

// Translator produces translated HTML.
type Translator interface {
	Translate(ctx context.Context, payload models.TranslationPayload) (translator.Result, error)
}

// Deliverer posts to destination channels.
type Deliverer interface {
	Send(ctx context.Context, chatID, text string) (delivery.Result, error)
	SendPhoto(ctx context.Context, chatID, photo, caption string) (delivery.Result, error)
	Edit(ctx context.Context, chatID string, messageID int, newText, previous string) (delivery.Result, error)
}

// SourceCache keeps recent source posts for the console and edit sizing.
type SourceCache interface {
	Add(channelID string, msg models.CachedMessage) error
	Update(channelID string, messageID int, htmlText string, date time.Time) (bool, error)
	Find(channelID string, messageID int) (models.CachedMessage, bool)
}

// Deps are the collaborators an Orchestrator drives. Cache is optional.
type Deps struct {
	Router     *router.ChannelRouter
	Gateway    MetadataGateway
	Translator Translator
	Delivery   Deliverer
	Log        events.Log
	Cache      SourceCache
}

// Options tunes the orchestrator.
type Options struct {
	// MaxConcurrent caps in-flight messages; zero means unlimited.
	MaxConcurrent int
	// MaxFileSize is the largest attachment passed to enrichment.
	MaxFileSize int64
	// EnrichTimeout bounds the wait for gateway metadata.
	EnrichTimeout time.Duration
}

// Orchestrator turns inbound channel posts into delivered translations.
type Orchestrator struct {
	deps   Deps
	opts   Options
	sem    *semaphore.Weighted
	logger *logrus.Logger
	errs   *apperrors.Logger
	now    func() time.Time

	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// New creates an orchestrator.
func New(deps Deps, opts Options, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = constants.MaxFileSizeBytes
	}
	if opts.EnrichTimeout <= 0 {
		opts.EnrichTimeout = time.Duration(constants.DefaultMetadataTimeoutSec) * time.Second
	}
	o := &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		errs:   apperrors.FromLogrus(logger),
		now:    time.Now,
	}
	if opts.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return o
}

// Handle processes msg on its own goroutine. The work outlives ctx's
// cancellation so that a shutdown lets in-flight messages finish; use Stop
// and Wait to drain. Messages arriving after Stop are dropped.
func (o *Orchestrator) Handle(ctx context.Context, msg models.InboundMessage) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		o.logger.WithFields(logging.MessageFields(ctx, msg.ChatID, msg.MessageID)).Warn("Relay stopped, dropping message")
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer o.wg.Done()
		if o.sem != nil {
			if err := o.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer o.sem.Release(1)
		}
		_, _ = o.Process(ctx, msg)
	}()
}

// Stop refuses further messages. In-flight ones continue.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
}

// Wait blocks until every in-flight message is recorded or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run carries one message through the pipeline.
type run struct {
	msg     models.InboundMessage
	rec     *events.Recorder
	log     *logrus.Entry
	pairing models.ChannelPairing
	media   format.MediaInfo
	state   State
}

func (r *run) enter(s State) {
	r.state = s
	r.log.WithField(logging.LogFieldState, string(s)).Debug("Relay state changed")
}

// Process runs the pipeline synchronously and returns the recorded event.
// Posts from destination channels are ignored and return a nil error with
// an empty event.
func (o *Orchestrator) Process(ctx context.Context, msg models.InboundMessage) (models.MessageEvent, error) {
	if _, err := o.deps.Router.SourceFor(msg.ChatID); err == nil && !o.deps.Router.IsSource(msg.ChatID) {
		return models.MessageEvent{}, nil
	}

	eventType := models.EventCreate
	if msg.IsEdit() {
		eventType = models.EventEdit
	}
	ctx = tracing.WithRequestID(ctx, tracing.GenerateRequestID())
	ctx, span := tracing.StartSpan(ctx, "relay.process",
		attribute.String("relay.event_type", eventType),
		attribute.Int("relay.message_id", msg.MessageID),
	)
	defer span.End()

	start := o.now()
	r := &run{
		msg: msg,
		rec: events.NewRecorder(o.deps.Log),
		log: o.logger.WithFields(logging.MessageFields(ctx, msg.ChatID, msg.MessageID)).
			WithField(logging.LogFieldRequestID, tracing.GetRequestID(ctx)).
			WithField(logging.LogFieldEventType, eventType),
	}

	ev, err := o.process(ctx, r)
	status := "success"
	if err != nil {
		status = "failure"
		tracing.RecordError(ctx, err)
	}
	metrics.IncrementCounter("messages_processed", map[string]string{"event_type": eventType, "status": status}, "Relayed messages by outcome")
	metrics.RecordTimer("relay_duration", o.now().Sub(start), map[string]string{"event_type": eventType}, "End-to-end relay latency")
	return ev, err
}

func (o *Orchestrator) process(ctx context.Context, r *run) (models.MessageEvent, error) {
	r.enter(StateReceived)
	o.received(r)

	pairing, err := o.deps.Router.Pairing(r.msg.ChatID)
	if err != nil {
		return o.fail(ctx, r, err, string(apperrors.GetCode(err)), err.Error())
	}
	r.pairing = pairing
	r.log = r.log.WithField(logging.LogFieldDestChannelID, logging.ChannelField(ctx, pairing.DestID))
	r.rec.Apply(func(ev *models.MessageEvent) {
		ev.SourceChannelName = pairing.SourceName
		ev.DestChannelID = pairing.DestID
		ev.DestChannelName = pairing.DestName
	})

	r.enter(StateEnriching)
	meta := o.enrich(ctx, r)

	r.enter(StateFormatting)
	body := format.EntitiesToHTML(r.msg.Text, r.msg.Entities)
	payload := format.BuildPayload(r.msg, body, meta)
	o.remember(r, payload.HTML)

	r.enter(StateTranslating)
	tctx, tspan := tracing.StartSpan(ctx, "relay.translate")
	result, err := o.deps.Translator.Translate(tctx, payload)
	tspan.End()
	r.rec.Apply(func(ev *models.MessageEvent) {
		ev.TranslationTime = result.Duration.Seconds()
		ev.RetryCount = result.RetryCount
	})
	if err != nil {
		return o.fail(ctx, r, err, string(apperrors.GetCode(err)), err.Error())
	}
	r.rec.Apply(func(ev *models.MessageEvent) {
		ev.TranslatedMessage = result.Text
		ev.TranslatedSize = utf8.RuneCountInString(result.Text)
	})

	r.enter(StateDelivering)
	dctx, dspan := tracing.StartSpan(ctx, "relay.deliver")
	res, err := o.deliver(dctx, r, result.Text)
	dspan.End()
	if err != nil {
		code, text := describeDeliveryError(err)
		return o.fail(ctx, r, err, code, text)
	}

	r.rec.Apply(func(ev *models.MessageEvent) {
		ev.PostingSuccess = true
		ev.DestMessageID = res.DestMessageID
		ev.ExceptionMessage = res.Note
	})
	ev, err := o.record(ctx, r)
	if err != nil {
		return ev, err
	}
	r.enter(StateRecorded)
	r.log.WithField(logging.LogFieldDestMessageID, ev.DestMessageID).Info("Message relayed")
	return ev, nil
}

// received fills the fields known before any I/O.
func (o *Orchestrator) received(r *run) {
	r.media = format.ClassifyMedia(r.msg, o.opts.MaxFileSize)
	size := utf8.RuneCountInString(r.msg.Text)

	r.rec.Apply(func(ev *models.MessageEvent) {
		ev.SourceChannelID = r.msg.ChatID
		ev.MessageID = r.msg.MessageID
		ev.MediaType = r.media.Type
		ev.FileSizeBytes = r.media.FileSize
		ev.OriginalSize = size
		ev.SourceMessage = r.msg.Text
		if r.msg.IsEdit() {
			ev.EditTimestamp = r.msg.EditDate.UTC().Format(time.RFC3339)
			ev.NewSize = size
		}
	})
}

// remember stores the rendered source post in the channel cache. For edits
// the cached copy of the previous version yields previous_size.
func (o *Orchestrator) remember(r *run, rendered string) {
	if o.deps.Cache == nil {
		return
	}
	if !r.msg.IsEdit() {
		snap := cache.Snapshot(r.msg.MessageID, rendered, r.msg.Date, r.msg.ChatTitle, r.msg.ChatUsername)
		if err := o.deps.Cache.Add(r.msg.ChatID, snap); err != nil {
			r.log.WithError(err).Warn("Failed to cache source message")
		}
		return
	}

	if prev, ok := o.deps.Cache.Find(r.msg.ChatID, r.msg.MessageID); ok {
		prevSize := cachedTextSize(prev.HTML)
		r.rec.Apply(func(ev *models.MessageEvent) { ev.PreviousSize = prevSize })
	}
	if _, err := o.deps.Cache.Update(r.msg.ChatID, r.msg.MessageID, html.EscapeString(rendered), r.msg.EditDate); err != nil {
		r.log.WithError(err).Warn("Failed to update cached source message")
	}
}

// cachedTextSize is the length of the source text behind a cached entry,
// without markup or the source trailer.
func cachedTextSize(stored string) int {
	body, _, _ := strings.Cut(html.UnescapeString(stored), format.SourceTrailerPrefix)
	return utf8.RuneCountInString(format.HTMLToText(body))
}

// enrich never fails: a gateway that is stopped, slow or erroring yields
// metadata without enrichment.
func (o *Orchestrator) enrich(ctx context.Context, r *run) models.Metadata {
	ctx, span := tracing.StartSpan(ctx, "relay.enrich")
	defer span.End()

	req := models.MetadataRequest{
		RequestID: tracing.GetRequestID(ctx),
		ChatID:    r.msg.ChatID,
		MessageID: r.msg.MessageID,
		FileID:    r.media.FileID,
		Entities:  r.msg.Entities,
	}
	empty := models.Metadata{Request: req}

	future, err := o.deps.Gateway.Enqueue(req)
	if err != nil {
		r.log.WithError(err).Warn("Metadata gateway unavailable, continuing without enrichment")
		return empty
	}

	wctx, cancel := context.WithTimeout(ctx, o.opts.EnrichTimeout)
	defer cancel()
	meta, err := future.Await(wctx)
	if err != nil {
		r.log.WithError(err).Warn("Timed out waiting for metadata, continuing without enrichment")
		return empty
	}
	if meta.Chat.Err != "" || meta.File.Err != "" {
		r.log.WithFields(logrus.Fields{
			"chat_error": meta.Chat.Err,
			"file_error": meta.File.Err,
		}).Debug("Metadata partially enriched")
	}
	return meta
}

func (o *Orchestrator) deliver(ctx context.Context, r *run, text string) (delivery.Result, error) {
	dest := r.pairing.DestID

	if r.msg.IsEdit() {
		destID, ok, err := o.deps.Log.DestinationMessageID(ctx, r.msg.ChatID, r.msg.MessageID)
		if err != nil {
			return delivery.Result{}, err
		}
		if !ok {
			return delivery.Result{}, apperrors.NewEditTargetMissingError(r.msg.ChatID, r.msg.MessageID)
		}
		id, err := strconv.Atoi(destID)
		if err != nil {
			return delivery.Result{}, apperrors.NewEditTargetMissingError(r.msg.ChatID, r.msg.MessageID).
				WithContext("dest_message_id", destID)
		}
		return o.deps.Delivery.Edit(ctx, dest, id, text, "")
	}

	if r.media.Type == models.MediaPhoto && r.media.FileID != "" &&
		utf8.RuneCountInString(delivery.Sanitize(text)) <= constants.MaxCaptionLength {
		return o.deps.Delivery.SendPhoto(ctx, dest, r.media.FileID, text)
	}
	return o.deps.Delivery.Send(ctx, dest, text)
}

// describeDeliveryError picks the api_error_code and exception_message
// recorded for a failed delivery.
func describeDeliveryError(err error) (string, string) {
	var derr *delivery.Error
	if errors.As(err, &derr) {
		return derr.Details.Code, derr.Description()
	}
	if apperrors.HasCode(err, apperrors.ErrCodeEditTargetMissing) {
		return delivery.CodeEditTargetMissing, EditTargetMissingMessage
	}
	if appErr, ok := apperrors.As(err); ok {
		return string(appErr.Code), apperrors.GetUserMessage(err)
	}
	return delivery.CodeUnknown, err.Error()
}

// fail records the failure and returns err. A failed append is logged but
// the pipeline error wins.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error, code, text string) (models.MessageEvent, error) {
	from := r.state
	r.enter(StateFailed)
	r.rec.Apply(func(ev *models.MessageEvent) {
		ev.PostingSuccess = false
		ev.APIErrorCode = code
		ev.ExceptionMessage = text
	})

	o.errs.LogError(err, "Message relay failed", r.log.Data, logrus.Fields{
		logging.LogFieldErrorCode: code,
		"failed_in":               string(from),
	})

	ev, recErr := o.record(ctx, r)
	if recErr != nil {
		r.log.WithError(recErr).Error("Failed to record failed message")
	}
	return ev, err
}

func (o *Orchestrator) record(ctx context.Context, r *run) (models.MessageEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "relay.record")
	defer span.End()

	ev, err := r.rec.Finalize(ctx)
	if err != nil {
		metrics.IncrementCounter("event_record_failures", nil, "Events that could not be appended")
		return ev, apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to record message event")
	}
	return ev, nil
}
