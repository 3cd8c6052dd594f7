package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/logging"
	"tgrelay/internal/metrics"
	"tgrelay/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrGatewayStopped is returned by Enqueue after Stop.
var ErrGatewayStopped = apperrors.New(apperrors.ErrCodeGatewayStopped, "metadata gateway is stopped")

const fileTooBigMessage = "file is too big"

// BotClient is the secondary Bot API client the worker drives.
type BotClient interface {
	GetChat(ctx context.Context, chatID string) (models.ChatInfo, error)
	GetFile(ctx context.Context, fileID string) (models.FileInfo, error)
}

type pending struct {
	req    models.MetadataRequest
	future *Future[models.Metadata]
}

// Gateway serializes metadata lookups through a single worker so the
// listener never blocks on the Bot API.
type Gateway struct {
	client      BotClient
	logger      *logrus.Logger
	errs        *apperrors.Logger
	callTimeout time.Duration

	mu      sync.Mutex
	queue   []*pending
	stopped bool
	wake    chan struct{}
	stopCh  chan struct{}
	stopOne sync.Once
}

// New creates a gateway backed by client. callTimeout bounds each Bot API call.
func New(client BotClient, logger *logrus.Logger, callTimeout time.Duration) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Gateway{
		client:      client,
		logger:      logger,
		errs:        apperrors.FromLogrus(logger),
		callTimeout: callTimeout,
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// Enqueue pushes req onto the unbounded queue and returns its future.
// After Stop the returned future is already resolved without enrichment.
func (g *Gateway) Enqueue(req models.MetadataRequest) (*Future[models.Metadata], error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	f := newFuture[models.Metadata]()

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		f.resolve(models.Metadata{Request: req})
		return f, ErrGatewayStopped
	}
	g.queue = append(g.queue, &pending{req: req, future: f})
	depth := len(g.queue)
	g.mu.Unlock()

	metrics.SetGauge("gateway_queue_depth", float64(depth), nil, "Pending metadata requests")

	select {
	case g.wake <- struct{}{}:
	default:
	}
	return f, nil
}

// Stop stops accepting requests. The worker resolves anything still queued
// without enrichment and exits.
func (g *Gateway) Stop() {
	g.stopOne.Do(func() {
		g.mu.Lock()
		g.stopped = true
		g.mu.Unlock()
		close(g.stopCh)
	})
}

// Len returns the number of queued requests.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Run is the single consumer loop. It returns when Stop is called or ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("Metadata gateway worker started")
	defer g.logger.Info("Metadata gateway worker stopped")

	for {
		select {
		case <-g.stopCh:
			g.drain()
			return nil
		case <-ctx.Done():
			g.Stop()
			g.drain()
			return nil
		default:
		}

		p := g.pop()
		if p == nil {
			select {
			case <-g.wake:
			case <-g.stopCh:
			case <-ctx.Done():
			}
			continue
		}

		start := time.Now()
		meta := g.fetch(ctx, p.req)
		p.future.resolve(meta)
		metrics.RecordTimer("gateway_fetch_duration", time.Since(start), nil, "Metadata fetch latency")
	}
}

func (g *Gateway) pop() *pending {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return nil
	}
	p := g.queue[0]
	g.queue[0] = nil
	g.queue = g.queue[1:]
	return p
}

func (g *Gateway) drain() {
	g.mu.Lock()
	rest := g.queue
	g.queue = nil
	g.mu.Unlock()

	for _, p := range rest {
		p.future.resolve(models.Metadata{Request: p.req})
	}
	if len(rest) > 0 {
		g.logger.WithField("count", len(rest)).Info("Resolved queued metadata requests without enrichment on shutdown")
	}
}

// fetch never fails: errors land in the metadata's error slots.
func (g *Gateway) fetch(ctx context.Context, req models.MetadataRequest) models.Metadata {
	meta := models.Metadata{Request: req}
	fields := logrus.Fields{
		logging.LogFieldRequestID: req.RequestID,
		logging.LogFieldChannelID: req.ChatID,
		logging.LogFieldMessageID: req.MessageID,
	}

	chatCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	chat, err := g.client.GetChat(chatCtx, req.ChatID)
	cancel()
	if err != nil {
		meta.Chat.Err = err.Error()
		metrics.IncrementCounter("gateway_errors", map[string]string{"call": "getChat"}, "Metadata fetch errors")
		g.errs.LogWarn(err, "Chat info lookup failed", fields)
	} else {
		if chat.Link == "" && chat.Username != "" {
			chat.Link = "https://t.me/" + chat.Username
		}
		meta.Chat.Info = &chat
	}

	if req.FileID == "" {
		meta.File.Status = models.FileAbsent
		return meta
	}

	fileCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	file, err := g.client.GetFile(fileCtx, req.FileID)
	cancel()
	if err != nil {
		meta.File.Status = models.FileFailed
		if strings.Contains(strings.ToLower(err.Error()), fileTooBigMessage) {
			meta.File.Err = models.FileTooBig
		} else {
			meta.File.Err = err.Error()
		}
		metrics.IncrementCounter("gateway_errors", map[string]string{"call": "getFile"}, "Metadata fetch errors")
		g.errs.LogWarn(err, "File info lookup failed", fields)
		return meta
	}

	meta.File.Status = models.FileOK
	meta.File.Info = &file
	return meta
}
