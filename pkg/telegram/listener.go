// Package telegram connects the relay to Telegram: an MTProto listener for
// source channel posts and a Bot API client for metadata lookups.
package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tgrelay/internal/models"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Handler receives every mapped channel post, new or edited.
type Handler func(ctx context.Context, msg models.InboundMessage)

// ListenerConfig holds the MTProto credentials.
type ListenerConfig struct {
	APIID       int
	APIHash     string
	BotToken    string
	SessionPath string
}

// Listener logs in as the bot over MTProto and forwards channel posts.
type Listener struct {
	cfg     ListenerConfig
	client  *telegram.Client
	handler Handler
	logger  *logrus.Logger
}

// NewListener builds a listener. zapLogger is handed to gotd, which only
// speaks zap; everything the listener itself logs goes through logger.
func NewListener(cfg ListenerConfig, handler Handler, logger *logrus.Logger, zapLogger *zap.Logger) (*Listener, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("telegram api id and hash are required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.SessionPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SessionPath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	l := &Listener{cfg: cfg, handler: handler, logger: logger}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		l.dispatch(ctx, u.Message, e)
		return nil
	})
	dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		l.dispatch(ctx, u.Message, e)
		return nil
	})

	opts := telegram.Options{
		Logger:        zapLogger.Named("mtproto"),
		UpdateHandler: dispatcher,
	}
	if cfg.SessionPath != "" {
		opts.SessionStorage = &session.FileStorage{Path: cfg.SessionPath}
	}
	l.client = telegram.NewClient(cfg.APIID, cfg.APIHash, opts)
	return l, nil
}

// Run connects, authorizes the bot when the session is new, and blocks
// until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	return l.client.Run(ctx, func(ctx context.Context) error {
		status, err := l.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to check auth status: %w", err)
		}
		if !status.Authorized {
			if _, err := l.client.Auth().Bot(ctx, l.cfg.BotToken); err != nil {
				return fmt.Errorf("bot login failed: %w", err)
			}
		}

		l.logger.Info("Telegram listener started")
		<-ctx.Done()
		l.logger.Info("Telegram listener stopping")
		return ctx.Err()
	})
}

func (l *Listener) dispatch(ctx context.Context, raw tg.MessageClass, e tg.Entities) {
	msg, ok := raw.(*tg.Message)
	if !ok {
		return
	}
	in, ok := MapMessage(msg, e)
	if !ok {
		return
	}
	l.handler(ctx, in)
}
