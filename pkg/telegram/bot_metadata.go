package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tgrelay/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the part of *tgbotapi.BotAPI the metadata client calls.
type botAPI interface {
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// BotMetadataClient answers the metadata gateway's chat and file lookups
// through the Bot API. It satisfies gateway.BotClient.
type BotMetadataClient struct {
	api   botAPI
	token string
}

// NewBotMetadataClient authorizes token against apiURL (the Bot API base
// URL, e.g. https://api.telegram.org).
func NewBotMetadataClient(token, apiURL string) (*BotMetadataClient, error) {
	endpoint := tgbotapi.APIEndpoint
	if apiURL != "" {
		endpoint = strings.TrimRight(apiURL, "/") + "/bot%s/%s"
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}
	return &BotMetadataClient{api: api, token: token}, nil
}

// GetChat fetches title and username for a "-100..." id or an @username.
func (c *BotMetadataClient) GetChat(ctx context.Context, chatID string) (models.ChatInfo, error) {
	cfg, err := chatConfig(chatID)
	if err != nil {
		return models.ChatInfo{}, err
	}

	chat, err := call(ctx, func() (tgbotapi.Chat, error) {
		return c.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: cfg})
	})
	if err != nil {
		return models.ChatInfo{}, fmt.Errorf("getChat %s: %w", chatID, err)
	}

	info := models.ChatInfo{Title: chat.Title, Username: chat.UserName}
	if chat.UserName != "" {
		info.Link = "https://t.me/" + chat.UserName
	}
	return info, nil
}

// GetFile resolves a file id to its server path and a download link. The
// Bot API refuses files over 20 MB with "file is too big".
func (c *BotMetadataClient) GetFile(ctx context.Context, fileID string) (models.FileInfo, error) {
	file, err := call(ctx, func() (tgbotapi.File, error) {
		return c.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	})
	if err != nil {
		return models.FileInfo{}, fmt.Errorf("getFile: %w", err)
	}

	return models.FileInfo{
		FileID:       file.FileID,
		FilePath:     file.FilePath,
		FileSize:     int64(file.FileSize),
		DownloadLink: file.Link(c.token),
	}, nil
}

func chatConfig(chatID string) (tgbotapi.ChatConfig, error) {
	if strings.HasPrefix(chatID, "@") {
		return tgbotapi.ChatConfig{SuperGroupUsername: chatID}, nil
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return tgbotapi.ChatConfig{}, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return tgbotapi.ChatConfig{ChatID: id}, nil
}

// call runs a blocking tgbotapi request and gives up when ctx ends. The
// library has no context support, so an abandoned request finishes in the
// background against the client's own HTTP timeout.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
