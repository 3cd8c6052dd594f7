// Package cache keeps a small durable ring of recent messages per channel so
// an operator can pick one without querying Telegram.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/events"
	"tgrelay/internal/metrics"
	"tgrelay/internal/models"

	"github.com/sirupsen/logrus"
)

// DefaultLimit is the number of snapshots kept per channel.
const DefaultLimit = 9

// ChannelMessageCache is a channel-id keyed map of bounded snapshot lists,
// persisted as one JSON document. Entries are ordered oldest first and
// evicted oldest first.
type ChannelMessageCache struct {
	mu      sync.Mutex
	path    string
	limit   int
	logger  *logrus.Logger
	entries map[string][]models.CachedMessage
}

// New loads the cache at path. A missing file starts empty. An unreadable
// document is moved aside and the cache starts empty, since the cache is a
// convenience copy rather than a record of truth.
func New(path string, limit int, logger *logrus.Logger) (*ChannelMessageCache, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to create cache directory")
	}

	c := &ChannelMessageCache{
		path:    path,
		limit:   limit,
		logger:  logger,
		entries: map[string][]models.CachedMessage{},
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ChannelMessageCache) load() error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to read channel cache")
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		backup := c.path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		if renameErr := os.Rename(c.path, backup); renameErr != nil {
			return apperrors.NewLogCorruptError(c.path, err)
		}
		c.logger.WithError(err).WithField("backup", backup).Warn("Channel cache unreadable, starting empty")
		c.entries = map[string][]models.CachedMessage{}
		return nil
	}
	if c.entries == nil {
		c.entries = map[string][]models.CachedMessage{}
	}
	for id, msgs := range c.entries {
		c.entries[id] = c.trim(msgs)
	}
	return nil
}

// Snapshot builds a cache entry from rendered message HTML, escaping it so
// the html field is always safe to render.
func Snapshot(messageID int, text string, date time.Time, chatTitle, chatUsername string) models.CachedMessage {
	return models.CachedMessage{
		MessageID:    messageID,
		HTML:         html.EscapeString(text),
		Date:         date.UTC().Format(time.RFC3339),
		ChatTitle:    chatTitle,
		ChatUsername: chatUsername,
	}
}

// Add appends msg to the channel's ring and persists the cache. A snapshot
// with an id already present replaces the old one in place.
func (c *ChannelMessageCache) Add(channelID string, msg models.CachedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.entries[channelID]
	for i := range msgs {
		if msgs[i].MessageID == msg.MessageID {
			msgs[i] = msg
			return c.persist()
		}
	}
	c.entries[channelID] = c.trim(append(msgs, msg))
	metrics.SetGauge("cache_entries", float64(len(c.entries[channelID])), nil, "Cached snapshots in the last written channel")
	return c.persist()
}

// Update replaces the html and date of a cached message after an edit. It
// reports whether the message was cached; a miss writes nothing.
func (c *ChannelMessageCache) Update(channelID string, messageID int, htmlText string, date time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.entries[channelID]
	for i := range msgs {
		if msgs[i].MessageID == messageID {
			msgs[i].HTML = htmlText
			msgs[i].Date = date.UTC().Format(time.RFC3339)
			return true, c.persist()
		}
	}
	return false, nil
}

// Remove drops a message from the channel's ring.
func (c *ChannelMessageCache) Remove(channelID string, messageID int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.entries[channelID]
	for i := range msgs {
		if msgs[i].MessageID == messageID {
			c.entries[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			if len(c.entries[channelID]) == 0 {
				delete(c.entries, channelID)
			}
			return true, c.persist()
		}
	}
	return false, nil
}

// Recent returns a copy of the channel's snapshots, oldest first.
func (c *ChannelMessageCache) Recent(channelID string) []models.CachedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.entries[channelID]
	out := make([]models.CachedMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Find returns the cached snapshot for a message, if any.
func (c *ChannelMessageCache) Find(channelID string, messageID int) (models.CachedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.entries[channelID] {
		if m.MessageID == messageID {
			return m, true
		}
	}
	return models.CachedMessage{}, false
}

// Path returns the backing file location.
func (c *ChannelMessageCache) Path() string {
	return c.path
}

func (c *ChannelMessageCache) trim(msgs []models.CachedMessage) []models.CachedMessage {
	if len(msgs) <= c.limit {
		return msgs
	}
	return append([]models.CachedMessage(nil), msgs[len(msgs)-c.limit:]...)
}

// persist must be called with mu held.
func (c *ChannelMessageCache) persist() error {
	return events.WriteJSONAtomic(c.path, c.entries)
}
