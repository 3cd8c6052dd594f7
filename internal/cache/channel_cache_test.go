package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tgrelay/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, limit int) *ChannelMessageCache {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c, err := New(filepath.Join(t.TempDir(), "cache", "channel_cache.json"), limit, logger)
	require.NoError(t, err)
	return c
}

func TestSnapshot_EscapesText(t *testing.T) {
	date := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 7200))
	snap := Snapshot(5, `<script>alert("x")</script> & more`, date, "News", "news")

	assert.Equal(t, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt; &amp; more", snap.HTML)
	assert.Equal(t, "2026-05-01T08:00:00Z", snap.Date)
	assert.Equal(t, "News", snap.ChatTitle)
}

func TestAdd_EvictsOldestFirst(t *testing.T) {
	c := newCache(t, DefaultLimit)

	for i := 1; i <= 12; i++ {
		require.NoError(t, c.Add("-1001", models.CachedMessage{MessageID: i}))
	}

	recent := c.Recent("-1001")
	require.Len(t, recent, DefaultLimit)
	assert.Equal(t, 4, recent[0].MessageID)
	assert.Equal(t, 12, recent[len(recent)-1].MessageID)
	assert.Empty(t, c.Recent("-1002"))
}

func TestAdd_ReplacesExistingID(t *testing.T) {
	c := newCache(t, 3)

	require.NoError(t, c.Add("-1", models.CachedMessage{MessageID: 1, HTML: "old"}))
	require.NoError(t, c.Add("-1", models.CachedMessage{MessageID: 2}))
	require.NoError(t, c.Add("-1", models.CachedMessage{MessageID: 1, HTML: "new"}))

	recent := c.Recent("-1")
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].HTML)
}

func TestUpdateAndRemove(t *testing.T) {
	c := newCache(t, 5)
	require.NoError(t, c.Add("-1", models.CachedMessage{MessageID: 7, HTML: "a"}))

	ok, err := c.Update("-1", 7, "b", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	got, found := c.Find("-1", 7)
	require.True(t, found)
	assert.Equal(t, "b", got.HTML)
	assert.Equal(t, "2026-01-01T00:00:00Z", got.Date)

	ok, err = c.Update("-1", 8, "x", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Remove("-1", 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, c.Recent("-1"))
}

func TestPersistence_RoundTripsThroughFile(t *testing.T) {
	c := newCache(t, 2)
	require.NoError(t, c.Add("-1", models.CachedMessage{MessageID: 1, ChatUsername: "news"}))
	require.NoError(t, c.Add("-2", models.CachedMessage{MessageID: 9}))

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	var raw map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 2)
	assert.Equal(t, "news", raw["-1"][0]["chat_username"])

	reloaded, err := New(c.Path(), 2, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, c.Recent("-1"), reloaded.Recent("-1"))
}

func TestNew_CorruptFileIsMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channel_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c, err := New(path, 0, logger)
	require.NoError(t, err)
	assert.Empty(t, c.Recent("-1"))

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestAdd_ConcurrentWritersKeepBound(t *testing.T) {
	c := newCache(t, DefaultLimit)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, c.Add("-1", models.CachedMessage{MessageID: id}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, c.Recent("-1"), DefaultLimit)

	var onDisk map[string][]models.CachedMessage
	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, c.Recent("-1"), onDisk["-1"])
}
