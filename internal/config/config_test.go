package config

import (
	"os"
	"path/filepath"
	"testing"

	"tgrelay/internal/constants"
	"tgrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var relayEnv = []string{
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_API_HASH", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
	"LOG_LEVEL", "TGRELAY_EVENTS_PATH", "TGRELAY_CACHE_PATH", "TGRELAY_DB_PATH", "PORT",
	"TGRELAY_ENV", "TGRELAY_ENCRYPTION_SECRET", "TGRELAY_CHANNELS",
}

// cleanEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range relayEnv {
		t.Setenv(key, "")
	}
	t.Setenv("TELEGRAM_API_ID", "0")
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validJSON = `{
	"telegram": {"bot_token": "file-token", "api_id": 12345, "api_hash": "hash"},
	"llm": {"provider": "anthropic", "model": "claude-test"},
	"channels": [
		{"logical_name": "news", "source_id": "1234567890", "dest_id": "-1009876543210"}
	],
	"log_level": "warn"
}`

func TestLoadConfig_JSONWithDefaults(t *testing.T) {
	cleanEnv(t)
	cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Telegram.BotToken)
	assert.Equal(t, 12345, cfg.Telegram.APIID)
	assert.Equal(t, constants.DefaultBotAPIURL, cfg.Telegram.BotAPIURL)
	assert.Equal(t, constants.DefaultSessionPath, cfg.Telegram.SessionPath)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, constants.DefaultEventsPath, cfg.Storage.EventsPath)
	assert.Equal(t, constants.DefaultRateLimitPerMinute, cfg.Delivery.RateLimitPerMinute)
	assert.Equal(t, constants.DefaultTranslationAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, "8082", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.LogLevel)

	require.Len(t, cfg.Channels, 1)
	ch := cfg.Channels[0]
	assert.Equal(t, "-1001234567890", ch.SourceID, "bare ids get the channel prefix")
	assert.Equal(t, "-1009876543210", ch.DestID)
	assert.Equal(t, "news", ch.SourceName)
	assert.Equal(t, "news_en", ch.DestName)
}

func TestLoadConfig_YAML(t *testing.T) {
	cleanEnv(t)
	path := writeConfig(t, "config.yaml", `
telegram:
  bot_token: yaml-token
llm:
  provider: gemini
channels:
  - logical_name: sport
    source_id: "@sport_ru"
    dest_id: sport_en
    dest_name: Sport EN
storage:
  driver: sqlite
relay:
  max_concurrent: 4
`)
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("ANTHROPIC_API_KEY", "ignored")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "yaml-token", cfg.Telegram.BotToken)
	assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Relay.MaxConcurrent)
	require.Len(t, cfg.Channels, 1)
	assert.Equal(t, "@sport_ru", cfg.Channels[0].SourceID)
	assert.Equal(t, "@sport_en", cfg.Channels[0].DestID)
	assert.Equal(t, "Sport EN", cfg.Channels[0].DestName)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	t.Setenv("TGRELAY_EVENTS_PATH", "/data/events.json")
	t.Setenv("TGRELAY_DB_PATH", "/data/relay.db")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TGRELAY_ENCRYPTION_SECRET", "from-env")

	cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "/data/events.json", cfg.Storage.EventsPath)
	assert.Equal(t, "/data/relay.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.Storage.EncryptionSecret)
}

func TestLoadConfig_ChannelsFromEnvironment(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TGRELAY_CHANNELS", "news, Sport")
	t.Setenv("NEWS_CHANNEL", "-1001111")
	t.Setenv("NEWS_EN_CHANNEL_ID", "-1002222")
	t.Setenv("NEWS_EN_CHANNEL_NAME", "News (EN)")
	t.Setenv("SPORT_CHANNEL", "3333")
	t.Setenv("SPORT_EN_CHANNEL_ID", "4444")

	cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)

	require.Len(t, cfg.Channels, 2, "env pairing replaces the file pairing with the same name")
	news := cfg.Channels[0]
	assert.Equal(t, "news", news.LogicalName)
	assert.Equal(t, "-1001111", news.SourceID)
	assert.Equal(t, "-1002222", news.DestID)
	assert.Equal(t, "news", news.SourceName)
	assert.Equal(t, "News (EN)", news.DestName)

	sport := cfg.Channels[1]
	assert.Equal(t, "sport", sport.LogicalName)
	assert.Equal(t, "-1003333", sport.SourceID)
	assert.Equal(t, "-1004444", sport.DestID)
	assert.Equal(t, "sport_en", sport.DestName)

	pairings := models.PairingsFromConfig(cfg.Channels)
	assert.Equal(t, "sport_en", pairings[1].DestName)
}

func TestLoadConfig_IncompleteEnvironmentPairingFails(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TGRELAY_CHANNELS", "news")
	t.Setenv("NEWS_CHANNEL", "-1001111")
	t.Setenv("NEWS_EN_CHANNEL_ID", "")

	_, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.Error(t, err)
	assert.IsType(t, models.ConfigError{}, err)
	assert.Contains(t, err.Error(), "NEWS_EN_CHANNEL_ID")
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing token",
			content: `{"channels": [{"source_id": "1", "dest_id": "2"}]}`,
			want:    ErrMissingBotToken.Message,
		},
		{
			name:    "no channels",
			content: `{"telegram": {"bot_token": "t"}}`,
			want:    ErrMissingChannels.Message,
		},
		{
			name:    "bad channel id",
			content: `{"telegram": {"bot_token": "t"}, "channels": [{"source_id": "not a channel", "dest_id": "2"}]}`,
			want:    "invalid channel id format",
		},
		{
			name:    "unknown provider",
			content: `{"telegram": {"bot_token": "t"}, "llm": {"provider": "mystery"}, "channels": [{"source_id": "1", "dest_id": "2"}]}`,
			want:    "unsupported llm provider",
		},
		{
			name:    "unknown driver",
			content: `{"telegram": {"bot_token": "t"}, "storage": {"driver": "redis"}, "channels": [{"source_id": "1", "dest_id": "2"}]}`,
			want:    "unsupported storage driver",
		},
		{
			name:    "path traversal",
			content: `{"telegram": {"bot_token": "t"}, "storage": {"events_path": "../../etc/events.json"}, "channels": [{"source_id": "1", "dest_id": "2"}]}`,
			want:    "directory traversal",
		},
		{
			name:    "sample rate",
			content: `{"telegram": {"bot_token": "t"}, "tracing": {"sample_rate": 2}, "channels": [{"source_id": "1", "dest_id": "2"}]}`,
			want:    "sample_rate",
		},
		{
			name:    "encryption without secret",
			content: `{"telegram": {"bot_token": "t"}, "storage": {"encrypt_messages": true}, "channels": [{"source_id": "1", "dest_id": "2"}]}`,
			want:    "TGRELAY_ENCRYPTION_SECRET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			_, err := LoadConfig(writeConfig(t, "config.json", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig_InvalidInput(t *testing.T) {
	cleanEnv(t)

	_, err := LoadConfig("../config.json")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "config.json", `{not json`))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "config.yml", "telegram: [unterminated"))
	assert.Error(t, err)
}

func TestLoadConfig_Production(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TGRELAY_ENV", Production)
	path := writeConfig(t, "config.json", validJSON)

	_, err := LoadConfig(path)
	require.Error(t, err, "an LLM key is required in production")
	assert.Contains(t, err.Error(), "LLM API key")

	t.Setenv("ANTHROPIC_API_KEY", "sk-prod")
	t.Setenv("LOG_LEVEL", "debug")
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug logging")

	t.Setenv("LOG_LEVEL", "info")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-prod", cfg.LLM.APIKey)
}

func TestLoadEnv(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TGRELAY_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TGRELAY_TEST_DOTENV") })

	n, err := LoadEnv(envFile, filepath.Join(dir, ".env.local"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "loaded", os.Getenv("TGRELAY_TEST_DOTENV"))

	n, err = LoadEnv(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
