package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tgrelay/internal/constants"
	"tgrelay/internal/format"
	"tgrelay/internal/models"
	"tgrelay/internal/security"
	"tgrelay/pkg/llm"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers accepted in configuration.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Production is the TGRELAY_ENV value that enables the stricter checks.
const Production = "production"

var (
	ErrMissingBotToken = models.ConfigError{Message: "missing Telegram bot token (set TELEGRAM_BOT_TOKEN)"}
	ErrMissingChannels = models.ConfigError{Message: "at least one channel pairing is required"}
)

// environment is the process environment as the relay reads it.
type environment struct {
	BotToken         string   `env:"TELEGRAM_BOT_TOKEN"`
	APIID            int      `env:"TELEGRAM_API_ID"`
	APIHash          string   `env:"TELEGRAM_API_HASH"`
	AnthropicAPIKey  string   `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey     string   `env:"GEMINI_API_KEY"`
	LogLevel         string   `env:"LOG_LEVEL"`
	EventsPath       string   `env:"TGRELAY_EVENTS_PATH"`
	CachePath        string   `env:"TGRELAY_CACHE_PATH"`
	DatabasePath     string   `env:"TGRELAY_DB_PATH"`
	Port             string   `env:"PORT"`
	Env              string   `env:"TGRELAY_ENV" envDefault:"development"`
	EncryptionSecret string   `env:"TGRELAY_ENCRYPTION_SECRET"`
	Channels         []string `env:"TGRELAY_CHANNELS" envSeparator:","`
}

// channelEnv is one logical channel's variables, read under the
// "<NAME>_" prefix.
type channelEnv struct {
	SourceID   string `env:"CHANNEL"`
	DestID     string `env:"EN_CHANNEL_ID"`
	SourceName string `env:"CHANNEL_NAME"`
	DestName   string `env:"EN_CHANNEL_NAME"`
}

// LoadEnv loads the dotenv files that exist. Variables already set in the
// process win over file values.
func LoadEnv(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// LoadConfig reads the JSON or YAML file at path, layers the environment on
// top, fills defaults and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := decode(path, file, &config); err != nil {
		return nil, err
	}

	var e environment
	if err := env.Parse(&e); err != nil {
		return nil, models.ConfigError{Message: fmt.Sprintf("invalid environment: %v", err)}
	}

	applyEnvironmentOverrides(&config, e)
	if err := applyChannelEnvironment(&config, e.Channels); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config, e.Env == Production); err != nil {
		return nil, err
	}
	return &config, nil
}

func decode(path string, data []byte, config *models.Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid YAML config: %v", err)}
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid JSON config: %v", err)}
		}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config, e environment) {
	if e.BotToken != "" {
		c.Telegram.BotToken = e.BotToken
	}
	if e.APIID != 0 {
		c.Telegram.APIID = e.APIID
	}
	if e.APIHash != "" {
		c.Telegram.APIHash = e.APIHash
	}

	switch c.LLM.Provider {
	case llm.ProviderGemini:
		if e.GeminiAPIKey != "" {
			c.LLM.APIKey = e.GeminiAPIKey
		}
	default:
		if e.AnthropicAPIKey != "" {
			c.LLM.APIKey = e.AnthropicAPIKey
		}
	}

	if e.LogLevel != "" {
		c.LogLevel = e.LogLevel
	}
	if e.EventsPath != "" {
		c.Storage.EventsPath = e.EventsPath
	}
	if e.CachePath != "" {
		c.Storage.CachePath = e.CachePath
	}
	if e.DatabasePath != "" {
		c.Storage.DatabasePath = e.DatabasePath
	}
	if e.Port != "" {
		c.Server.Port = e.Port
	}
	// The encryption secret never comes from the config file.
	c.Storage.EncryptionSecret = e.EncryptionSecret
}

// applyChannelEnvironment adds or replaces pairings for every logical name
// listed in TGRELAY_CHANNELS.
func applyChannelEnvironment(c *models.Config, names []string) error {
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}

		var ch channelEnv
		prefix := strings.ToUpper(name) + "_"
		if err := env.ParseWithOptions(&ch, env.Options{Prefix: prefix}); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid environment for channel %s: %v", name, err)}
		}
		if ch.SourceID == "" || ch.DestID == "" {
			return models.ConfigError{Message: fmt.Sprintf(
				"incomplete channel pairing %s: set both %sCHANNEL and %sEN_CHANNEL_ID", name, prefix, prefix)}
		}

		pairing := models.ChannelConfig{
			LogicalName: strings.ToLower(name),
			SourceID:    ch.SourceID,
			SourceName:  ch.SourceName,
			DestID:      ch.DestID,
			DestName:    ch.DestName,
		}
		replaced := false
		for i := range c.Channels {
			if strings.EqualFold(c.Channels[i].LogicalName, name) {
				c.Channels[i] = pairing
				replaced = true
				break
			}
		}
		if !replaced {
			c.Channels = append(c.Channels, pairing)
		}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Telegram.BotAPIURL == "" {
		c.Telegram.BotAPIURL = constants.DefaultBotAPIURL
	}
	if c.Telegram.TimeoutSec <= 0 {
		c.Telegram.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Telegram.SessionPath == "" {
		c.Telegram.SessionPath = constants.DefaultSessionPath
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = llm.ProviderAnthropic
	}
	if c.LLM.TemplatePollSec <= 0 {
		c.LLM.TemplatePollSec = constants.DefaultTemplatePollSec
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverFile
	}
	if c.Storage.EventsPath == "" {
		c.Storage.EventsPath = constants.DefaultEventsPath
	}
	if c.Storage.CachePath == "" {
		c.Storage.CachePath = constants.DefaultCachePath
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = constants.DefaultDatabasePath
	}

	if c.Delivery.RateLimitPerMinute == 0 {
		c.Delivery.RateLimitPerMinute = constants.DefaultRateLimitPerMinute
	}
	if c.Delivery.TimeoutSec <= 0 {
		c.Delivery.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}

	if c.Relay.MaxFileSizeBytes <= 0 {
		c.Relay.MaxFileSizeBytes = constants.MaxFileSizeBytes
	}
	if c.Relay.CacheLimit <= 0 {
		c.Relay.CacheLimit = constants.DefaultCacheLimit
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultTranslationAttempts
	}
	if c.Retry.DelayMs <= 0 {
		c.Retry.DelayMs = constants.DefaultRetryDelayMs
	}

	if c.Server.Port == "" {
		c.Server.Port = fmt.Sprintf("%d", constants.DefaultServerPort)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	for i := range c.Channels {
		ch := &c.Channels[i]
		base := strings.ToLower(ch.LogicalName)
		if base == "" {
			base = ch.SourceID
		}
		if ch.SourceName == "" {
			ch.SourceName = base
		}
		if ch.DestName == "" {
			ch.DestName = base + "_en"
		}
	}
}

func validate(c *models.Config) error {
	if c.Telegram.BotToken == "" {
		return ErrMissingBotToken
	}
	if len(c.Channels) == 0 {
		return ErrMissingChannels
	}

	for i := range c.Channels {
		ch := &c.Channels[i]
		src, err := format.FormatChannelID(ch.SourceID)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("channel %d (%s): source: %v", i, ch.LogicalName, err)}
		}
		dst, err := format.FormatChannelID(ch.DestID)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("channel %d (%s): destination: %v", i, ch.LogicalName, err)}
		}
		ch.SourceID, ch.DestID = src, dst
	}

	switch c.LLM.Provider {
	case llm.ProviderAnthropic, llm.ProviderGemini:
	default:
		return models.ConfigError{Message: fmt.Sprintf("unsupported llm provider: %s", c.LLM.Provider)}
	}

	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
	default:
		return models.ConfigError{Message: fmt.Sprintf("unsupported storage driver: %s", c.Storage.Driver)}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing sample_rate must be between 0 and 1"}
	}

	if err := security.ValidateFilePaths(map[string]string{
		"storage.events_path":      c.Storage.EventsPath,
		"storage.cache_path":       c.Storage.CachePath,
		"storage.database_path":    c.Storage.DatabasePath,
		"telegram.session_path":    c.Telegram.SessionPath,
		"llm.prompt_template_path": c.LLM.PromptTemplatePath,
	}); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config, isProduction bool) error {
	if c.Storage.EncryptMessages && len(c.Storage.EncryptionSecret) < 32 {
		return models.ConfigError{Message: "message encryption requires TGRELAY_ENCRYPTION_SECRET of at least 32 characters"}
	}

	if isProduction {
		if c.LLM.APIKey == "" {
			return models.ConfigError{Message: "LLM API key is required in production (set ANTHROPIC_API_KEY or GEMINI_API_KEY)"}
		}
		if strings.EqualFold(c.LogLevel, "debug") || strings.EqualFold(c.LogLevel, "trace") {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.LLM.APIKey == "" {
		fmt.Fprintf(os.Stderr, "WARNING: LLM API key not set. Translations will fail until ANTHROPIC_API_KEY or GEMINI_API_KEY is provided.\n")
	}
	return nil
}
