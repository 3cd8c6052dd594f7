package models

// Config holds the application configuration
type Config struct {
	Telegram TelegramConfig  `json:"telegram" yaml:"telegram"`
	LLM      LLMConfig       `json:"llm" yaml:"llm"`
	Channels []ChannelConfig `json:"channels" yaml:"channels"`
	Storage  StorageConfig   `json:"storage" yaml:"storage"`
	Delivery DeliveryConfig  `json:"delivery" yaml:"delivery"`
	Relay    RelayConfig     `json:"relay" yaml:"relay"`
	Retry    RetryConfig     `json:"retry" yaml:"retry"`
	Server   ServerConfig    `json:"server" yaml:"server"`
	Tracing  TracingConfig   `json:"tracing" yaml:"tracing"`
	LogLevel string          `json:"log_level" yaml:"log_level"`
}

// TelegramConfig holds credentials for the listener and the Bot API clients
type TelegramConfig struct {
	BotToken       string `json:"bot_token" yaml:"bot_token"`
	APIID          int    `json:"api_id" yaml:"api_id"`
	APIHash        string `json:"api_hash" yaml:"api_hash"`
	SessionPath    string `json:"session_path" yaml:"session_path"`
	BotAPIURL      string `json:"bot_api_url" yaml:"bot_api_url"`
	TimeoutSec     int    `json:"timeout_sec" yaml:"timeout_sec"`
	ValidateOnBoot bool   `json:"validate_on_boot" yaml:"validate_on_boot"`
}

// LLMConfig selects and configures the translation provider
type LLMConfig struct {
	Provider           string  `json:"provider" yaml:"provider"`
	APIKey             string  `json:"api_key" yaml:"api_key"`
	BaseURL            string  `json:"base_url" yaml:"base_url"`
	Model              string  `json:"model" yaml:"model"`
	MaxTokens          int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature        float64 `json:"temperature" yaml:"temperature"`
	PromptTemplatePath string  `json:"prompt_template_path" yaml:"prompt_template_path"`
	TemplatePollSec    int     `json:"template_poll_sec" yaml:"template_poll_sec"`
}

// ChannelConfig is one source to destination pairing as configured
type ChannelConfig struct {
	LogicalName string `json:"logical_name" yaml:"logical_name"`
	SourceID    string `json:"source_id" yaml:"source_id"`
	SourceName  string `json:"source_name" yaml:"source_name"`
	DestID      string `json:"dest_id" yaml:"dest_id"`
	DestName    string `json:"dest_name" yaml:"dest_name"`
}

// StorageConfig selects where the event log and channel cache live
type StorageConfig struct {
	Driver          string `json:"driver" yaml:"driver"`
	EventsPath      string `json:"events_path" yaml:"events_path"`
	CachePath       string `json:"cache_path" yaml:"cache_path"`
	DatabasePath    string `json:"database_path" yaml:"database_path"`
	EncryptMessages bool   `json:"encrypt_messages" yaml:"encrypt_messages"`
	// EncryptionSecret is read from the environment only.
	EncryptionSecret string `json:"-" yaml:"-"`
}

// DeliveryConfig holds destination-side limits
type DeliveryConfig struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	TimeoutSec         int `json:"timeout_sec" yaml:"timeout_sec"`
}

// RelayConfig tunes the per-message pipeline
type RelayConfig struct {
	MaxConcurrent    int   `json:"max_concurrent" yaml:"max_concurrent"`
	MaxFileSizeBytes int64 `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	CacheLimit       int   `json:"cache_limit" yaml:"cache_limit"`
}

// RetryConfig holds the translation retry policy
type RetryConfig struct {
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	DelayMs     int `json:"delay_ms" yaml:"delay_ms"`
}

// ServerConfig holds the ops HTTP server settings
type ServerConfig struct {
	Port string `json:"port" yaml:"port"`
}

// TracingConfig mirrors the OpenTelemetry settings exposed in the config file
type TracingConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout    bool    `json:"use_stdout" yaml:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
