package constants

// Server defaults
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Storage defaults, relative to the working directory
const (
	DefaultEventsPath   = "cache/events.json"
	DefaultCachePath    = "cache/channel_cache.json"
	DefaultDatabasePath = "cache/tgrelay.db"
	DefaultSessionPath  = "cache/session.json"
	DefaultCacheLimit   = 9
)

// Telegram defaults
const (
	DefaultBotAPIURL          = "https://api.telegram.org"
	DefaultHTTPTimeoutSec     = 30
	DefaultMetadataTimeoutSec = 10
	MaxFileSizeBytes          = 20 * 1024 * 1024
	MaxMessageLength          = 4096
	MaxCaptionLength          = 1024
	DefaultRateLimitPerMinute = 20
)

// Translation defaults
const (
	DefaultTranslationAttempts = 3
	DefaultRetryDelayMs        = 2000
	DefaultLLMTimeoutSec       = 60
	DefaultTemplatePollSec     = 5
)

// Database retry
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 100
	DefaultMaxBackoffMs          = 2000
)
