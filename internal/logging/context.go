package logging

import (
	"context"

	"tgrelay/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the context key for the verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx for verbose logging.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeContent hides message bodies unless verbose logging is on.
func SanitizeContent(ctx context.Context, content string) string {
	if content == "" || IsVerboseLogging(ctx) {
		return content
	}
	return "[hidden]"
}

// ChannelField returns the channel id as logged: verbatim when verbose, masked otherwise.
func ChannelField(ctx context.Context, channelID string) string {
	if IsVerboseLogging(ctx) {
		return channelID
	}
	return privacy.MaskChatID(channelID)
}

// MessageFields builds the standard fields for a relayed message.
func MessageFields(ctx context.Context, channelID string, messageID int) logrus.Fields {
	return logrus.Fields{
		LogFieldChannelID: ChannelField(ctx, channelID),
		LogFieldMessageID: messageID,
	}
}
