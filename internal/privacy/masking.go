package privacy

import (
	"strings"
)

// MaskChatID masks a channel id or username, keeping its prefix and last 4 characters.
// Example: "-1001234567890" -> "-100******7890", "@channel" -> "@***nnel"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(chatID, "-100"):
		return "-100" + maskString(chatID[4:], 4)
	case strings.HasPrefix(chatID, "@"):
		return "@" + maskString(chatID[1:], 4)
	case strings.HasPrefix(chatID, "-"):
		return "-" + maskString(chatID[1:], 4)
	}
	return maskString(chatID, 4)
}

// MaskBotToken hides the secret half of a Bot API token, keeping the bot id.
// Example: "123456:ABC-DEF" -> "123456:***"
func MaskBotToken(token string) string {
	if token == "" {
		return ""
	}
	if idx := strings.Index(token, ":"); idx > 0 {
		return token[:idx] + ":***"
	}
	return strings.Repeat("*", len(token))
}

// MaskAPIKey keeps only the last 4 characters of a provider API key.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	return maskString(key, 4)
}

// MaskURLToken removes a bot token embedded in a Bot API URL path.
// Example: "https://api.telegram.org/file/bot123:ABC/photos/x.jpg" -> ".../file/bot123:***/photos/x.jpg"
func MaskURLToken(rawURL, token string) string {
	if token == "" || rawURL == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, token, MaskBotToken(token))
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}
		switch k {
		case "chat_id", "channel_id", "dest_channel_id", "source_channel_id":
			masked[k] = MaskChatID(s)
		case "token", "bot_token":
			masked[k] = MaskBotToken(s)
		case "api_key", "anthropic_api_key", "gemini_api_key":
			masked[k] = MaskAPIKey(s)
		default:
			masked[k] = v
		}
	}
	return masked
}
