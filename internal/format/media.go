package format

import (
	"fmt"
	"strings"

	"tgrelay/internal/models"
)

// MaxFileSize is the largest attachment the Bot API will serve (20 MiB).
const MaxFileSize int64 = 20 * 1024 * 1024

// MediaInfo is the classification of an inbound attachment.
type MediaInfo struct {
	Type     string
	FileID   string
	FileSize int64
}

// ClassifyMedia labels the message's attachment. FileID is left empty when
// the attachment exceeds maxSize so the gateway never requests it.
func ClassifyMedia(msg models.InboundMessage, maxSize int64) MediaInfo {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	att := msg.Attachment
	if att == nil {
		return MediaInfo{Type: models.MediaText}
	}

	info := MediaInfo{Type: att.Type, FileSize: att.FileSize}
	switch att.Type {
	case models.MediaPhoto, models.MediaVideo, models.MediaDoc:
	default:
		info.Type = models.MediaText
		return info
	}
	if att.FileSize <= maxSize {
		info.FileID = att.FileID
	}
	return info
}

// FormatChannelID normalizes a configured channel reference to the form the
// Bot API accepts: "@username" or "-100<digits>".
func FormatChannelID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("empty channel id")
	}
	if strings.HasPrefix(id, "@") {
		if len(id) == 1 {
			return "", fmt.Errorf("invalid channel id format: %s", raw)
		}
		return id, nil
	}
	if strings.HasPrefix(id, "-100") && isDigits(id[4:]) {
		return id, nil
	}
	if stripped := strings.ReplaceAll(id, "-", ""); isDigits(stripped) {
		return "-100" + stripped, nil
	}
	if isUsername(id) {
		return "@" + id, nil
	}
	return "", fmt.Errorf("invalid channel id format: %s", raw)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isUsername(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return s != ""
}
