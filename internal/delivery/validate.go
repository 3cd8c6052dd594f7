package delivery

import (
	"html"
	"strings"
	"unicode/utf8"

	"tgrelay/internal/constants"
	apperrors "tgrelay/internal/errors"
)

// Reasons shown to operators when content is refused before sending.
const (
	ReasonEmpty       = "Message content is empty"
	ReasonNoVisible   = "Message contains no visible text"
	ReasonTooLong     = "Message exceeds Telegram's 4096 character limit"
	ReasonCaptionLong = "Caption exceeds Telegram's 1024 character limit"
)

// Validate checks a message body against Telegram's limits.
func Validate(text string) error {
	return validate(text, constants.MaxMessageLength, ReasonTooLong)
}

// ValidateCaption checks a photo caption.
func ValidateCaption(caption string) error {
	return validate(caption, constants.MaxCaptionLength, ReasonCaptionLong)
}

func validate(text string, limit int, tooLong string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.NewValidationError("text", "", ReasonEmpty)
	}
	if strings.TrimSpace(html.UnescapeString(anyTagPattern.ReplaceAllString(text, ""))) == "" {
		return apperrors.NewValidationError("text", "", ReasonNoVisible)
	}
	if utf8.RuneCountInString(text) > limit {
		return apperrors.NewValidationError("text", "", tooLong)
	}
	return nil
}

// validateVisible applies the empty and visible-text checks to a message
// that Send will split, so its total length is not limited.
func validateVisible(text string) error {
	return validate(text, utf8.RuneCountInString(text), ReasonTooLong)
}
