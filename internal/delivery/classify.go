package delivery

import (
	"errors"
	"strings"

	"tgrelay/pkg/botapi"
	"tgrelay/pkg/circuitbreaker"
)

// Delivery error codes shown to operators.
const (
	CodeUnknown           = "POST-ERR-000"
	CodeRateLimited       = "POST-ERR-001"
	CodeNotFound          = "POST-ERR-002"
	CodeForbidden         = "POST-ERR-003"
	CodeEditNotFound      = "POST-ERR-004"
	CodeNotModified       = "POST-ERR-005"
	CodeBadRequest        = "POST-ERR-006"
	CodeEditTargetMissing = "EDIT-ERR-001"
)

// Severity levels for ErrorDetails.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ErrorDetails is the operator-facing description of a failed delivery.
type ErrorDetails struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Severity    string   `json:"severity"`
	Suggestions []string `json:"suggestions"`
}

// Classify maps a delivery failure onto a known category. The more
// specific descriptions are tested first: "message to edit not found"
// would otherwise be reported as a plain not-found.
func Classify(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Code: CodeUnknown, Message: "Unknown error occurred", Severity: SeverityError, Suggestions: []string{}}
	}

	raw := err.Error()
	status := 0
	var apiErr *botapi.APIError
	if errors.As(err, &apiErr) {
		raw = apiErr.Description
		status = apiErr.StatusCode
	}
	desc := strings.ToLower(raw)

	switch {
	case status == 429 || strings.Contains(desc, "flood") || strings.Contains(desc, "too many requests"):
		return ErrorDetails{
			Code:     CodeRateLimited,
			Message:  "Rate limit exceeded",
			Details:  "The channel has temporarily restricted message posting",
			Severity: SeverityWarning,
			Suggestions: []string{
				"Wait a few minutes before retrying",
				"Consider spacing out your posts",
			},
		}
	case strings.Contains(desc, "message to edit not found"):
		return ErrorDetails{
			Code:     CodeEditNotFound,
			Message:  "Message to edit not found",
			Severity: SeverityError,
			Suggestions: []string{
				"Verify the message still exists",
				"Check if the message was already deleted",
				"Confirm the message ID is correct",
			},
		}
	case strings.Contains(desc, "message is not modified"):
		return ErrorDetails{
			Code:     CodeNotModified,
			Message:  "No changes in message content",
			Severity: SeverityWarning,
			Suggestions: []string{
				"Make sure the content is different from the existing message",
				"Try editing again with different content",
			},
		}
	case strings.Contains(desc, "not found"):
		return ErrorDetails{
			Code:     CodeNotFound,
			Message:  "Channel or message not found",
			Severity: SeverityError,
			Suggestions: []string{
				"Verify the channel exists and is accessible",
				"Check if you have posting permissions",
				"Ensure the message ID is valid",
			},
		}
	case status == 403 || strings.Contains(desc, "permission") || strings.Contains(desc, "forbidden") || strings.Contains(desc, "not enough rights"):
		return ErrorDetails{
			Code:     CodeForbidden,
			Message:  "Insufficient permissions",
			Severity: SeverityError,
			Suggestions: []string{
				"Verify bot admin status in the channel",
				"Check channel posting permissions",
			},
		}
	case strings.Contains(desc, "bad request"):
		return ErrorDetails{
			Code:     CodeBadRequest,
			Message:  "Invalid request format",
			Details:  raw,
			Severity: SeverityError,
			Suggestions: []string{
				"Check message formatting and length",
				"Ensure all required parameters are provided",
				"Verify HTML formatting is valid",
			},
		}
	}

	details := ErrorDetails{Code: CodeUnknown, Message: raw, Severity: SeverityError, Suggestions: []string{}}
	if circuitbreaker.IsCircuitBreakerError(err) {
		details.Suggestions = []string{"Telegram is failing repeatedly, wait for the circuit breaker to recover"}
	}
	return details
}
