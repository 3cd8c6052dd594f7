package models

// Event types.
const (
	EventCreate = "create"
	EventEdit   = "edit"
)

// Event field names as they appear in the durable log.
const (
	FieldTimestamp         = "timestamp"
	FieldEventType         = "event_type"
	FieldSourceChannelID   = "source_channel_id"
	FieldDestChannelID     = "dest_channel_id"
	FieldSourceChannelName = "source_channel_name"
	FieldDestChannelName   = "dest_channel_name"
	FieldMessageID         = "message_id"
	FieldMediaType         = "media_type"
	FieldFileSizeBytes     = "file_size_bytes"
	FieldOriginalSize      = "original_size"
	FieldTranslatedSize    = "translated_size"
	FieldTranslationTime   = "translation_time"
	FieldRetryCount        = "retry_count"
	FieldPostingSuccess    = "posting_success"
	FieldAPIErrorCode      = "api_error_code"
	FieldExceptionMessage  = "exception_message"
	FieldEditTimestamp     = "edit_timestamp"
	FieldPreviousSize      = "previous_size"
	FieldNewSize           = "new_size"
	FieldSourceMessage     = "source_message"
	FieldTranslatedMessage = "translated_message"
	FieldDestMessageID     = "dest_message_id"
)

// MessageEvent is one durable record of a processed create or edit.
// Every field is always serialized so readers never see missing keys.
type MessageEvent struct {
	Timestamp         string  `json:"timestamp"`
	EventType         string  `json:"event_type"`
	SourceChannelID   string  `json:"source_channel_id"`
	DestChannelID     string  `json:"dest_channel_id"`
	SourceChannelName string  `json:"source_channel_name"`
	DestChannelName   string  `json:"dest_channel_name"`
	MessageID         int     `json:"message_id"`
	MediaType         string  `json:"media_type"`
	FileSizeBytes     int64   `json:"file_size_bytes"`
	OriginalSize      int     `json:"original_size"`
	TranslatedSize    int     `json:"translated_size"`
	TranslationTime   float64 `json:"translation_time"`
	RetryCount        int     `json:"retry_count"`
	PostingSuccess    bool    `json:"posting_success"`
	APIErrorCode      string  `json:"api_error_code"`
	ExceptionMessage  string  `json:"exception_message"`
	EditTimestamp     string  `json:"edit_timestamp"`
	PreviousSize      int     `json:"previous_size"`
	NewSize           int     `json:"new_size"`
	SourceMessage     string  `json:"source_message"`
	TranslatedMessage string  `json:"translated_message"`
	DestMessageID     string  `json:"dest_message_id"`
}

// DerivedEventType returns "edit" when an edit timestamp is present, else "create".
func (e MessageEvent) DerivedEventType() string {
	if e.EditTimestamp != "" {
		return EventEdit
	}
	return EventCreate
}

// EventLogDocument is the on-disk envelope of the event log.
type EventLogDocument struct {
	Messages []MessageEvent `json:"messages"`
}

// CachedMessage is one snapshot in a channel's recent-message ring.
type CachedMessage struct {
	MessageID    int    `json:"message_id"`
	HTML         string `json:"html"`
	Date         string `json:"date"`
	ChatTitle    string `json:"chat_title"`
	ChatUsername string `json:"chat_username"`
}
