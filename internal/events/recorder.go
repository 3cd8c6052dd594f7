package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tgrelay/internal/models"
)

// Recorder accumulates one event and appends it to a Log on Finalize.
// All fields start at their typed zero values so partially filled records
// never contain gaps.
type Recorder struct {
	mu    sync.Mutex
	event models.MessageEvent
	log   Log
	now   func() time.Time
}

// NewRecorder creates a recorder writing to log.
func NewRecorder(log Log) *Recorder {
	return &Recorder{log: log, now: time.Now}
}

// Set assigns one field by its log name. Unknown fields, the derived
// event_type field, and values of the wrong type are rejected.
func (r *Recorder) Set(field string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return setField(&r.event, field, value)
}

// Get returns the current values of the named fields.
func (r *Recorder) Get(fields ...string) (map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v, err := getField(&r.event, f)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// GetString is Get for a single string field.
func (r *Recorder) GetString(field string) (string, error) {
	vals, err := r.Get(field)
	if err != nil {
		return "", err
	}
	s, ok := vals[field].(string)
	if !ok {
		return "", fmt.Errorf("event field %s is not a string", field)
	}
	return s, nil
}

// Apply mutates the in-progress event with typed access.
func (r *Recorder) Apply(fn func(ev *models.MessageEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.event)
	r.event.EventType = ""
}

// Snapshot returns a copy of the in-progress event.
func (r *Recorder) Snapshot() models.MessageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.event
}

// Finalize stamps the timestamp when unset, derives the event type, appends
// the record to the log and resets the recorder for reuse. The recorder is
// reset even when the append fails.
func (r *Recorder) Finalize(ctx context.Context) (models.MessageEvent, error) {
	r.mu.Lock()
	ev := r.event
	r.event = models.MessageEvent{}
	r.mu.Unlock()

	if ev.Timestamp == "" {
		ev.Timestamp = r.now().UTC().Format(time.RFC3339)
	}
	ev.EventType = ev.DerivedEventType()
	if !ev.PostingSuccess {
		ev.DestMessageID = ""
	}

	if err := r.log.Append(ctx, ev); err != nil {
		return ev, err
	}
	return ev, nil
}

func setField(ev *models.MessageEvent, field string, value interface{}) error {
	switch field {
	case models.FieldEventType:
		return fmt.Errorf("event field %s is derived and cannot be set", field)
	case models.FieldTimestamp:
		return assignString(&ev.Timestamp, field, value)
	case models.FieldSourceChannelID:
		return assignString(&ev.SourceChannelID, field, value)
	case models.FieldDestChannelID:
		return assignString(&ev.DestChannelID, field, value)
	case models.FieldSourceChannelName:
		return assignString(&ev.SourceChannelName, field, value)
	case models.FieldDestChannelName:
		return assignString(&ev.DestChannelName, field, value)
	case models.FieldMessageID:
		return assignInt(&ev.MessageID, field, value)
	case models.FieldMediaType:
		return assignString(&ev.MediaType, field, value)
	case models.FieldFileSizeBytes:
		switch v := value.(type) {
		case int64:
			ev.FileSizeBytes = v
		case int:
			ev.FileSizeBytes = int64(v)
		default:
			return typeError(field, "int64", value)
		}
		return nil
	case models.FieldOriginalSize:
		return assignInt(&ev.OriginalSize, field, value)
	case models.FieldTranslatedSize:
		return assignInt(&ev.TranslatedSize, field, value)
	case models.FieldTranslationTime:
		switch v := value.(type) {
		case float64:
			ev.TranslationTime = v
		case time.Duration:
			ev.TranslationTime = v.Seconds()
		default:
			return typeError(field, "float64", value)
		}
		return nil
	case models.FieldRetryCount:
		return assignInt(&ev.RetryCount, field, value)
	case models.FieldPostingSuccess:
		b, ok := value.(bool)
		if !ok {
			return typeError(field, "bool", value)
		}
		ev.PostingSuccess = b
		return nil
	case models.FieldAPIErrorCode:
		return assignString(&ev.APIErrorCode, field, value)
	case models.FieldExceptionMessage:
		return assignString(&ev.ExceptionMessage, field, value)
	case models.FieldEditTimestamp:
		return assignString(&ev.EditTimestamp, field, value)
	case models.FieldPreviousSize:
		return assignInt(&ev.PreviousSize, field, value)
	case models.FieldNewSize:
		return assignInt(&ev.NewSize, field, value)
	case models.FieldSourceMessage:
		return assignString(&ev.SourceMessage, field, value)
	case models.FieldTranslatedMessage:
		return assignString(&ev.TranslatedMessage, field, value)
	case models.FieldDestMessageID:
		return assignString(&ev.DestMessageID, field, value)
	}
	return fmt.Errorf("unknown event field: %s", field)
}

func getField(ev *models.MessageEvent, field string) (interface{}, error) {
	switch field {
	case models.FieldTimestamp:
		return ev.Timestamp, nil
	case models.FieldEventType:
		return ev.DerivedEventType(), nil
	case models.FieldSourceChannelID:
		return ev.SourceChannelID, nil
	case models.FieldDestChannelID:
		return ev.DestChannelID, nil
	case models.FieldSourceChannelName:
		return ev.SourceChannelName, nil
	case models.FieldDestChannelName:
		return ev.DestChannelName, nil
	case models.FieldMessageID:
		return ev.MessageID, nil
	case models.FieldMediaType:
		return ev.MediaType, nil
	case models.FieldFileSizeBytes:
		return ev.FileSizeBytes, nil
	case models.FieldOriginalSize:
		return ev.OriginalSize, nil
	case models.FieldTranslatedSize:
		return ev.TranslatedSize, nil
	case models.FieldTranslationTime:
		return ev.TranslationTime, nil
	case models.FieldRetryCount:
		return ev.RetryCount, nil
	case models.FieldPostingSuccess:
		return ev.PostingSuccess, nil
	case models.FieldAPIErrorCode:
		return ev.APIErrorCode, nil
	case models.FieldExceptionMessage:
		return ev.ExceptionMessage, nil
	case models.FieldEditTimestamp:
		return ev.EditTimestamp, nil
	case models.FieldPreviousSize:
		return ev.PreviousSize, nil
	case models.FieldNewSize:
		return ev.NewSize, nil
	case models.FieldSourceMessage:
		return ev.SourceMessage, nil
	case models.FieldTranslatedMessage:
		return ev.TranslatedMessage, nil
	case models.FieldDestMessageID:
		return ev.DestMessageID, nil
	}
	return nil, fmt.Errorf("unknown event field: %s", field)
}

func assignString(dst *string, field string, value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return typeError(field, "string", value)
	}
	*dst = s
	return nil
}

func assignInt(dst *int, field string, value interface{}) error {
	switch v := value.(type) {
	case int:
		*dst = v
	case int32:
		*dst = int(v)
	case int64:
		*dst = int(v)
	default:
		return typeError(field, "int", value)
	}
	return nil
}

func typeError(field, want string, value interface{}) error {
	return fmt.Errorf("event field %s expects %s, got %T", field, want, value)
}
