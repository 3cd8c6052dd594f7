package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/metrics"
	"tgrelay/internal/models"

	"github.com/sirupsen/logrus"
)

type appendRequest struct {
	event models.MessageEvent
	reply chan error
}

// FileLog keeps the event log as one JSON document. A single writer
// goroutine owns all writes; each append re-reads the file so records added
// by other processes survive, then atomically replaces it.
type FileLog struct {
	path   string
	logger *logrus.Logger

	requests  chan appendRequest
	done      chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// NewFileLog starts the writer goroutine for the log at path. The parent
// directory is created when missing.
func NewFileLog(path string, logger *logrus.Logger) (*FileLog, error) {
	if path == "" {
		return nil, fmt.Errorf("event log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to create event log directory")
	}

	l := &FileLog{
		path:     path,
		logger:   logger,
		requests: make(chan appendRequest),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go l.writer()
	return l, nil
}

// Path returns the log file location.
func (l *FileLog) Path() string {
	return l.path
}

// Close stops the writer after pending appends finish.
func (l *FileLog) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		<-l.done
	})
	return nil
}

func (l *FileLog) writer() {
	defer close(l.done)
	for {
		select {
		case req := <-l.requests:
			err := l.appendNow(req.event)
			if err != nil {
				l.logger.WithError(err).WithField("path", l.path).Error("Failed to append event")
			}
			req.reply <- err
		case <-l.closed:
			return
		}
	}
}

// Append implements Log.
func (l *FileLog) Append(ctx context.Context, ev models.MessageEvent) error {
	req := appendRequest{event: ev, reply: make(chan error, 1)}
	select {
	case l.requests <- req:
	case <-l.closed:
		return apperrors.New(apperrors.ErrCodeStorageIO, "event log is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	// The write has been handed over; wait for it even if ctx ends so the
	// caller learns the outcome.
	return <-req.reply
}

func (l *FileLog) appendNow(ev models.MessageEvent) error {
	doc, err := l.load()
	if err != nil {
		return err
	}
	doc.Messages = append(doc.Messages, ev)
	if err := WriteJSONAtomic(l.path, doc); err != nil {
		return err
	}
	metrics.SetGauge("event_log_size", float64(len(doc.Messages)), nil, "Events in the durable log")
	return nil
}

// load reads the whole document. A missing file is an empty log; a file that
// exists but does not parse is LOG_CORRUPT.
func (l *FileLog) load() (models.EventLogDocument, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.EventLogDocument{Messages: []models.MessageEvent{}}, nil
	}
	if err != nil {
		return models.EventLogDocument{}, apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to read event log").
			WithContext("path", l.path)
	}

	var doc models.EventLogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.EventLogDocument{}, apperrors.NewLogCorruptError(l.path, err)
	}
	if doc.Messages == nil {
		doc.Messages = []models.MessageEvent{}
	}
	return doc, nil
}

// Events implements Log.
func (l *FileLog) Events(_ context.Context) ([]models.MessageEvent, error) {
	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

// DestinationMessageID implements Log.
func (l *FileLog) DestinationMessageID(_ context.Context, sourceChannelID string, sourceMessageID int) (string, bool, error) {
	doc, err := l.load()
	if err != nil {
		return "", false, err
	}
	id, ok := LatestDestination(doc.Messages, sourceChannelID, sourceMessageID)
	return id, ok, nil
}

// WriteJSONAtomic writes v next to path and renames it into place so readers
// never observe a partial document.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encode document")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStorageIO, "failed to replace document").
			WithContext("path", path)
	}
	return nil
}
