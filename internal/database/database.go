// Package database is the sqlite-backed event store. It is an alternative to
// the JSON file log for deployments that want indexed reverse lookups.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/metrics"
	"tgrelay/internal/migrations"
	"tgrelay/internal/models"
	"tgrelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Options configures an EventStore.
type Options struct {
	EncryptMessages  bool
	EncryptionSecret string
}

// EventStore persists message events in sqlite and implements events.Log.
type EventStore struct {
	db        *sql.DB
	encryptor *encryptor
}

// Open creates or opens the database at dbPath and applies pending
// migrations.
func Open(dbPath string, opts Options) (*EventStore, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, apperrors.NewDatabaseError("create directory", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, apperrors.NewDatabaseError("create file", err)
	}
	if err := file.Close(); err != nil {
		return nil, apperrors.NewDatabaseError("close file", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, apperrors.NewDatabaseError("open", err)
	}
	// sqlite allows a single writer; one connection keeps appends ordered.
	db.SetMaxOpenConns(1)

	store, err := newStore(db, opts)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (close error: %v)", err, closeErr)
		}
		return nil, err
	}
	return store, nil
}

func newStore(db *sql.DB, opts Options) (*EventStore, error) {
	if err := db.Ping(); err != nil {
		return nil, apperrors.NewDatabaseError("ping", err)
	}
	if err := migrations.Up(db); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to migrate event store")
	}
	enc, err := newEncryptor(opts.EncryptMessages, opts.EncryptionSecret)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "failed to initialize encryptor")
	}
	return &EventStore{db: db, encryptor: enc}, nil
}

// Close closes the underlying database.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for migrations tooling.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

// Append implements events.Log.
func (s *EventStore) Append(ctx context.Context, ev models.MessageEvent) error {
	sourceMessage, err := s.encryptor.Encrypt(ev.SourceMessage)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encrypt source message")
	}
	translatedMessage, err := s.encryptor.Encrypt(ev.TranslatedMessage)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to encrypt translated message")
	}

	err = retryableDBOperation(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, insertEventQuery,
			ev.Timestamp,
			ev.DerivedEventType(),
			ev.SourceChannelID,
			ev.DestChannelID,
			ev.SourceChannelName,
			ev.DestChannelName,
			ev.MessageID,
			ev.MediaType,
			ev.FileSizeBytes,
			ev.OriginalSize,
			ev.TranslatedSize,
			ev.TranslationTime,
			ev.RetryCount,
			ev.PostingSuccess,
			ev.APIErrorCode,
			ev.ExceptionMessage,
			ev.EditTimestamp,
			ev.PreviousSize,
			ev.NewSize,
			sourceMessage,
			translatedMessage,
			ev.DestMessageID,
		)
		return err
	}, "append event")
	if err != nil {
		return apperrors.NewDatabaseError("append event", err)
	}

	metrics.IncrementCounter("event_store_appends", nil, "Events appended to the sqlite store")
	return nil
}

// DestinationMessageID implements events.Log.
func (s *EventStore) DestinationMessageID(ctx context.Context, sourceChannelID string, sourceMessageID int) (string, bool, error) {
	var dest string
	err := s.db.QueryRowContext(ctx, selectLatestDestinationQuery, sourceChannelID, sourceMessageID).Scan(&dest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.NewDatabaseError("lookup destination", err)
	}
	return dest, true, nil
}

// Events implements events.Log.
func (s *EventStore) Events(ctx context.Context) ([]models.MessageEvent, error) {
	rows, err := s.db.QueryContext(ctx, selectEventsQuery)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list events", err)
	}
	defer rows.Close()

	out := []models.MessageEvent{}
	for rows.Next() {
		var ev models.MessageEvent
		if err := rows.Scan(
			&ev.Timestamp,
			&ev.EventType,
			&ev.SourceChannelID,
			&ev.DestChannelID,
			&ev.SourceChannelName,
			&ev.DestChannelName,
			&ev.MessageID,
			&ev.MediaType,
			&ev.FileSizeBytes,
			&ev.OriginalSize,
			&ev.TranslatedSize,
			&ev.TranslationTime,
			&ev.RetryCount,
			&ev.PostingSuccess,
			&ev.APIErrorCode,
			&ev.ExceptionMessage,
			&ev.EditTimestamp,
			&ev.PreviousSize,
			&ev.NewSize,
			&ev.SourceMessage,
			&ev.TranslatedMessage,
			&ev.DestMessageID,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan event", err)
		}
		if ev.SourceMessage, err = s.encryptor.Decrypt(ev.SourceMessage); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to decrypt source message")
		}
		if ev.TranslatedMessage, err = s.encryptor.Decrypt(ev.TranslatedMessage); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to decrypt translated message")
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate events", err)
	}
	return out, nil
}

// Count returns the number of stored events.
func (s *EventStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countEventsQuery).Scan(&n); err != nil {
		return 0, apperrors.NewDatabaseError("count events", err)
	}
	return n, nil
}
