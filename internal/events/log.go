package events

import (
	"context"

	"tgrelay/internal/models"
)

// Log is the durable, append-only event log.
type Log interface {
	// Append durably adds ev to the end of the log.
	Append(ctx context.Context, ev models.MessageEvent) error
	// DestinationMessageID scans newest-first for the latest event with a
	// destination message id for the given source message. A miss returns
	// ("", false, nil).
	DestinationMessageID(ctx context.Context, sourceChannelID string, sourceMessageID int) (string, bool, error)
	// Events returns the whole log in append order.
	Events(ctx context.Context) ([]models.MessageEvent, error)
}

// LatestDestination implements the newest-first reverse lookup over an
// in-memory slice of events.
func LatestDestination(events []models.MessageEvent, sourceChannelID string, sourceMessageID int) (string, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.SourceChannelID == sourceChannelID && ev.MessageID == sourceMessageID && ev.DestMessageID != "" {
			return ev.DestMessageID, true
		}
	}
	return "", false
}
