package relay

import (
	"context"

	"tgrelay/internal/logging"
	"tgrelay/internal/router"
	"tgrelay/pkg/botapi"

	"github.com/sirupsen/logrus"
)

// ChatGetter is the slice of the Bot API needed to check destinations.
type ChatGetter interface {
	GetChat(ctx context.Context, chatID string) (*botapi.Chat, error)
}

// ValidateDestinations asks the Bot API about every destination channel and
// logs the ones the bot cannot see. It never fails startup; it returns the
// ids that could not be resolved.
func ValidateDestinations(ctx context.Context, chats ChatGetter, r *router.ChannelRouter, logger *logrus.Logger) []string {
	var unreachable []string
	for _, dest := range r.DestinationIDs() {
		fields := logrus.Fields{logging.LogFieldDestChannelID: logging.ChannelField(ctx, dest)}
		if name, err := r.NameFor(dest); err == nil {
			fields[logging.LogFieldChannelName] = name
		}

		chat, err := chats.GetChat(ctx, dest)
		if err != nil {
			unreachable = append(unreachable, dest)
			logger.WithFields(fields).WithError(err).Warn("Destination channel is not reachable by the bot")
			continue
		}
		fields["chat_title"] = chat.Title
		fields["chat_type"] = chat.Type
		logger.WithFields(fields).Info("Destination channel validated")
	}
	return unreachable
}
