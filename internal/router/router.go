package router

import (
	"fmt"

	apperrors "tgrelay/internal/errors"
	"tgrelay/internal/models"
)

// ChannelRouter resolves destinations for source channels and display names
// for any configured channel. It is immutable once built; a configuration
// reload constructs a new router.
type ChannelRouter struct {
	bySource       map[string]models.ChannelPairing
	byDest         map[string]models.ChannelPairing
	names          map[string]string
	sourcesInOrder []string
}

// New builds a router from pairings, rejecting empty or duplicate ids.
func New(pairings []models.ChannelPairing) (*ChannelRouter, error) {
	r := &ChannelRouter{
		bySource:       make(map[string]models.ChannelPairing, len(pairings)),
		byDest:         make(map[string]models.ChannelPairing, len(pairings)),
		names:          make(map[string]string, len(pairings)*2),
		sourcesInOrder: make([]string, 0, len(pairings)),
	}

	for _, p := range pairings {
		if p.SourceID == "" {
			return nil, fmt.Errorf("empty source channel id for pairing %q", p.LogicalName)
		}
		if p.DestID == "" {
			return nil, fmt.Errorf("empty destination channel id for source %s", p.SourceID)
		}
		if p.SourceID == p.DestID {
			return nil, fmt.Errorf("channel %s is paired with itself", p.SourceID)
		}
		if _, exists := r.bySource[p.SourceID]; exists {
			return nil, fmt.Errorf("duplicate source channel id: %s", p.SourceID)
		}
		if _, exists := r.byDest[p.DestID]; exists {
			return nil, fmt.Errorf("duplicate destination channel id: %s", p.DestID)
		}
		if _, exists := r.names[p.SourceID]; exists {
			return nil, fmt.Errorf("channel %s is used as both source and destination", p.SourceID)
		}
		if _, exists := r.names[p.DestID]; exists {
			return nil, fmt.Errorf("channel %s is used as both source and destination", p.DestID)
		}

		if p.SourceName == "" {
			p.SourceName = p.LogicalName
		}
		if p.DestName == "" {
			p.DestName = p.LogicalName + "_en"
		}

		r.bySource[p.SourceID] = p
		r.byDest[p.DestID] = p
		r.names[p.SourceID] = p.SourceName
		r.names[p.DestID] = p.DestName
		r.sourcesInOrder = append(r.sourcesInOrder, p.SourceID)
	}

	if len(r.bySource) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}

	return r, nil
}

// DestinationFor returns the destination channel id paired with sourceID.
func (r *ChannelRouter) DestinationFor(sourceID string) (string, error) {
	p, ok := r.bySource[sourceID]
	if !ok {
		return "", apperrors.NewNotFoundError("destination channel", sourceID)
	}
	return p.DestID, nil
}

// SourceFor returns the source channel id paired with destID.
func (r *ChannelRouter) SourceFor(destID string) (string, error) {
	p, ok := r.byDest[destID]
	if !ok {
		return "", apperrors.NewNotFoundError("source channel", destID)
	}
	return p.SourceID, nil
}

// Pairing returns the full pairing for sourceID.
func (r *ChannelRouter) Pairing(sourceID string) (models.ChannelPairing, error) {
	p, ok := r.bySource[sourceID]
	if !ok {
		return models.ChannelPairing{}, apperrors.NewNotFoundError("channel pairing", sourceID)
	}
	return p, nil
}

// NameFor returns the display name of any configured source or destination channel.
func (r *ChannelRouter) NameFor(channelID string) (string, error) {
	name, ok := r.names[channelID]
	if !ok {
		return "", apperrors.NewNotFoundError("channel name", channelID)
	}
	return name, nil
}

// IsSource reports whether channelID is a configured source channel.
func (r *ChannelRouter) IsSource(channelID string) bool {
	_, ok := r.bySource[channelID]
	return ok
}

// SourceIDs returns all source channel ids in configuration order.
func (r *ChannelRouter) SourceIDs() []string {
	ids := make([]string, len(r.sourcesInOrder))
	copy(ids, r.sourcesInOrder)
	return ids
}

// DestinationIDs returns all destination channel ids in configuration order.
func (r *ChannelRouter) DestinationIDs() []string {
	sources := r.SourceIDs()
	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, r.bySource[src].DestID)
	}
	return ids
}

// Len returns the number of pairings.
func (r *ChannelRouter) Len() int {
	return len(r.bySource)
}
