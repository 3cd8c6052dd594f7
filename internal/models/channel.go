package models

// ChannelPairing binds one source channel to its destination channel.
type ChannelPairing struct {
	LogicalName string
	SourceID    string
	SourceName  string
	DestID      string
	DestName    string
}

// PairingsFromConfig converts configured channels into pairings.
func PairingsFromConfig(channels []ChannelConfig) []ChannelPairing {
	pairings := make([]ChannelPairing, 0, len(channels))
	for _, ch := range channels {
		pairings = append(pairings, ChannelPairing(ch))
	}
	return pairings
}
