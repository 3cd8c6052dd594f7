package events

import (
	"sort"

	"tgrelay/internal/models"
)

// ChannelStats aggregates events for one source channel.
type ChannelStats struct {
	SourceChannelID   string  `json:"source_channel_id"`
	SourceChannelName string  `json:"source_channel_name"`
	Total             int     `json:"total"`
	Failures          int     `json:"failures"`
	AvgTranslationSec float64 `json:"avg_translation_seconds"`
}

// Summary is an overview of the event log.
type Summary struct {
	Total             int            `json:"total"`
	Creates           int            `json:"creates"`
	Edits             int            `json:"edits"`
	Successes         int            `json:"successes"`
	Failures          int            `json:"failures"`
	TotalRetries      int            `json:"total_retries"`
	AvgTranslationSec float64        `json:"avg_translation_seconds"`
	ErrorCodes        map[string]int `json:"error_codes"`
	Channels          []ChannelStats `json:"channels"`
	LastEventAt       string         `json:"last_event_at,omitempty"`
}

// Summarize aggregates events. Ordering within the log is not trusted; the
// latest event is chosen by timestamp.
func Summarize(events []models.MessageEvent) Summary {
	s := Summary{ErrorCodes: map[string]int{}, Channels: []ChannelStats{}}
	perChannel := map[string]*ChannelStats{}
	translationSum := 0.0
	channelSums := map[string]float64{}

	for _, ev := range events {
		s.Total++
		if ev.DerivedEventType() == models.EventEdit {
			s.Edits++
		} else {
			s.Creates++
		}
		if ev.PostingSuccess {
			s.Successes++
		} else {
			s.Failures++
		}
		if ev.APIErrorCode != "" {
			s.ErrorCodes[ev.APIErrorCode]++
		}
		s.TotalRetries += ev.RetryCount
		translationSum += ev.TranslationTime
		if ev.Timestamp > s.LastEventAt {
			s.LastEventAt = ev.Timestamp
		}

		cs, ok := perChannel[ev.SourceChannelID]
		if !ok {
			cs = &ChannelStats{SourceChannelID: ev.SourceChannelID}
			perChannel[ev.SourceChannelID] = cs
		}
		if ev.SourceChannelName != "" {
			cs.SourceChannelName = ev.SourceChannelName
		}
		cs.Total++
		if !ev.PostingSuccess {
			cs.Failures++
		}
		channelSums[ev.SourceChannelID] += ev.TranslationTime
	}

	if s.Total > 0 {
		s.AvgTranslationSec = translationSum / float64(s.Total)
	}
	for id, cs := range perChannel {
		cs.AvgTranslationSec = channelSums[id] / float64(cs.Total)
		s.Channels = append(s.Channels, *cs)
	}
	sort.Slice(s.Channels, func(i, j int) bool {
		return s.Channels[i].SourceChannelID < s.Channels[j].SourceChannelID
	})
	return s
}
