package models

import "time"

// EntityType names a formatting span kind.
type EntityType string

const (
	EntityBold        EntityType = "bold"
	EntityItalic      EntityType = "italic"
	EntityCode        EntityType = "code"
	EntityPre         EntityType = "pre"
	EntityTextLink    EntityType = "text_link"
	EntityTextMention EntityType = "text_mention"
)

// Entity is a formatting span. Offset and Length are in UTF-16 code units.
type Entity struct {
	Type     EntityType `json:"type"`
	Offset   int        `json:"offset"`
	Length   int        `json:"length"`
	URL      string     `json:"url,omitempty"`
	Language string     `json:"language,omitempty"`
	UserID   int64      `json:"user_id,omitempty"`
}

// Media type labels recorded on events.
const (
	MediaText  = "text"
	MediaPhoto = "photo"
	MediaVideo = "video"
	MediaDoc   = "doc"
)

// Attachment describes the media carried by an inbound message.
type Attachment struct {
	Type     string
	FileID   string
	FileSize int64
}

// InboundMessage is a new or edited source channel post.
type InboundMessage struct {
	ChatID       string
	ChatTitle    string
	ChatUsername string
	MessageID    int
	Text         string
	Entities     []Entity
	Date         time.Time
	EditDate     time.Time
	Attachment   *Attachment
}

// IsEdit reports whether the message is an edit of an earlier post.
func (m InboundMessage) IsEdit() bool {
	return !m.EditDate.IsZero()
}
