package telegram

import (
	"strconv"
	"time"

	"tgrelay/internal/models"

	"github.com/gotd/td/fileid"
	"github.com/gotd/td/tg"
)

// ChannelID renders an MTProto channel id in Bot API form.
func ChannelID(id int64) string {
	return "-100" + strconv.FormatInt(id, 10)
}

// MapMessage converts a channel post into the relay's inbound form. It
// reports false for posts that are not in a channel.
func MapMessage(msg *tg.Message, entities tg.Entities) (models.InboundMessage, bool) {
	if msg == nil {
		return models.InboundMessage{}, false
	}
	peer, ok := msg.PeerID.(*tg.PeerChannel)
	if !ok {
		return models.InboundMessage{}, false
	}

	in := models.InboundMessage{
		ChatID:     ChannelID(peer.ChannelID),
		MessageID:  msg.ID,
		Text:       msg.Message,
		Entities:   mapEntities(msg.Entities),
		Date:       time.Unix(int64(msg.Date), 0).UTC(),
		Attachment: mapAttachment(msg.Media),
	}
	if editDate, ok := msg.GetEditDate(); ok && editDate > 0 {
		in.EditDate = time.Unix(int64(editDate), 0).UTC()
	}
	if channel, ok := entities.Channels[peer.ChannelID]; ok {
		in.ChatTitle = channel.Title
		in.ChatUsername = channel.Username
	}
	return in, true
}

func mapEntities(entities []tg.MessageEntityClass) []models.Entity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]models.Entity, 0, len(entities))
	for _, entity := range entities {
		e := models.Entity{Offset: entity.GetOffset(), Length: entity.GetLength()}
		switch typed := entity.(type) {
		case *tg.MessageEntityBold:
			e.Type = models.EntityBold
		case *tg.MessageEntityItalic:
			e.Type = models.EntityItalic
		case *tg.MessageEntityCode:
			e.Type = models.EntityCode
		case *tg.MessageEntityPre:
			e.Type = models.EntityPre
			e.Language = typed.Language
		case *tg.MessageEntityTextURL:
			e.Type = models.EntityTextLink
			e.URL = typed.URL
		case *tg.MessageEntityMentionName:
			e.Type = models.EntityTextMention
			e.UserID = typed.UserID
		default:
			// Kept so the formatter can decide; unknown kinds render as plain text.
			e.Type = models.EntityType(typed.TypeName())
		}
		out = append(out, e)
	}
	return out
}

func mapAttachment(media tg.MessageMediaClass) *models.Attachment {
	switch typed := media.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := typed.GetPhoto()
		if !ok {
			return nil
		}
		photo, ok := p.(*tg.Photo)
		if !ok {
			return nil
		}
		thumb, size := largestPhotoSize(photo.Sizes)
		att := &models.Attachment{Type: models.MediaPhoto, FileSize: size}
		if thumb != 0 {
			att.FileID = encodeFileID(fileid.FromPhoto(photo, thumb))
		}
		return att
	case *tg.MessageMediaDocument:
		d, ok := typed.GetDocument()
		if !ok {
			return nil
		}
		doc, ok := d.(*tg.Document)
		if !ok {
			return nil
		}
		return &models.Attachment{
			Type:     documentMediaType(doc),
			FileID:   encodeFileID(fileid.FromDocument(doc)),
			FileSize: doc.Size,
		}
	default:
		return nil
	}
}

func documentMediaType(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		if _, ok := attr.(*tg.DocumentAttributeVideo); ok {
			return models.MediaVideo
		}
	}
	return models.MediaDoc
}

// largestPhotoSize picks the biggest rendition and returns its type letter
// and byte size.
func largestPhotoSize(sizes []tg.PhotoSizeClass) (rune, int64) {
	var (
		thumb rune
		best  int
	)
	for _, s := range sizes {
		var typ string
		var n int
		switch typed := s.(type) {
		case *tg.PhotoSize:
			typ, n = typed.Type, typed.Size
		case *tg.PhotoSizeProgressive:
			if len(typed.Sizes) > 0 {
				typ, n = typed.Type, typed.Sizes[len(typed.Sizes)-1]
			}
		}
		if typ != "" && n > best {
			thumb, best = rune(typ[0]), n
		}
	}
	return thumb, int64(best)
}

func encodeFileID(id fileid.FileID) string {
	s, err := fileid.EncodeFileID(id)
	if err != nil {
		return ""
	}
	return s
}
