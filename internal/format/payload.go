package format

import (
	"fmt"
	"html"

	"tgrelay/internal/models"
)

// SourceTrailerPrefix introduces the attribution line appended to the HTML body.
const SourceTrailerPrefix = "\n\nSource channel: "

// SourceLink renders the source attribution: a link when the channel has a
// public username, otherwise the bare title.
func SourceLink(title, username string) string {
	if username == "" {
		return html.EscapeString(title)
	}
	return fmt.Sprintf(`<a href="https://t.me/%s">%s</a>`, username, html.EscapeString(title))
}

// MessageLink is the public deep link to a channel post.
func MessageLink(username string, messageID int) string {
	return fmt.Sprintf("https://t.me/%s/%d", username, messageID)
}

// BuildPayload assembles the translator input. Chat title and username come
// from the gateway when enrichment succeeded, else from the message itself.
func BuildPayload(msg models.InboundMessage, htmlBody string, meta models.Metadata) models.TranslationPayload {
	title := meta.Title(msg.ChatTitle)
	username := meta.Username(msg.ChatUsername)

	return models.TranslationPayload{
		Channel: title,
		Text:    msg.Text,
		HTML:    htmlBody + SourceTrailerPrefix + SourceLink(title, username),
		Link:    MessageLink(username, msg.MessageID),
		Meta:    meta,
	}
}
