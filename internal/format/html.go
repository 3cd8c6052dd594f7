package format

import (
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"tgrelay/internal/models"
)

var markupTag = regexp.MustCompile(`<[^>]*>`)

// HTMLToText reverses EntitiesToHTML: markup is dropped and the text is
// unescaped. Whitespace is left untouched.
func HTMLToText(s string) string {
	return html.UnescapeString(markupTag.ReplaceAllString(s, ""))
}

type tagEvent struct {
	pos    int
	open   bool
	tag    string
	start  int
	length int
	index  int
}

// EntitiesToHTML renders text with its formatting spans as Telegram HTML.
//
// Offsets are UTF-16 code units, as Telegram sends them. Tags are placed by
// position in the original text and the text between them is escaped, so
// escaping never shifts a span. Nested spans come out properly nested; spans
// that cross each other produce whatever the insertion order yields.
func EntitiesToHTML(text string, entities []models.Entity) string {
	if len(entities) == 0 {
		return html.EscapeString(text)
	}

	units := utf16.Encode([]rune(text))
	events := make([]tagEvent, 0, len(entities)*2)

	for i, ent := range entities {
		openTag, closeTag, ok := tagsFor(ent)
		if !ok {
			continue
		}
		start := clamp(ent.Offset, 0, len(units))
		end := clamp(ent.Offset+ent.Length, start, len(units))
		length := end - start
		events = append(events,
			tagEvent{pos: start, open: true, tag: openTag, start: start, length: length, index: i},
			tagEvent{pos: end, open: false, tag: closeTag, start: start, length: length, index: i},
		)
	}

	sort.SliceStable(events, func(a, b int) bool {
		ea, eb := events[a], events[b]
		if ea.pos != eb.pos {
			return ea.pos < eb.pos
		}
		if ea.open != eb.open {
			// Closing tags before opening tags at the same position.
			return !ea.open
		}
		if ea.open {
			// Outer spans open first.
			if ea.length != eb.length {
				return ea.length > eb.length
			}
			return ea.index < eb.index
		}
		// Inner spans close first.
		if ea.start != eb.start {
			return ea.start > eb.start
		}
		return ea.index > eb.index
	})

	var b strings.Builder
	b.Grow(len(text) + len(events)*8)
	cursor := 0
	for _, ev := range events {
		if ev.pos > cursor {
			b.WriteString(html.EscapeString(string(utf16.Decode(units[cursor:ev.pos]))))
			cursor = ev.pos
		}
		b.WriteString(ev.tag)
	}
	if cursor < len(units) {
		b.WriteString(html.EscapeString(string(utf16.Decode(units[cursor:]))))
	}
	return b.String()
}

func tagsFor(ent models.Entity) (string, string, bool) {
	switch ent.Type {
	case models.EntityBold:
		return "<b>", "</b>", true
	case models.EntityItalic:
		return "<i>", "</i>", true
	case models.EntityCode:
		return "<code>", "</code>", true
	case models.EntityPre:
		if ent.Language != "" {
			return `<pre><code class="language-` + html.EscapeString(ent.Language) + `">`, "</code></pre>", true
		}
		return "<pre><code>", "</code></pre>", true
	case models.EntityTextLink:
		return `<a href="` + html.EscapeString(ent.URL) + `">`, "</a>", true
	case models.EntityTextMention:
		return `<a href="tg://user?id=` + strconv.FormatInt(ent.UserID, 10) + `">`, "</a>", true
	}
	return "", "", false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
