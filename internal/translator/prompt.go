package translator

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"tgrelay/internal/models"
)

const (
	// ShortWordThreshold and ShortCharThreshold decide the short-input branch.
	// Very short inputs make template prompts pad or echo the source.
	ShortWordThreshold = 7
	ShortCharThreshold = 20

	shortInstruction = "Translate the following HTML message without duplicating original message:"

	// MessagePlaceholder is replaced by the message HTML in prompt templates.
	MessagePlaceholder = "{message_text}"

	// DefaultTemplate passes the message through unchanged.
	DefaultTemplate = MessagePlaceholder
)

var (
	leakedTagPattern     = regexp.MustCompile(`</?(?:translation|example|source|user|instructions|system)>`)
	trailingClosePattern = regexp.MustCompile(`(?:</[a-zA-Z]+>\s*)+$`)
	closeTagPattern      = regexp.MustCompile(`</[a-zA-Z]+>`)
)

// Template holds the current prompt template. It is safe to swap while
// translations are in flight.
type Template struct {
	mu   sync.RWMutex
	text string
}

// NewTemplate creates a template holder; empty text selects DefaultTemplate.
func NewTemplate(text string) *Template {
	t := &Template{}
	t.Set(text)
	return t
}

// Set replaces the template text.
func (t *Template) Set(text string) {
	if strings.TrimSpace(text) == "" {
		text = DefaultTemplate
	}
	t.mu.Lock()
	t.text = text
	t.mu.Unlock()
}

// Text returns the current template text.
func (t *Template) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.text
}

// Render substitutes the message HTML into the template.
func (t *Template) Render(messageHTML string) string {
	return strings.ReplaceAll(t.Text(), MessagePlaceholder, messageHTML)
}

// IsShort reports whether text falls under the short-input threshold.
func IsShort(text string) bool {
	return len(strings.Fields(text)) < ShortWordThreshold || utf8.RuneCountInString(text) < ShortCharThreshold
}

// BuildPrompt picks the short-input instruction or the template. Shortness
// is judged on the post text so the attribution trailer never pushes a
// one-word post into the template branch.
func BuildPrompt(payload models.TranslationPayload, tmpl *Template) string {
	measured := payload.Text
	if strings.TrimSpace(measured) == "" {
		measured = payload.HTML
	}
	if IsShort(measured) {
		return strings.TrimSpace(shortInstruction + "\n\n" + payload.HTML)
	}
	return strings.TrimSpace(tmpl.Render(payload.HTML))
}

// CleanResponse strips wrapper tags the model may echo and drops closing
// tags at the end of the response that have no matching open tag, which is
// how truncated or repeated completions usually end.
func CleanResponse(raw string) string {
	cleaned := leakedTagPattern.ReplaceAllString(raw, "")
	if loc := trailingClosePattern.FindStringIndex(cleaned); loc != nil {
		prefix := cleaned[:loc[0]]
		cleaned = prefix + balanceClosingRun(prefix, cleaned[loc[0]:])
	}
	return strings.TrimSpace(cleaned)
}

func balanceClosingRun(prefix, run string) string {
	lower := strings.ToLower(prefix)
	open := make(map[string]int)
	var b strings.Builder
	for _, tag := range closeTagPattern.FindAllString(run, -1) {
		name := strings.ToLower(tag[2 : len(tag)-1])
		if _, counted := open[name]; !counted {
			open[name] = strings.Count(lower, "<"+name+">") +
				strings.Count(lower, "<"+name+" ") -
				strings.Count(lower, "</"+name+">")
		}
		if open[name] <= 0 {
			continue
		}
		open[name]--
		b.WriteString(tag)
	}
	return b.String()
}
