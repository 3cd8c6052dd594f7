package delivery

import (
	"html"
	"regexp"
	"strings"
)

// allowedTags is the rich-text subset Telegram accepts with parse_mode=HTML.
var allowedTags = map[string]bool{
	"a": true, "b": true, "strong": true, "i": true, "em": true,
	"u": true, "ins": true, "s": true, "strike": true, "del": true,
	"code": true, "pre": true, "blockquote": true, "span": true,
	"tg-spoiler": true, "tg-emoji": true,
}

var (
	breakReplacer = strings.NewReplacer(
		"<p>", "",
		"</p>", "\n",
		"<br>", "\n",
		"<br/>", "\n",
		"<br />", "\n",
	)
	tagPattern       = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9-]*)\b[^>]*>`)
	anyTagPattern    = regexp.MustCompile(`<[^>]+>`)
	emptyPairPattern = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9-]*)(?:\s[^>]*)?></([a-zA-Z][a-zA-Z0-9-]*)>`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
	unicodeSpaces    = regexp.MustCompile(`[\x{200B}-\x{200D}\x{2060}\x{FEFF}\x{00A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}]`)
	ultraSpaceRun    = regexp.MustCompile(`[\s\x{00A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}]+`)
)

// Sanitize converts text to the HTML subset Telegram renders. Paragraph and
// line-break markup becomes literal newlines, unknown tags are removed with
// their content kept, runs of blank lines collapse to one, and empty tag
// pairs are dropped.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}

	out := breakReplacer.Replace(text)
	out = tagPattern.ReplaceAllStringFunc(out, func(tag string) string {
		name := strings.ToLower(tagPattern.FindStringSubmatch(tag)[1])
		if allowedTags[name] {
			return tag
		}
		return ""
	})
	out = dropEmptyPairs(out)

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	out = strings.TrimSpace(strings.Join(lines, "\n"))
	return blankRunPattern.ReplaceAllString(out, "\n\n")
}

// dropEmptyPairs removes <x></x> pairs, repeating so that nested empty
// pairs such as <b><i></i></b> disappear too.
func dropEmptyPairs(s string) string {
	for {
		next := emptyPairPattern.ReplaceAllStringFunc(s, func(pair string) string {
			m := emptyPairPattern.FindStringSubmatch(pair)
			if strings.EqualFold(m[1], m[2]) {
				return ""
			}
			return pair
		})
		if next == s {
			return s
		}
		s = next
	}
}

// StripTags removes every tag and collapses whitespace.
func StripTags(text string) string {
	if text == "" {
		return ""
	}
	stripped := anyTagPattern.ReplaceAllString(text, "")
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(stripped), " ")
}

// TelegramNormalize approximates the comparison Telegram applies when it
// decides an edit changes nothing: sanitized, tag-free, entity-decoded text
// with every kind of Unicode space folded into one ASCII space.
func TelegramNormalize(text string) string {
	if text == "" {
		return ""
	}
	normalized := anyTagPattern.ReplaceAllString(Sanitize(text), "")
	normalized = html.UnescapeString(normalized)
	normalized = whitespaceRun.ReplaceAllString(strings.TrimSpace(normalized), " ")
	normalized = unicodeSpaces.ReplaceAllString(normalized, " ")
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(normalized), " ")
}

func ultraNormalize(text string) string {
	text = anyTagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = ultraSpaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SameContent reports whether Telegram would consider a and b identical.
// Passes run from strictest to loosest and the first match wins. Two empty
// texts are equal; an empty and a non-empty text never are.
func SameContent(a, b string) bool {
	if a == "" && b == "" {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	sa, sb := Sanitize(a), Sanitize(b)
	if sa == sb {
		return true
	}
	if StripTags(sa) == StripTags(sb) {
		return true
	}
	if TelegramNormalize(a) == TelegramNormalize(b) {
		return true
	}
	return ultraNormalize(a) == ultraNormalize(b)
}
