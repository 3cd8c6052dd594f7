package delivery

import (
	"strings"
	"unicode/utf8"

	"tgrelay/internal/constants"
)

// Split breaks text into chunks of at most constants.MaxMessageLength runes.
// Chunks end on line boundaries, so strings.Join(chunks, "\n") gives back
// the input whenever no single line is over the limit. Such a line is cut
// at rune boundaries into limit-sized pieces.
func Split(text string) []string {
	return splitN(text, constants.MaxMessageLength)
}

func splitN(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
		started bool
	)
	flush := func() {
		if started {
			chunks = append(chunks, current.String())
		}
		current.Reset()
		size = 0
		started = false
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if n > limit {
			flush()
			chunks = append(chunks, hardCut(line, limit)...)
			continue
		}
		if started && size+1+n > limit {
			flush()
		}
		if started {
			current.WriteByte('\n')
			size++
		}
		current.WriteString(line)
		size += n
		started = true
	}
	flush()
	return chunks
}

func hardCut(line string, limit int) []string {
	var pieces []string
	runes := []rune(line)
	for len(runes) > limit {
		pieces = append(pieces, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}
