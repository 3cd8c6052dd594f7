package format

import (
	"testing"

	"tgrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitiesToHTML(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		entities []models.Entity
		expected string
	}{
		{
			name:     "single bold span",
			text:     "Test",
			entities: []models.Entity{{Type: models.EntityBold, Offset: 0, Length: 4}},
			expected: "<b>Test</b>",
		},
		{
			name:     "no entities escapes text",
			text:     `a < b & "c"`,
			expected: "a &lt; b &amp; &#34;c&#34;",
		},
		{
			name:     "escaping does not shift later spans",
			text:     "a<b c",
			entities: []models.Entity{{Type: models.EntityBold, Offset: 4, Length: 1}},
			expected: "a&lt;b <b>c</b>",
		},
		{
			name:     "offsets count utf16 units",
			text:     "👍 hi",
			entities: []models.Entity{{Type: models.EntityItalic, Offset: 3, Length: 2}},
			expected: "👍 <i>hi</i>",
		},
		{
			name: "nested spans stay nested",
			text: "bold italic",
			entities: []models.Entity{
				{Type: models.EntityBold, Offset: 0, Length: 11},
				{Type: models.EntityItalic, Offset: 5, Length: 6},
			},
			expected: "<b>bold <i>italic</i></b>",
		},
		{
			name: "identical ranges",
			text: "Test",
			entities: []models.Entity{
				{Type: models.EntityBold, Offset: 0, Length: 4},
				{Type: models.EntityItalic, Offset: 0, Length: 4},
			},
			expected: "<b><i>Test</i></b>",
		},
		{
			name: "adjacent spans",
			text: "ab",
			entities: []models.Entity{
				{Type: models.EntityBold, Offset: 0, Length: 1},
				{Type: models.EntityItalic, Offset: 1, Length: 1},
			},
			expected: "<b>a</b><i>b</i>",
		},
		{
			name:     "unknown kind dropped",
			text:     "secret",
			entities: []models.Entity{{Type: "spoiler", Offset: 0, Length: 6}},
			expected: "secret",
		},
		{
			name:     "code",
			text:     "run x",
			entities: []models.Entity{{Type: models.EntityCode, Offset: 4, Length: 1}},
			expected: "run <code>x</code>",
		},
		{
			name:     "pre with language",
			text:     "fmt.Println()",
			entities: []models.Entity{{Type: models.EntityPre, Offset: 0, Length: 13, Language: "go"}},
			expected: `<pre><code class="language-go">fmt.Println()</code></pre>`,
		},
		{
			name:     "pre without language",
			text:     "x",
			entities: []models.Entity{{Type: models.EntityPre, Offset: 0, Length: 1}},
			expected: "<pre><code>x</code></pre>",
		},
		{
			name:     "text link escapes url",
			text:     "site",
			entities: []models.Entity{{Type: models.EntityTextLink, Offset: 0, Length: 4, URL: "https://x.org/?a=1&b=2"}},
			expected: `<a href="https://x.org/?a=1&amp;b=2">site</a>`,
		},
		{
			name:     "text mention",
			text:     "John",
			entities: []models.Entity{{Type: models.EntityTextMention, Offset: 0, Length: 4, UserID: 42}},
			expected: `<a href="tg://user?id=42">John</a>`,
		},
		{
			name:     "span past end is clamped",
			text:     "abc",
			entities: []models.Entity{{Type: models.EntityBold, Offset: 1, Length: 50}},
			expected: "a<b>bc</b>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EntitiesToHTML(tt.text, tt.entities))
		})
	}
}

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 0, UTF16Len(""))
	assert.Equal(t, 5, UTF16Len("hello"))
	assert.Equal(t, 4, UTF16Len("👍 a"))
	assert.Equal(t, 6, UTF16Len("привет"))
}

func TestBuildPayload(t *testing.T) {
	msg := models.InboundMessage{
		ChatID:       "-1001",
		ChatTitle:    "Listener Title",
		ChatUsername: "listener",
		MessageID:    77,
		Text:         "Hello",
	}

	t.Run("enriched metadata wins", func(t *testing.T) {
		meta := models.Metadata{Chat: models.ChatResult{Info: &models.ChatInfo{Title: "Vision & Co", Username: "vision"}}}
		p := BuildPayload(msg, "<b>Hello</b>", meta)

		assert.Equal(t, "Vision & Co", p.Channel)
		assert.Equal(t, "Hello", p.Text)
		assert.Equal(t, `<b>Hello</b>`+"\n\nSource channel: "+`<a href="https://t.me/vision">Vision &amp; Co</a>`, p.HTML)
		assert.Equal(t, "https://t.me/vision/77", p.Link)
		assert.NotContains(t, p.Text, "Source channel")
	})

	t.Run("falls back to message chat without enrichment", func(t *testing.T) {
		p := BuildPayload(msg, "Hello", models.Metadata{Chat: models.ChatResult{Err: "timeout"}})

		assert.Equal(t, "Listener Title", p.Channel)
		assert.Contains(t, p.HTML, `<a href="https://t.me/listener">Listener Title</a>`)
	})

	t.Run("no username gives bare title", func(t *testing.T) {
		private := msg
		private.ChatUsername = ""
		p := BuildPayload(private, "Hello", models.Metadata{})

		assert.Equal(t, "Hello\n\nSource channel: Listener Title", p.HTML)
	})
}

func TestClassifyMedia(t *testing.T) {
	tests := []struct {
		name       string
		attachment *models.Attachment
		wantType   string
		wantFileID string
	}{
		{"text only", nil, models.MediaText, ""},
		{"small photo", &models.Attachment{Type: models.MediaPhoto, FileID: "p1", FileSize: 1024}, models.MediaPhoto, "p1"},
		{"video at ceiling", &models.Attachment{Type: models.MediaVideo, FileID: "v1", FileSize: MaxFileSize}, models.MediaVideo, "v1"},
		{"oversized document", &models.Attachment{Type: models.MediaDoc, FileID: "d1", FileSize: MaxFileSize + 1}, models.MediaDoc, ""},
		{"unsupported attachment", &models.Attachment{Type: "sticker", FileID: "s1", FileSize: 10}, models.MediaText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ClassifyMedia(models.InboundMessage{Attachment: tt.attachment}, MaxFileSize)
			assert.Equal(t, tt.wantType, info.Type)
			assert.Equal(t, tt.wantFileID, info.FileID)
		})
	}
}

func TestFormatChannelID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"@channel", "@channel", false},
		{"-1001234567", "-1001234567", false},
		{"1234567", "-1001234567", false},
		{"-1234567", "-1001234567", false},
		{"  my_channel ", "@my_channel", false},
		{"", "", true},
		{"@", "", true},
		{"bad channel!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := FormatChannelID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestHTMLToText_ReversesRendering(t *testing.T) {
	text := "a < b & c\n  <i>ok</i>"
	rendered := EntitiesToHTML(text, []models.Entity{{Type: models.EntityBold, Offset: 0, Length: 5}})

	assert.Equal(t, text, HTMLToText(rendered))
	assert.Equal(t, "", HTMLToText(""))
}
