package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskChatID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"supergroup id", "-1001234567890", "-100******7890"},
		{"username", "@christianvision", "@***********sion"},
		{"short username", "@abc", "@***"},
		{"plain negative", "-987654", "-**7654"},
		{"bare digits", "12345678", "****5678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskChatID(tt.input))
		})
	}
}

func TestMaskBotToken(t *testing.T) {
	assert.Equal(t, "", MaskBotToken(""))
	assert.Equal(t, "123456:***", MaskBotToken("123456:AAH-secret"))
	assert.Equal(t, "*****", MaskBotToken("nocol"))
}

func TestMaskURLToken(t *testing.T) {
	token := "123:SECRET"
	url := "https://api.telegram.org/file/bot123:SECRET/photos/file_1.jpg"

	assert.Equal(t, "https://api.telegram.org/file/bot123:***/photos/file_1.jpg", MaskURLToken(url, token))
	assert.Equal(t, url, MaskURLToken(url, ""))
}

func TestMaskSensitiveFields(t *testing.T) {
	fields := map[string]interface{}{
		"channel_id": "-1001234567890",
		"bot_token":  "42:abc",
		"api_key":    "sk-ant-0123456789",
		"message_id": 7,
		"other":      "visible",
	}

	masked := MaskSensitiveFields(fields)

	assert.Equal(t, "-100******7890", masked["channel_id"])
	assert.Equal(t, "42:***", masked["bot_token"])
	assert.Equal(t, "*************6789", masked["api_key"])
	assert.Equal(t, 7, masked["message_id"])
	assert.Equal(t, "visible", masked["other"])
	assert.Nil(t, MaskSensitiveFields(nil))
}
