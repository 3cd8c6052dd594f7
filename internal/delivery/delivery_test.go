package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"tgrelay/internal/cache"
	apperrors "tgrelay/internal/errors"
	"tgrelay/pkg/botapi"
	"tgrelay/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) SendMessage(ctx context.Context, chatID, text, parseMode string) (*botapi.Message, error) {
	args := m.Called(ctx, chatID, text, parseMode)
	msg, _ := args.Get(0).(*botapi.Message)
	return msg, args.Error(1)
}

func (m *mockClient) SendPhoto(ctx context.Context, chatID, photo, caption, parseMode string) (*botapi.Message, error) {
	args := m.Called(ctx, chatID, photo, caption, parseMode)
	msg, _ := args.Get(0).(*botapi.Message)
	return msg, args.Error(1)
}

func (m *mockClient) EditMessageText(ctx context.Context, chatID string, messageID int, text, parseMode string) (*botapi.Message, error) {
	args := m.Called(ctx, chatID, messageID, text, parseMode)
	msg, _ := args.Get(0).(*botapi.Message)
	return msg, args.Error(1)
}

func (m *mockClient) GetChat(ctx context.Context, chatID string) (*botapi.Chat, error) {
	args := m.Called(ctx, chatID)
	chat, _ := args.Get(0).(*botapi.Chat)
	return chat, args.Error(1)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newCache(t *testing.T) *cache.ChannelMessageCache {
	t.Helper()
	c, err := cache.New(filepath.Join(t.TempDir(), "channel_cache.json"), 9, quietLogger())
	require.NoError(t, err)
	return c
}

func TestSplit_PreservesContentAndLimit(t *testing.T) {
	line := strings.Repeat("ж", 1000)
	var lines []string
	for i := 0; i < 13; i++ {
		lines = append(lines, line)
	}
	lines = append(lines, "", "tail")
	text := strings.Join(lines, "\n")

	chunks := Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 4096)
	}
	assert.Equal(t, text, strings.Join(chunks, "\n"))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	assert.Equal(t, []string{"hello\nworld"}, Split("hello\nworld"))
}

func TestSplit_HardCutsOverlongLine(t *testing.T) {
	text := "head\n" + strings.Repeat("a", 9000) + "\nend"
	chunks := Split(text)

	require.Equal(t, []string{"head", strings.Repeat("a", 4096), strings.Repeat("a", 4096), strings.Repeat("a", 808), "end"}, chunks)
	assert.Equal(t, strings.ReplaceAll(text, "\n", ""), strings.Join(chunks, ""))
}

func TestSplit_ExactBoundary(t *testing.T) {
	a := strings.Repeat("x", 2047)
	b := strings.Repeat("y", 2048)
	chunks := splitN(a+"\n"+b+"\nz", 4096)
	assert.Equal(t, []string{a + "\n" + b, "z"}, chunks)
}

func TestValidate_DistinctReasons(t *testing.T) {
	cases := map[string]string{
		"":                        ReasonEmpty,
		"   \n ":                  ReasonEmpty,
		"<p></p>":                 ReasonNoVisible,
		"<b> </b>&nbsp;":          ReasonNoVisible,
		strings.Repeat("a", 5000): ReasonTooLong,
	}
	seen := map[string]bool{}
	for input, reason := range cases {
		err := Validate(input)
		require.Error(t, err, "input %q", input)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
		assert.Equal(t, reason, apperrors.GetUserMessage(err))
		seen[reason] = true
	}
	assert.Len(t, seen, 3)
	assert.NoError(t, Validate("<b>ok</b>"))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraphs", "<p>one</p><p>two</p>", "one\ntwo"},
		{"line breaks", "a<br>b<br/>c<br />d", "a\nb\nc\nd"},
		{"trailing spaces", "a   \nb\t\n", "a\nb"},
		{"unsupported tags keep content", `<div class="x"><b>bold</b> <h1>head</h1></div>`, "<b>bold</b> head"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"empty pairs", "x<b></b><i><u></u></i>y", "xy"},
		{"link kept", `<a href="https://t.me/x">x</a>`, `<a href="https://t.me/x">x</a>`},
		{"spoiler kept", "<tg-spoiler>s</tg-spoiler>", "<tg-spoiler>s</tg-spoiler>"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSameContent(t *testing.T) {
	assert.True(t, SameContent("", ""))
	assert.False(t, SameContent("", "x"))
	assert.True(t, SameContent("<p>Hello</p>", "Hello"))
	assert.True(t, SameContent("<b>Hello</b>  world", "Hello world"))
	assert.True(t, SameContent("Tom &amp; Jerry", "Tom & Jerry"))
	assert.True(t, SameContent("a\u00a0b\u200b", "a b"))
	assert.False(t, SameContent("Hello", "Hello!"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		severity string
	}{
		{"flood", &botapi.APIError{StatusCode: 429, Description: "Too Many Requests: retry after 5"}, CodeRateLimited, SeverityWarning},
		{"edit target gone", &botapi.APIError{StatusCode: 400, Description: "Bad Request: message to edit not found"}, CodeEditNotFound, SeverityError},
		{"not modified", &botapi.APIError{StatusCode: 400, Description: "Bad Request: message is not modified"}, CodeNotModified, SeverityWarning},
		{"chat not found", &botapi.APIError{StatusCode: 400, Description: "Bad Request: chat not found"}, CodeNotFound, SeverityError},
		{"forbidden", &botapi.APIError{StatusCode: 403, Description: "Forbidden: bot is not a member of the channel chat"}, CodeForbidden, SeverityError},
		{"no rights", errors.New("Bad Request: not enough rights to send text messages to the chat"), CodeForbidden, SeverityError},
		{"bad html", &botapi.APIError{StatusCode: 400, Description: "Bad Request: can't parse entities"}, CodeBadRequest, SeverityError},
		{"other", errors.New("connection reset by peer"), CodeUnknown, SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.err)
			assert.Equal(t, tt.code, d.Code)
			assert.Equal(t, tt.severity, d.Severity)
			assert.NotEmpty(t, d.Message)
		})
	}

	assert.Equal(t, "connection reset by peer", Classify(errors.New("connection reset by peer")).Message)
	assert.NotEmpty(t, Classify(&circuitbreaker.CircuitBreakerError{Name: "bot", State: circuitbreaker.StateOpen}).Suggestions)
}

func TestSend_SingleChunk(t *testing.T) {
	client := &mockClient{}
	client.On("SendMessage", mock.Anything, "-1002", "Hello\nworld", botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 77}, nil).Once()
	svc := NewService(client, Options{}, quietLogger())

	res, err := svc.Send(context.Background(), "-1002", "<p>Hello</p><p>world</p>")
	require.NoError(t, err)
	assert.Equal(t, "77", res.DestMessageID)
	assert.Equal(t, 1, res.Chunks)
	client.AssertExpectations(t)
}

func TestSend_ChunkFailureStopsWithoutRollback(t *testing.T) {
	client := &mockClient{}
	client.On("SendMessage", mock.Anything, "-1002", mock.Anything, botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 1}, nil).Once()
	client.On("SendMessage", mock.Anything, "-1002", mock.Anything, botapi.ParseModeHTML).
		Return(nil, &botapi.APIError{StatusCode: 400, Description: "Bad Request: can't parse entities"}).Once()
	svc := NewService(client, Options{}, quietLogger())

	text := strings.Repeat("a", 4000) + "\n" + strings.Repeat("b", 4000) + "\n" + strings.Repeat("c", 10)
	res, err := svc.Send(context.Background(), "-1002", text)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, CodeBadRequest, derr.Details.Code)
	assert.Equal(t, "Bad Request: can't parse entities", derr.Description())
	assert.Equal(t, 1, res.Chunks, "the first chunk stays delivered")
	client.AssertNumberOfCalls(t, "SendMessage", 2)
}

func TestSend_MultiChunkReturnsLastID(t *testing.T) {
	client := &mockClient{}
	client.On("SendMessage", mock.Anything, "-1002", strings.Repeat("a", 4000), botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 10}, nil).Once()
	client.On("SendMessage", mock.Anything, "-1002", strings.Repeat("b", 10), botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 11}, nil).Once()
	svc := NewService(client, Options{}, quietLogger())

	res, err := svc.Send(context.Background(), "-1002", strings.Repeat("a", 4000)+"\n"+strings.Repeat("b", 10))
	require.NoError(t, err)
	assert.Equal(t, "11", res.DestMessageID)
	assert.Equal(t, 2, res.Chunks)
	client.AssertExpectations(t)
}

func TestSend_FailureLogCarriesClassification(t *testing.T) {
	client := &mockClient{}
	client.On("SendMessage", mock.Anything, "-1002", "Hello", botapi.ParseModeHTML).
		Return(nil, &botapi.APIError{StatusCode: 403, Description: "Forbidden: bot is not a member of the channel chat"}).Once()
	logger, hook := test.NewNullLogger()
	svc := NewService(client, Options{}, logger)

	_, err := svc.Send(context.Background(), "-1002", "Hello")
	require.Error(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, CodeForbidden, entry.Data["error_code"])
	assert.Equal(t, "send", entry.Data["operation"])
	assert.Equal(t, "-1002", entry.Data["channel_id"])
	assert.NotNil(t, entry.Data[logrus.ErrorKey])
}

func TestSend_RejectsInvisibleContent(t *testing.T) {
	client := &mockClient{}
	svc := NewService(client, Options{}, quietLogger())

	_, err := svc.Send(context.Background(), "-1002", "<p></p>")
	assert.Equal(t, ReasonNoVisible, apperrors.GetUserMessage(err))
	client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendPhoto(t *testing.T) {
	client := &mockClient{}
	client.On("SendPhoto", mock.Anything, "-1002", "AgAC", "<b>cap</b>", botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 5}, nil).Once()
	svc := NewService(client, Options{}, quietLogger())

	res, err := svc.SendPhoto(context.Background(), "-1002", "AgAC", "<p><b>cap</b></p>")
	require.NoError(t, err)
	assert.Equal(t, "5", res.DestMessageID)

	_, err = svc.SendPhoto(context.Background(), "-1002", "AgAC", strings.Repeat("x", 1025))
	assert.Equal(t, ReasonCaptionLong, apperrors.GetUserMessage(err))
	client.AssertExpectations(t)
}

func TestEdit_SecondIdenticalEditSkipsTransport(t *testing.T) {
	client := &mockClient{}
	client.On("EditMessageText", mock.Anything, "-1002", 42, "new text", botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 42}, nil).Once()
	svc := NewService(client, Options{Cache: newCache(t)}, quietLogger())
	ctx := context.Background()

	first, err := svc.Edit(ctx, "-1002", 42, "new text", "old text")
	require.NoError(t, err)
	assert.False(t, first.Unchanged)
	assert.Equal(t, "42", first.DestMessageID)

	second, err := svc.Edit(ctx, "-1002", 42, "new text", "")
	require.NoError(t, err)
	assert.True(t, second.Unchanged)
	assert.Equal(t, NoteEditSkipped, second.Note)
	assert.Equal(t, "42", second.DestMessageID)

	client.AssertNumberOfCalls(t, "EditMessageText", 1)
}

func TestEdit_ExplicitPreviousMatches(t *testing.T) {
	client := &mockClient{}
	svc := NewService(client, Options{}, quietLogger())

	res, err := svc.Edit(context.Background(), "-1002", 9, "<p>Same</p>", "Same")
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	client.AssertNotCalled(t, "EditMessageText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEdit_NotModifiedIsSuccess(t *testing.T) {
	client := &mockClient{}
	client.On("EditMessageText", mock.Anything, "-1002", 9, "x", botapi.ParseModeHTML).
		Return(nil, &botapi.APIError{StatusCode: 400, Description: "Bad Request: message is not modified"}).Once()
	svc := NewService(client, Options{}, quietLogger())

	res, err := svc.Edit(context.Background(), "-1002", 9, "x", "")
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, NoteContentUnchanged, res.Note)
	assert.Equal(t, "9", res.DestMessageID)
}

func TestEdit_TargetMissing(t *testing.T) {
	client := &mockClient{}
	client.On("EditMessageText", mock.Anything, "-1002", 9, "x", botapi.ParseModeHTML).
		Return(nil, &botapi.APIError{StatusCode: 400, Description: "Bad Request: message to edit not found"}).Once()
	svc := NewService(client, Options{}, quietLogger())

	_, err := svc.Edit(context.Background(), "-1002", 9, "x", "")
	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, CodeEditNotFound, derr.Details.Code)
}

func TestSend_CachesDeliveredMessage(t *testing.T) {
	client := &mockClient{}
	client.On("SendMessage", mock.Anything, "-1002", "<b>hi</b>", botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 3}, nil).Once()
	c := newCache(t)
	svc := NewService(client, Options{Cache: c}, quietLogger())

	_, err := svc.Send(context.Background(), "-1002", "<b>hi</b>")
	require.NoError(t, err)

	cached, ok := c.Find("-1002", 3)
	require.True(t, ok)
	assert.Equal(t, "<b>hi</b>", cached.HTML)
}

func TestThrottle_RejectsWhenWindowStaysFull(t *testing.T) {
	client := &mockClient{}
	client.On("SendMessage", mock.Anything, "-1002", "hi", botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 1}, nil).Once()
	svc := NewService(client, Options{
		RatePerMinute:   1,
		MaxThrottleWait: 20 * time.Millisecond,
		ThrottlePoll:    5 * time.Millisecond,
	}, quietLogger())
	ctx := context.Background()

	_, err := svc.Send(ctx, "-1002", "hi")
	require.NoError(t, err)

	_, err = svc.Send(ctx, "-1002", "hi")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRateLimit))
	client.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestThrottle_IsPerDestination(t *testing.T) {
	client := &mockClient{}
	client.On("SendMessage", mock.Anything, mock.Anything, "hi", botapi.ParseModeHTML).
		Return(&botapi.Message{MessageID: 1}, nil)
	svc := NewService(client, Options{RatePerMinute: 1, MaxThrottleWait: time.Millisecond, ThrottlePoll: time.Millisecond}, quietLogger())

	_, err := svc.Send(context.Background(), "-1002", "hi")
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), "-1003", "hi")
	require.NoError(t, err)
}
