package tracing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tgrelay/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func TestRequestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Zero(t, Duration(ctx))

	id := GenerateRequestID()
	assert.True(t, strings.HasPrefix(id, "req_"))
	assert.NotEqual(t, id, GenerateRequestID())

	start := time.Now().Add(-50 * time.Millisecond)
	ctx = WithStartTime(WithTraceID(WithRequestID(ctx, id), "trace-1"), start)

	info := GetRequestInfo(ctx)
	assert.Equal(t, id, info.RequestID)
	assert.Equal(t, "trace-1", info.TraceID)
	assert.Equal(t, start, info.StartTime)
	assert.GreaterOrEqual(t, Duration(ctx), 50*time.Millisecond)
}

func TestStartSpan_RecordsAttributesAndErrors(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartSpan(context.Background(), "relay.translate", attribute.String("channel", "news"))
	AddSpanAttributes(ctx, attribute.Int("attempts", 2))
	RecordError(ctx, errors.New("provider down"))
	RecordError(ctx, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "relay.translate", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String("channel", "news"))
	assert.Contains(t, ended[0].Attributes(), attribute.Int("attempts", 2))
	assert.Len(t, ended[0].Events(), 1)
}

func TestWithOtelTracing_MirrorsTraceID(t *testing.T) {
	installRecorder(t)

	ctx, span := WithOtelTracing(context.Background(), "http_request")
	defer span.End()

	traceID := GetTraceID(ctx)
	assert.Len(t, traceID, 32)
	assert.Equal(t, GetOtelTraceID(ctx), traceID)
	SetSpanStatus(ctx, codes.Ok, "")
}

func TestGetOtelTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetOtelTraceID(context.Background()))
}

func TestTracingManager_Disabled(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	tm := NewTracingManager(Options{}, logger)
	require.NoError(t, tm.Initialize(context.Background()))
	assert.Nil(t, tm.tracerProvider)
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_EnabledWithStdout(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	tm := NewTracingManager(Options{
		TracingConfig: models.TracingConfig{Enabled: true, UseStdout: true, SampleRate: 1},
	}, logger)

	require.NoError(t, tm.Initialize(context.Background()))
	require.NotNil(t, tm.tracerProvider)
	assert.Equal(t, "dev", tm.opts.ServiceVersion)
	assert.NoError(t, tm.Shutdown(context.Background()))
}
