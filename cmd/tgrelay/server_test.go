package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tgrelay/internal/events"
	"tgrelay/internal/metrics"
	"tgrelay/internal/models"
	"tgrelay/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedQueue int

func (q fixedQueue) Len() int { return int(q) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestServer(t *testing.T, breaker *circuitbreaker.CircuitBreaker) (*Server, *events.FileLog) {
	t.Helper()
	log, err := events.NewFileLog(filepath.Join(t.TempDir(), "events.json"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	cfg := &models.Config{Server: models.ServerConfig{Port: "0"}}
	return NewServer(cfg, ServerDeps{Events: log, Breaker: breaker, Gateway: fixedQueue(3)}, quietLogger()), log
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestServer_HandleHealth(t *testing.T) {
	breaker := circuitbreaker.New("bot", 1, time.Hour, quietLogger())
	server, _ := newTestServer(t, breaker)

	w := serve(server, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "CLOSED", body.CircuitBreaker)
	assert.Equal(t, 3, body.GatewayQueue)
}

func TestServer_HealthDegradedWhenBreakerOpen(t *testing.T) {
	breaker := circuitbreaker.New("bot", 1, time.Hour, quietLogger())
	_ = breaker.Execute(context.Background(), func(context.Context) error { return errors.New("502") })
	server, _ := newTestServer(t, breaker)

	w := serve(server, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)
}

func TestServer_HandleStats(t *testing.T) {
	server, log := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, models.MessageEvent{SourceChannelID: "-1001", MessageID: 1, PostingSuccess: true, DestMessageID: "5"}))
	require.NoError(t, log.Append(ctx, models.MessageEvent{SourceChannelID: "-1001", MessageID: 2, APIErrorCode: "POST-ERR-003"}))

	w := serve(server, "/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var summary events.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Successes)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 1, summary.ErrorCodes["POST-ERR-003"])
}

func TestServer_HandleMetrics(t *testing.T) {
	server, _ := newTestServer(t, nil)
	metrics.IncrementCounter("server_test_hits", nil, "Test counter")

	w := serve(server, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var snapshot metrics.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Contains(t, snapshot.Counters, "server_test_hits")

	w = serve(server, "/metrics/prometheus")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "server_test_hits_total"), "counters are exported with the _total suffix")
}

func TestServer_UnknownRoute(t *testing.T) {
	server, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, serve(server, "/webhook").Code)
}

func TestConfigureLogLevel(t *testing.T) {
	logger := quietLogger()
	configureLogLevel(logger, "warn", false)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	configureLogLevel(logger, "nonsense", false)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	configureLogLevel(logger, "error", true)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestRunWithInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
