package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/metrics"
)

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	handler := Logging(logger, m)(mux)

	for _, path := range []string{"/ok", "/ok", "/boom", "/missing"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	logs := buf.String()
	assert.Contains(t, logs, "level=DEBUG msg=\"Request completed\" method=GET path=/ok status=200")
	assert.Contains(t, logs, "level=ERROR msg=\"Request failed\" method=GET path=/boom status=500")
	assert.Contains(t, logs, "level=WARN msg=\"Request rejected\" method=GET path=/missing status=404")

	expected := `
# HELP splitledger_http_requests_total HTTP requests served by the metrics endpoint.
# TYPE splitledger_http_requests_total counter
splitledger_http_requests_total{path="/boom",status="500"} 1
splitledger_http_requests_total{path="/missing",status="404"} 1
splitledger_http_requests_total{path="/ok",status="200"} 2
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "splitledger_http_requests_total")
	require.NoError(t, err)
}

func TestLoggingWithoutMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := Logging(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
