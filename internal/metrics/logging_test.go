package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// serveLogged runs one request through LoggingMiddleware and returns the
// decoded log entry plus the recorded response.
func serveLogged(t *testing.T, req *http.Request) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var buf bytes.Buffer
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(&buf), zapcore.InfoLevel))

	wrapped := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v, log: %s", err, buf.String())
	}
	return entry, w
}

func TestLoggingMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/quotes/600519.SH", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	entry, _ := serveLogged(t, req)

	if entry["method"] != "GET" {
		t.Errorf("expected method GET, got %v", entry["method"])
	}
	if entry["path"] != "/quotes/600519.SH" {
		t.Errorf("expected path /quotes/600519.SH, got %v", entry["path"])
	}
	if entry["status"].(float64) != 200 {
		t.Errorf("expected status 200, got %v", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected duration_ms in log entry")
	}
	if entry["client_ip"] != "192.168.1.1:12345" {
		t.Errorf("expected client_ip from RemoteAddr, got %v", entry["client_ip"])
	}
}

func TestLoggingMiddleware_AddsRequestID(t *testing.T) {
	entry, w := serveLogged(t, httptest.NewRequest("GET", "/metrics", nil))

	requestID := w.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if entry["request_id"] != requestID {
		t.Errorf("expected request_id %s, got %v", requestID, entry["request_id"])
	}
}

func TestLoggingMiddleware_XForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	req.RemoteAddr = "10.0.0.1:54321"

	entry, _ := serveLogged(t, req)

	if entry["client_ip"] != "203.0.113.50" {
		t.Errorf("expected forwarded client_ip, got %v", entry["client_ip"])
	}
}
