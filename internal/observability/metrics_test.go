package observability

import (
	"testing"
	"time"

	"github.com/spec-kit/attendance-hub/internal/config"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/profile", "GET", 200, 3*time.Millisecond)
	m.RecordRequest("/profile", "GET", 200, 2*time.Millisecond)
	m.RecordError("/profile", "PATCH", "NO_SESSION")
	m.RecordDelivery("email", "delivered")

	snap := m.Snapshot()
	if snap.Requests["/profile|GET|200"] != 2 {
		t.Fatalf("expected 2 requests, got %v", snap.Requests)
	}
	if snap.LatencyMS["/profile|GET|200"] != 5 {
		t.Fatalf("expected 5ms total, got %v", snap.LatencyMS)
	}
	if snap.Errors["/profile|PATCH|NO_SESSION"] != 1 {
		t.Fatalf("unexpected errors %v", snap.Errors)
	}
	if snap.Deliveries["email|delivered"] != 1 {
		t.Fatalf("unexpected deliveries %v", snap.Deliveries)
	}

	snap.Requests["/profile|GET|200"] = 99
	if m.Snapshot().Requests["/profile|GET|200"] != 2 {
		t.Fatal("snapshot must be a copy")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordDelivery("push", "skipped")
	if got := m.Snapshot(); got.Requests != nil {
		t.Fatalf("expected empty snapshot, got %+v", got)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(0) {
		t.Fatal("expected info level enabled")
	}
	if logger.Core().Enabled(-1) {
		t.Fatal("expected debug disabled after fallback")
	}
}
