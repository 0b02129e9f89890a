package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ibm-messaging/iot-go/internal/infrastructure/influxdb"
	"github.com/ibm-messaging/iot-go/pkg/config"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu     sync.Mutex
	lines  []string
	status int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{status: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping", "/health":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
			f.mu.Lock()
			f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			status := f.status
			f.mu.Unlock()
			w.WriteHeader(status)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		URL:           url,
		Token:         "test-token",
		Org:           "iot",
		Bucket:        "wiotp",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := influxdb.Connect(ctx, testConfig("http://127.0.0.1:1"))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	srv := newFakeInflux(t)
	cfg := testConfig(srv.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWritePoint(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ts := time.Unix(1700000000, 0)
	err = client.WritePoint("wiotp_messages",
		map[string]string{"kind": "event", "type_id": "raspi"},
		map[string]any{"cpu": 90.0, "size": 11},
		ts)
	if err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}
	client.Flush()

	deadline := time.Now().Add(5 * time.Second)
	for len(srv.written()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	lines := srv.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	if !strings.HasPrefix(lines[0], "wiotp_messages,kind=event,type_id=raspi ") {
		t.Errorf("line = %q", lines[0])
	}
	if !strings.Contains(lines[0], "cpu=90") || !strings.Contains(lines[0], "size=11i") {
		t.Errorf("line = %q, missing fields", lines[0])
	}
	if !strings.HasSuffix(lines[0], " 1700000000000") {
		t.Errorf("line = %q, want millisecond timestamp", lines[0])
	}
	if got := client.Stats(); got.Queued != 1 || got.Failed != 0 {
		t.Errorf("Stats() = %+v, want 1 queued", got)
	}
}

func TestWritePoint_NoFields(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.WritePoint("m", nil, nil, time.Now()); !errors.Is(err, influxdb.ErrNoFields) {
		t.Errorf("WritePoint() error = %v, want ErrNoFields", err)
	}
}

func TestWritePoint_AsyncErrorCallback(t *testing.T) {
	srv := newFakeInflux(t)
	srv.mu.Lock()
	srv.status = http.StatusBadRequest
	srv.mu.Unlock()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	if err := client.WritePoint("m", nil, map[string]any{"v": 1}, time.Now()); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
		if got := client.Stats().Failed; got != 1 {
			t.Errorf("Stats().Failed = %d, want 1", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error callback not invoked")
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestClose(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := client.WritePoint("m", nil, map[string]any{"v": 1}, time.Now()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WritePoint() after Close() error = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}
	client.Flush() // no-op, must not panic
}
