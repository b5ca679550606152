package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/wastenot/internal/model"
	"github.com/crimson-sun/wastenot/internal/output"
)

func testRecord(label string) model.FeedbackRecord {
	return model.FeedbackRecord{
		ID:             "fb-" + label,
		PredictedLabel: label,
		Type:           model.FeedbackGood,
		Comment:        "spot on",
		CreatedAt:      time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
	}
}

type collector struct {
	mu      sync.Mutex
	batches [][]model.FeedbackRecord
}

func (c *collector) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch []model.FeedbackRecord
		json.Unmarshal(body, &batch)
		c.mu.Lock()
		c.batches = append(c.batches, batch)
		c.mu.Unlock()
		w.WriteHeader(200)
	}
}

func (c *collector) snapshot() [][]model.FeedbackRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]model.FeedbackRecord(nil), c.batches...)
}

func TestBatchFlushAtBatchSize(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(3), WithFlushInterval(10*time.Second))

	for i := 0; i < 3; i++ {
		if err := out.Write(context.Background(), testRecord("egg")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}

	// The third Write flushes synchronously.
	got := c.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(got))
	}
	if len(got[0]) != 3 {
		t.Errorf("batch size = %d, want 3", len(got[0]))
	}
}

func TestTimerFlushBeforeBatchSize(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(100), WithFlushInterval(100*time.Millisecond))

	out.Write(context.Background(), testRecord("tomato"))

	time.Sleep(400 * time.Millisecond)

	got := c.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 timer-triggered batch, got %d", len(got))
	}
	if len(got[0]) != 1 || got[0][0].PredictedLabel != "tomato" {
		t.Errorf("batch = %+v", got[0])
	}
}

func TestRetryOn5xx(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(10*time.Millisecond))
	if err := out.Write(context.Background(), testRecord("rice")); err != nil {
		t.Fatalf("Write error after recovery: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(503)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Millisecond))
	if err := out.Write(context.Background(), testRecord("rice")); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts.Load() != maxRetries+1 {
		t.Errorf("attempts = %d, want %d", attempts.Load(), maxRetries+1)
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(400)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1))
	err := out.Write(context.Background(), testRecord("bread"))

	if err == nil {
		t.Error("expected error for 400 response")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt for 4xx, got %d", attempts.Load())
	}
}

func TestCanceledContextStopsRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Hour))

	done := make(chan error, 1)
	go func() { done <- out.Write(ctx, testRecord("bread")) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Write did not return after cancel")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"with token", "secret123", "Bearer secret123"},
		{"without token", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth.Store(r.Header.Get("Authorization"))
				w.WriteHeader(200)
			}))
			defer srv.Close()

			out := New(srv.URL, WithBatchSize(1), WithBearerToken(tt.token))
			if err := out.Write(context.Background(), testRecord("cheese")); err != nil {
				t.Fatalf("Write error: %v", err)
			}
			if v, _ := gotAuth.Load().(string); v != tt.want {
				t.Errorf("Authorization = %q, want %q", v, tt.want)
			}
		})
	}
}

func TestMinimalVerbosityDropsComment(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithVerbosity(output.Minimal))
	out.Write(context.Background(), testRecord("egg"))

	got := c.snapshot()
	if len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("batches = %+v", got)
	}
	if got[0][0].Comment != "" {
		t.Errorf("comment = %q, want empty", got[0][0].Comment)
	}
}

func TestTimerFlushErrorCallbackInvoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
	}))
	defer srv.Close()

	var errCount atomic.Int64
	out := New(srv.URL,
		WithBatchSize(100),
		WithFlushInterval(50*time.Millisecond),
		WithOnError(func(err error) { errCount.Add(1) }),
	)

	out.Write(context.Background(), testRecord("potato"))

	time.Sleep(300 * time.Millisecond)

	if errCount.Load() != 1 {
		t.Errorf("expected error callback called 1 time, got %d", errCount.Load())
	}

	out.Close()
}

func TestCloseFlushesRemaining(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(100), WithFlushInterval(10*time.Second))

	out.Write(context.Background(), testRecord("onion"))
	out.Write(context.Background(), testRecord("onion"))

	out.Close()

	got := c.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 batch on Close, got %d", len(got))
	}
	if len(got[0]) != 2 {
		t.Errorf("batch size = %d, want 2", len(got[0]))
	}
}
