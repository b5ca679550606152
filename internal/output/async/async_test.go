package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/wastenot/internal/model"
)

type mockOutput struct {
	mu      sync.Mutex
	records []model.FeedbackRecord
	closed  bool
	err     error         // if set, Write returns this
	delay   time.Duration // if >0, Write sleeps first
}

func (m *mockOutput) Write(_ context.Context, rec model.FeedbackRecord) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return m.err
}

func (m *mockOutput) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockOutput) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func testRecord(i int) model.FeedbackRecord {
	return model.FeedbackRecord{
		ID:             fmt.Sprintf("fb-%d", i),
		PredictedLabel: "egg",
		Type:           model.FeedbackGood,
	}
}

func TestRecordsFlowThroughInOrder(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	for i := 0; i < 10; i++ {
		if err := a.Write(context.Background(), testRecord(i)); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if inner.count() != 10 {
		t.Fatalf("got %d records, want 10", inner.count())
	}
	for i, rec := range inner.records {
		if rec.ID != fmt.Sprintf("fb-%d", i) {
			t.Errorf("record %d id = %q", i, rec.ID)
		}
	}
	if !inner.closed {
		t.Error("inner output not closed")
	}
}

func TestBackpressureBlocks(t *testing.T) {
	inner := &mockOutput{delay: 50 * time.Millisecond}
	a := New(inner, WithBufferSize(1))

	a.Write(context.Background(), testRecord(0))

	done := make(chan struct{})
	go func() {
		a.Write(context.Background(), testRecord(1))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked indefinitely (expected eventual unblock via drain)")
	}

	a.Close()
}

func TestWriteHonorsContextWhenFull(t *testing.T) {
	inner := &mockOutput{delay: time.Second}
	a := New(inner, WithBufferSize(1), WithDrainTimeout(10*time.Millisecond))
	defer a.Close()

	// One record in flight, one in the buffer.
	a.Write(context.Background(), testRecord(0))
	a.Write(context.Background(), testRecord(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.Write(ctx, testRecord(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestDropOnFull(t *testing.T) {
	inner := &mockOutput{delay: 100 * time.Millisecond}
	a := New(inner, WithBufferSize(1), WithDropOnFull())

	for i := 0; i < 20; i++ {
		a.Write(context.Background(), testRecord(i))
	}

	a.Close()

	if inner.count() == 20 {
		t.Error("expected some records to be dropped in drop-on-full mode")
	}
	if inner.count() == 0 {
		t.Error("expected at least some records to be delivered")
	}
	if got := a.Dropped(); got != int64(20-inner.count()) {
		t.Errorf("Dropped() = %d, delivered %d of 20", got, inner.count())
	}
}

func TestCloseDrainsRemaining(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(100))

	for i := 0; i < 50; i++ {
		a.Write(context.Background(), testRecord(i))
	}

	a.Close()

	if inner.count() != 50 {
		t.Errorf("after Close, got %d records, want 50 (drain incomplete)", inner.count())
	}
}

func TestErrorCallbackInvoked(t *testing.T) {
	inner := &mockOutput{err: errors.New("write failed")}
	var errorCount atomic.Int64
	a := New(inner, WithBufferSize(16), WithOnError(func(err error) {
		errorCount.Add(1)
	}))

	for i := 0; i < 5; i++ {
		a.Write(context.Background(), testRecord(i))
	}

	a.Close()

	if errorCount.Load() != 5 {
		t.Errorf("error callback called %d times, want 5", errorCount.Load())
	}
}

func TestNoGoroutineLeakAfterClose(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	a.Write(context.Background(), testRecord(0))
	a.Close()

	select {
	case <-a.done:
	case <-time.After(time.Second):
		t.Fatal("drain goroutine did not exit after Close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	a.Write(context.Background(), testRecord(0))

	if err := a.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	for _, dropOnFull := range []bool{false, true} {
		t.Run(fmt.Sprintf("dropOnFull=%v", dropOnFull), func(t *testing.T) {
			inner := &mockOutput{}
			opts := []Option{WithBufferSize(4)}
			if dropOnFull {
				opts = append(opts, WithDropOnFull())
			}
			a := New(inner, opts...)
			a.Close()

			if err := a.Write(context.Background(), testRecord(0)); !errors.Is(err, ErrClosed) {
				t.Errorf("err = %v, want ErrClosed", err)
			}
			if inner.count() != 0 {
				t.Errorf("inner got %d records after Close", inner.count())
			}
		})
	}
}

func TestWritesRacingClose(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(8), WithDropOnFull())

	var wg sync.WaitGroup
	var accepted atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				err := a.Write(context.Background(), testRecord(i*100+j))
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, ErrClosed):
					return
				default:
					t.Errorf("Write error: %v", err)
					return
				}
			}
		}(i)
	}

	time.Sleep(time.Millisecond)
	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	wg.Wait()

	if got := int64(inner.count()) + a.Dropped(); got != accepted.Load() {
		t.Errorf("delivered+dropped = %d, accepted = %d", got, accepted.Load())
	}
}
