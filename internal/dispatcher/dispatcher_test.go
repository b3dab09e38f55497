package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OpenFunscripter/playback/internal/funscript"
	"github.com/OpenFunscripter/playback/internal/tcode"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) hasPrefix(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, msg := range l.messages {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func stroke(ch tcode.Channel) tcode.StrokeEvent {
	return tcode.StrokeEvent{
		Channel: ch,
		Start:   funscript.NewAction(1, 0),
		Next:    funscript.NewAction(1.5, 100),
		AtMs:    1000,
	}
}

func TestDispatcher_SyncSink(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got tcode.StrokeEvent
	d.Register("test", func(e tcode.StrokeEvent) error {
		got = e
		return nil
	})

	if err := d.Dispatch("test", stroke(tcode.R0)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got.Channel != tcode.R0 {
		t.Errorf("expected channel R0, got %v", got.Channel)
	}
}

func TestDispatcher_UnknownSink(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := d.Dispatch("unknown", stroke(tcode.L0))

	if !errors.Is(err, ErrUnknownSink) {
		t.Errorf("expected ErrUnknownSink, got %v", err)
	}
}

func TestDispatcher_PublishFansOutInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var order []string
	for _, name := range []string{"b", "a", "c"} {
		d.Register(name, func(e tcode.StrokeEvent) error {
			order = append(order, name)
			return nil
		})
	}

	if err := d.Publish(stroke(tcode.L0)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if strings.Join(order, ",") != "b,a,c" {
		t.Errorf("unexpected order %v", order)
	}
	if strings.Join(d.Sinks(), ",") != "b,a,c" {
		t.Errorf("unexpected sinks %v", d.Sinks())
	}
}

func TestDispatcher_PublishJoinsErrors(t *testing.T) {
	d, logger := newTestDispatcher(t)

	boom := errors.New("boom")
	called := false
	d.Register("bad", func(e tcode.StrokeEvent) error { return boom })
	d.Register("good", func(e tcode.StrokeEvent) error {
		called = true
		return nil
	})

	err := d.Publish(stroke(tcode.L0))
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped boom, got %v", err)
	}
	if !called {
		t.Error("later sink was not called")
	}

	d.OnStroke(stroke(tcode.L0))
	if !logger.hasPrefix("ERROR") {
		t.Error("expected error log message")
	}
}

func TestDispatcher_ReRegisterReplaces(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var first, second int
	d.Register("s", func(e tcode.StrokeEvent) error { first++; return nil })
	d.Register("s", func(e tcode.StrokeEvent) error { second++; return nil })

	_ = d.Publish(stroke(tcode.L0))

	if first != 0 || second != 1 {
		t.Errorf("expected only the replacement to run, got %d/%d", first, second)
	}
	if len(d.Sinks()) != 1 {
		t.Errorf("expected a single sink, got %v", d.Sinks())
	}
}

func TestDispatcher_ReRegisterBufferedThenClose(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var first, second atomic.Int32
	d.Register("s", func(e tcode.StrokeEvent) error { first.Add(1); return nil }, Buffered(4))
	d.Register("s", func(e tcode.StrokeEvent) error { second.Add(1); return nil }, Buffered(4))

	if err := d.Dispatch("s", stroke(tcode.L0)); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after replacing a buffered sink")
	}

	if first.Load() != 0 || second.Load() != 1 {
		t.Errorf("expected only the replacement to run, got %d/%d", first.Load(), second.Load())
	}
}

func TestDispatcher_RegisterAfterClose(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Close()

	d.Register("late", func(e tcode.StrokeEvent) error { return nil }, Buffered(4))

	if d.HasSink("late") {
		t.Error("expected registration after close to be ignored")
	}
	if !logger.hasPrefix("ERROR: sink registered after close") {
		t.Error("expected registration after close to be logged")
	}
	d.Close()
}

func TestDispatcher_BufferedSink(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("buffered", func(e tcode.StrokeEvent) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		if err := d.Dispatch("buffered", stroke(tcode.L0)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// Block the sink so queue fills up
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("full", func(e tcode.StrokeEvent) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(2))

	d.Dispatch("full", stroke(tcode.L0)) // being processed
	<-started
	d.Dispatch("full", stroke(tcode.L0)) // queued
	d.Dispatch("full", stroke(tcode.L0)) // queued

	// This should be dropped
	err := d.Dispatch("full", stroke(tcode.L0))

	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(block)
	d.Close()
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("blocking", func(e tcode.StrokeEvent) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(1), Blocking())

	// First stroke starts processing
	d.Dispatch("blocking", stroke(tcode.L0))
	<-started
	// Second stroke fills the queue
	d.Dispatch("blocking", stroke(tcode.L0))

	// Third stroke should block (test with timeout)
	done := make(chan struct{})
	go func() {
		d.Dispatch("blocking", stroke(tcode.L0))
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Expected - dispatch is blocking
	}

	close(block)
	<-done
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register("slow", func(e tcode.StrokeEvent) error {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		d.Dispatch("slow", stroke(tcode.L0))
	}
	d.Close()

	if processed.Load() != 5 {
		t.Errorf("expected 5 processed after close, got %d", processed.Load())
	}
	if err := d.Dispatch("slow", stroke(tcode.L0)); err == nil {
		t.Error("expected error after close")
	}

	d.Close()
}

func TestDispatcher_LoggedSink(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("logged", func(e tcode.StrokeEvent) error {
		return nil
	}, Logged())

	d.Dispatch("logged", stroke(tcode.V1))

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected at least 2 log messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_LoggedSinkError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("error", func(e tcode.StrokeEvent) error {
		return fmt.Errorf("test error")
	}, Logged())

	d.Dispatch("error", stroke(tcode.L0))

	if !logger.hasPrefix("ERROR") {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasSink(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("exists", func(e tcode.StrokeEvent) error { return nil })

	if !d.HasSink("exists") {
		t.Error("expected sink to exist")
	}

	if d.HasSink("missing") {
		t.Error("expected sink to not exist")
	}
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	d.Register("combined", func(e tcode.StrokeEvent) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100), Logged())

	if err := d.Dispatch("combined", stroke(tcode.L0)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	wg.Wait()
	d.Close()

	if processed.Load() != 1 {
		t.Errorf("expected 1 processed, got %d", processed.Load())
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected log messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_ObservesProducers(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got []tcode.StrokeEvent
	d.Register("collect", func(e tcode.StrokeEvent) error {
		got = append(got, e)
		return nil
	})

	var observer tcode.StrokeObserver = d
	observer.OnStroke(stroke(tcode.L2))

	if len(got) != 1 || got[0].Channel != tcode.L2 {
		t.Errorf("unexpected strokes %v", got)
	}
}
