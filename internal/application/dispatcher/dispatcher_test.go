package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openscience/moderation/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func notifyEvent() *event.Event {
	return event.NewEvent(event.TypeNotifyRequested, "preprint", "pp-1", "prov-1", nil)
}

func TestSubscribe(t *testing.T) {
	t.Run("dispatches to subscribed handler", func(t *testing.T) {
		d := NewDispatcher()
		called := false

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		if err := d.Dispatch(context.Background(), notifyEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !called {
			t.Error("expected handler to be called")
		}
	})

	t.Run("dispatches to multiple handlers in order", func(t *testing.T) {
		d := NewDispatcher()
		var order []int

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			order = append(order, 1)
			return nil
		})
		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			order = append(order, 2)
			return nil
		})

		if err := d.Dispatch(context.Background(), notifyEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("expected handlers to run in order [1, 2], got %v", order)
		}
	})

	t.Run("does not dispatch to other event types", func(t *testing.T) {
		d := NewDispatcher()
		called := false

		d.Subscribe(event.TypeReindexRequested, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		if err := d.Dispatch(context.Background(), notifyEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if called {
			t.Error("expected reindex handler not to receive a notify event")
		}
	})
}

func TestSubscribeNamed(t *testing.T) {
	t.Run("logs registration under the given name", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.SubscribeNamed(event.TypeNotifyRequested, "notifier", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})

	t.Run("lists handlers without exposing the function", func(t *testing.T) {
		d := NewDispatcher()

		d.SubscribeNamed(event.TypeNotifyRequested, "notifier", func(ctx context.Context, evt *event.Event) error {
			return nil
		})
		d.SubscribeNamed(event.TypeNotifyRequested, "audit_log", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		handlers := d.ListHandlers(event.TypeNotifyRequested)
		if len(handlers) != 2 {
			t.Fatalf("expected 2 handlers, got %d", len(handlers))
		}
		names := map[string]bool{}
		for _, h := range handlers {
			names[h.Name] = true
			if h.Handler != nil {
				t.Error("expected handler function not to be exposed")
			}
		}
		if !names["notifier"] || !names["audit_log"] {
			t.Error("expected both handlers to be listed")
		}
	})
}

func TestUnsubscribe(t *testing.T) {
	t.Run("removes only the named handler", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.SubscribeNamed(event.TypeNotifyRequested, "notifier", func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.SubscribeNamed(event.TypeNotifyRequested, "audit_log", func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		d.Unsubscribe(event.TypeNotifyRequested, "notifier")

		if err := d.Dispatch(context.Background(), notifyEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if called1 {
			t.Error("expected unsubscribed handler not to be called")
		}
		if !called2 {
			t.Error("expected remaining handler to be called")
		}
	})
}

func TestDispatch(t *testing.T) {
	t.Run("returns first error and stops", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("handler error")
		called := false

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), notifyEvent())
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error to wrap %v, got %v", expectedErr, err)
		}
		if called {
			t.Error("expected second handler not to be called after first error")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			panic("test panic")
		})

		if err := d.Dispatch(context.Background(), notifyEvent()); err == nil {
			t.Fatal("expected error from panic recovery")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged as error")
		}
	})

	t.Run("returns error when dispatcher is closed", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if err := d.Dispatch(context.Background(), notifyEvent()); err == nil {
			t.Fatal("expected error when dispatching to closed dispatcher")
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("returns before handlers complete", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), notifyEvent())
		if called.Load() > 0 {
			t.Error("expected handler not to have completed yet")
		}

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if called.Load() != 1 {
			t.Errorf("expected 1 handler call after close, got %d", called.Load())
		}
	})

	t.Run("logs handler errors without failing the dispatch", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), notifyEvent())
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if called.Load() != 1 {
			t.Errorf("expected second handler to run despite first error, got %d calls", called.Load())
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error to be logged")
		}
	})

	t.Run("does not dispatch after close", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		d.DispatchAsync(context.Background(), notifyEvent())
		time.Sleep(50 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected no handlers to be called after close")
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("waits for in-flight async handlers", func(t *testing.T) {
		d := NewDispatcher()
		var completed atomic.Bool

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(50 * time.Millisecond)
			completed.Store(true)
			return nil
		})

		d.DispatchAsync(context.Background(), notifyEvent())
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !completed.Load() {
			t.Error("expected async handler to complete before Close returns")
		}
	})

	t.Run("returns error on double close", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}
		if err := d.Close(); err == nil {
			t.Fatal("expected error on second close")
		}
	})
}

func TestConcurrency(t *testing.T) {
	t.Run("handles concurrent subscriptions", func(t *testing.T) {
		d := NewDispatcher()
		var wg sync.WaitGroup

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				d.SubscribeNamed(event.TypeNotifyRequested, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
					return nil
				})
			}(i)
		}
		wg.Wait()

		if got := len(d.ListHandlers(event.TypeNotifyRequested)); got != 10 {
			t.Errorf("expected 10 handlers, got %d", got)
		}
	})

	t.Run("handles concurrent dispatch", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.TypeNotifyRequested, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.Dispatch(context.Background(), notifyEvent())
			}()
		}
		wg.Wait()

		if called.Load() != 10 {
			t.Errorf("expected 10 handler calls, got %d", called.Load())
		}
	})
}
