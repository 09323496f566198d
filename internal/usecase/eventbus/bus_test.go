package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"devicepair/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.Default())
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventDevicePaired, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventDevicePaired {
			got.Add(1)
		}
	})
	bus.Subscribe(domain.EventDeviceNotPaired, func(_ context.Context, _ domain.Event) {
		t.Error("unexpected delivery to other type")
	})

	bus.Publish(context.Background(), newEvent(domain.EventDevicePaired))
	bus.Close()
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventPairingStarted))
	bus.Publish(context.Background(), newEvent(domain.EventPairingCodeIssue))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventSTTConfirmed, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})
	unsub()
	bus.Publish(context.Background(), newEvent(domain.EventSTTConfirmed))
	bus.Close()

	if got.Load() != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", got.Load())
	}
}

func TestOnceFiresSingleTime(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Once(domain.EventSystemReady, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), newEvent(domain.EventSystemReady))
	}
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestOnceCancelled(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	cancel := bus.Once(domain.EventWifiSetupCompleted, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})
	cancel()

	bus.Publish(context.Background(), newEvent(domain.EventWifiSetupCompleted))
	bus.Close()
	if got.Load() != 0 {
		t.Fatalf("expected 0, got %d", got.Load())
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventPairingIntent, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventPairingIntent))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventGUIPage, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	bus.Subscribe(domain.EventGUIPage, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventGUIPage))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected 1 (second handler), got %d", got.Load())
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventPairingEnded, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventPairingEnded))
	bus.Close()

	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	bus.Publish(context.Background(), newEvent(domain.EventPairingEnded))
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("expected no delivery after close, got %d", got.Load())
	}
}
