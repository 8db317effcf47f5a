package eventbus

import (
	"testing"
	"time"

	"pkt.systems/paneflow/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe(TopicLifecycle)
	defer cancel()

	events := []schema.LifecycleEvent{{Seq: 1, PaneID: "pane-1", Stage: schema.StageQueued}}
	bus.OnLifecycle(events)

	select {
	case got := <-ch:
		if got.Type != TopicLifecycle {
			t.Fatalf("expected lifecycle event, got %v", got.Type)
		}
		if len(got.Lifecycle) != 1 || got.Lifecycle[0].PaneID != "pane-1" {
			t.Fatalf("unexpected payload: %+v", got.Lifecycle)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe(TopicWatchdog)
	defer cancel()

	bus.OnSnapshot(schema.SchedulerSnapshot{PendingTotal: 1})
	select {
	case got := <-ch:
		t.Fatalf("watchdog subscriber received %v event", got.Type)
	default:
	}

	bus.OnWatchdog(schema.WatchdogReport{Severity: schema.SeverityWarning}, schema.TierQualityReduced)
	select {
	case got := <-ch:
		if got.Watchdog.Severity != schema.SeverityWarning || got.Tier != schema.TierQualityReduced {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for watchdog event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe(TopicSnapshot)
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe(TopicSnapshot)
	defer cancel()

	var sendCh chan Event
	bus.mu.Lock()
	for ch := range bus.subs[TopicSnapshot] {
		sendCh = ch
		break
	}
	bus.mu.Unlock()
	if sendCh == nil {
		t.Fatalf("expected subscriber channel")
	}
	sendCh <- Event{Type: TopicSnapshot}
	done := make(chan struct{})
	go func() {
		bus.OnSnapshot(schema.SchedulerSnapshot{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}

func TestEmptyLifecycleBatchIsNotPublished(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe(TopicLifecycle)
	defer cancel()

	bus.OnLifecycle(nil)
	select {
	case got := <-ch:
		t.Fatalf("empty batch published: %+v", got)
	default:
	}
}
