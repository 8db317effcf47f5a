package eventbus

import (
	"context"
	"sync"

	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Topic identifies the event payload.
type Topic string

const (
	// TopicLifecycle carries new lifecycle log entries.
	TopicLifecycle Topic = "lifecycle"
	// TopicSnapshot carries scheduler snapshots taken after each tick.
	TopicSnapshot Topic = "snapshot"
	// TopicWatchdog carries watchdog reports and the tier they produced.
	TopicWatchdog Topic = "watchdog"
)

// Event is one bus message. The field matching Type is set.
type Event struct {
	Type      Topic
	Lifecycle []schema.LifecycleEvent
	Snapshot  schema.SchedulerSnapshot
	Watchdog  schema.WatchdogReport
	Tier      schema.DegradationTier
}

// Bus fans driver publications out to per-topic subscribers. Publishing
// never blocks; a subscriber that stops draining loses events.
type Bus struct {
	mu    sync.Mutex
	subs  map[Topic]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[Topic]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the topic and returns a channel
// plus cancel.
func (b *Bus) Subscribe(topic Topic) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	topicSubs := b.subs[topic]
	if topicSubs == nil {
		topicSubs = make(map[chan Event]struct{})
		b.subs[topic] = topicSubs
	}
	topicSubs[ch] = struct{}{}
	count := len(topicSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("topic", topic).Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		if subs := b.subs[topic]; subs != nil {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, topic)
			}
		}
		b.mu.Unlock()
		close(ch)
		if b.log != nil {
			b.log.With("topic", topic).Debug("eventbus unsubscribe")
		}
	}
}

// OnLifecycle publishes freshly appended lifecycle events.
func (b *Bus) OnLifecycle(events []schema.LifecycleEvent) {
	if len(events) == 0 {
		return
	}
	b.publish(TopicLifecycle, Event{Type: TopicLifecycle, Lifecycle: events})
}

// OnSnapshot publishes a post-tick scheduler snapshot.
func (b *Bus) OnSnapshot(snap schema.SchedulerSnapshot) {
	b.publish(TopicSnapshot, Event{Type: TopicSnapshot, Snapshot: snap})
}

// OnWatchdog publishes a watchdog report and the resulting tier.
func (b *Bus) OnWatchdog(report schema.WatchdogReport, tier schema.DegradationTier) {
	b.publish(TopicWatchdog, Event{Type: TopicWatchdog, Watchdog: report, Tier: tier})
}

func (b *Bus) publish(topic Topic, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	topicSubs := b.subs[topic]
	subs := make([]chan Event, 0, len(topicSubs))
	for sub := range topicSubs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.With("topic", topic).Trace("eventbus dropped", "count", dropped)
	}
}
