package core

import "pkt.systems/paneflow/schema"

// eventLog is the bounded in-memory lifecycle history. Oldest entries
// are evicted first once max is exceeded.
type eventLog struct {
	entries []schema.LifecycleEvent
	max     int
}

func newEventLog(max int) *eventLog {
	if max <= 0 {
		max = schema.DefaultMaxLifecycleEvents
	}
	return &eventLog{max: max}
}

func (l *eventLog) append(ev schema.LifecycleEvent) {
	l.entries = append(l.entries, ev)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// since returns retained events with Seq greater than the given seq.
func (l *eventLog) since(seq schema.EventSeq) []schema.LifecycleEvent {
	idx := len(l.entries)
	for i, ev := range l.entries {
		if ev.Seq > seq {
			idx = i
			break
		}
	}
	if idx == len(l.entries) {
		return nil
	}
	return append([]schema.LifecycleEvent(nil), l.entries[idx:]...)
}

// tail returns the newest limit events; limit <= 0 returns all retained.
func (l *eventLog) tail(limit int) []schema.LifecycleEvent {
	entries := l.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if len(entries) == 0 {
		return nil
	}
	return append([]schema.LifecycleEvent(nil), entries...)
}
