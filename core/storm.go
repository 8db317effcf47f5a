package core

import (
	"time"

	"pkt.systems/paneflow/schema"
)

// tabWindow tracks recent intent arrivals for one tab.
type tabWindow struct {
	arrivals []time.Time
	stormed  bool
}

// stormTracker maintains per-tab sliding windows of intent arrivals.
type stormTracker struct {
	window    time.Duration
	threshold int
	tabs      map[schema.TabID]*tabWindow
}

func newStormTracker(window time.Duration, threshold int) *stormTracker {
	return &stormTracker{
		window:    window,
		threshold: threshold,
		tabs:      make(map[schema.TabID]*tabWindow),
	}
}

func (t *stormTracker) record(tab schema.TabID, at time.Time) {
	w := t.tabs[tab]
	if w == nil {
		w = &tabWindow{}
		t.tabs[tab] = w
	}
	w.arrivals = append(w.arrivals, at)
}

func (w *tabWindow) prune(cutoff time.Time) {
	drop := 0
	for drop < len(w.arrivals) && w.arrivals[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.arrivals = append(w.arrivals[:0], w.arrivals[drop:]...)
	}
}

// evaluate prunes every window and returns the currently stormed tabs
// plus the number of tabs that newly entered the stormed state.
func (t *stormTracker) evaluate(now time.Time) (map[schema.TabID]bool, int) {
	cutoff := now.Add(-t.window)
	stormed := make(map[schema.TabID]bool)
	newStorms := 0
	for tab, w := range t.tabs {
		w.prune(cutoff)
		active := len(w.arrivals) > t.threshold
		if active {
			stormed[tab] = true
			if !w.stormed {
				newStorms++
			}
		}
		w.stormed = active
		if len(w.arrivals) == 0 && !active {
			delete(t.tabs, tab)
		}
	}
	return stormed, newStorms
}

// active counts tabs currently over the threshold without changing
// storm onset state.
func (t *stormTracker) active(now time.Time) int {
	cutoff := now.Add(-t.window)
	n := 0
	for _, w := range t.tabs {
		w.prune(cutoff)
		if len(w.arrivals) > t.threshold {
			n++
		}
	}
	return n
}
