package console

import (
	"context"
	"io"
	"time"

	gliderssh "github.com/gliderlabs/ssh"

	"pkt.systems/paneflow/internal/eventbus"
	"pkt.systems/paneflow/schema"
)

// StateSource supplies the dashboard's initial state. Live updates
// arrive over the event bus; the source fills the frame before the
// first publication lands.
type StateSource interface {
	LatestSnapshot() *schema.DebugSnapshot
	Watchdog() schema.WatchdogReport
	Tier() schema.DegradationTier
}

const redrawInterval = time.Second

type dashboardSession struct {
	out       io.Writer
	source    StateSource
	bus       *eventbus.Bus
	screen    *screen
	theme     tuiTheme
	eventTail int
	clock     func() time.Time

	width  int
	height int
	state  dashboardState
}

func newDashboardSession(out io.Writer, source StateSource, bus *eventbus.Bus, eventTail int, clock func() time.Time) *dashboardSession {
	if eventTail <= 0 {
		eventTail = 64
	}
	if clock == nil {
		clock = time.Now
	}
	s := &dashboardSession{
		out:       out,
		source:    source,
		bus:       bus,
		screen:    newScreen(out),
		theme:     defaultTheme,
		eventTail: eventTail,
		clock:     clock,
		width:     80,
		height:    24,
	}
	s.state.StartedAt = clock()
	s.state.ShowEvents = true
	if source != nil {
		if snap := source.LatestSnapshot(); snap != nil {
			s.state.Snapshot = *snap
			s.appendEvents(snap.Events)
		}
		s.state.Report = source.Watchdog()
		s.state.Tier = source.Tier()
	}
	return s
}

func (s *dashboardSession) SetSize(width, height int) {
	if width > 0 {
		s.width = width
	}
	if height > 0 {
		s.height = height
	}
}

// Run paints frames until the input closes, the context ends, or the
// operator quits. It owns all session state; bus events are the only
// external mutation path.
func (s *dashboardSession) Run(ctx context.Context, input io.Reader, winCh <-chan gliderssh.Window) error {
	var snapCh, watchCh, lifeCh <-chan eventbus.Event
	if s.bus != nil {
		var cancelSnap, cancelWatch, cancelLife func()
		snapCh, cancelSnap = s.bus.Subscribe(eventbus.TopicSnapshot)
		watchCh, cancelWatch = s.bus.Subscribe(eventbus.TopicWatchdog)
		lifeCh, cancelLife = s.bus.Subscribe(eventbus.TopicLifecycle)
		defer cancelSnap()
		defer cancelWatch()
		defer cancelLife()
	}

	keys := make(chan key, 16)
	go readKeys(input, keys)

	s.screen.EnterAltScreen()
	defer s.screen.ExitAltScreen()

	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()

	s.redraw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case win, ok := <-winCh:
			if !ok {
				return nil
			}
			s.SetSize(win.Width, win.Height)
			s.redraw()
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			if quit := s.handleKey(k); quit {
				return nil
			}
		case event := <-snapCh:
			s.handleEvent(event)
		case event := <-watchCh:
			s.handleEvent(event)
		case event := <-lifeCh:
			s.handleEvent(event)
		case <-ticker.C:
			if !s.state.Paused {
				s.redraw()
			}
		}
	}
}

// handleKey applies one keypress and reports whether the session should end.
func (s *dashboardSession) handleKey(k key) bool {
	switch k.kind {
	case keyCtrlC, keyCtrlD:
		return true
	case keyRune:
		switch k.r {
		case 'q', 'Q':
			return true
		case 'p', 'P':
			s.state.Paused = !s.state.Paused
			s.redraw()
		case 'e', 'E':
			s.state.ShowEvents = !s.state.ShowEvents
			s.redraw()
		}
	}
	return false
}

// handleEvent folds one bus event into the frame state. Updates are
// absorbed even while paused so resuming shows current state.
func (s *dashboardSession) handleEvent(event eventbus.Event) {
	switch event.Type {
	case eventbus.TopicSnapshot:
		s.state.Snapshot.SchedulerSnapshot = event.Snapshot
	case eventbus.TopicWatchdog:
		s.state.Report = event.Watchdog
		s.state.Tier = event.Tier
	case eventbus.TopicLifecycle:
		s.appendEvents(event.Lifecycle)
	}
	if !s.state.Paused {
		s.redraw()
	}
}

func (s *dashboardSession) appendEvents(events []schema.LifecycleEvent) {
	if len(events) == 0 {
		return
	}
	s.state.Events = append(s.state.Events, events...)
	if overflow := len(s.state.Events) - s.eventTail; overflow > 0 {
		s.state.Events = append(s.state.Events[:0], s.state.Events[overflow:]...)
	}
}

func (s *dashboardSession) redraw() {
	s.state.Now = s.clock()
	_ = s.screen.Render(renderDashboard(s.state, s.width, s.height, s.theme))
}
