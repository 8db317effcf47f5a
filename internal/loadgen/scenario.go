// Package loadgen produces scripted and randomized resize-intent
// scenarios for the sim command and heavy tests. Generation is
// deterministic for a fixed seed so a scenario run can be replayed.
package loadgen

import (
	"fmt"

	"github.com/google/uuid"

	"pkt.systems/paneflow/schema"
)

// Step emits a batch of intents for one pane. Count intents are placed
// at ticks Tick through Tick+SpreadTicks, positions drawn from the
// generator's seeded source.
type Step struct {
	Tick        int
	Pane        schema.PaneID
	Tab         schema.TabID
	Domain      schema.Domain
	Class       schema.WorkClass
	Units       int
	Count       int
	SpreadTicks int
}

// Scenario is a named intent script. RunID tags one generation run so
// log lines from repeated sim invocations stay distinguishable.
type Scenario struct {
	RunID string
	Name  string
	Ticks int
	Steps []Step
}

// LocalDrag models an operator dragging a split: one local interactive
// intent per tick for the given number of ticks.
func LocalDrag(pane schema.PaneID, tab schema.TabID, ticks int) Scenario {
	if ticks <= 0 {
		ticks = 60
	}
	steps := make([]Step, 0, ticks)
	for i := 0; i < ticks; i++ {
		steps = append(steps, Step{
			Tick:   i,
			Pane:   pane,
			Tab:    tab,
			Domain: schema.LocalDomain(),
			Class:  schema.WorkClassInteractive,
			Units:  1,
			Count:  1,
		})
	}
	return Scenario{
		RunID: uuid.NewString(),
		Name:  "local-drag",
		Ticks: ticks + 8,
		Steps: steps,
	}
}

// SSHJitterStorm models remote round-trip jitter amplifying one resize
// into a burst: each pane on the tab emits burst intents spread over a
// short jitter window.
func SSHJitterStorm(host string, tab schema.TabID, panes, burst int) Scenario {
	if panes <= 0 {
		panes = 4
	}
	if burst <= 0 {
		burst = 8
	}
	steps := make([]Step, 0, panes)
	for i := 0; i < panes; i++ {
		steps = append(steps, Step{
			Tick:        0,
			Pane:        schema.PaneID(fmt.Sprintf("ssh-%s-%d", host, i)),
			Tab:         tab,
			Domain:      schema.RemoteDomain(host),
			Class:       schema.WorkClassBackground,
			Units:       2,
			Count:       burst,
			SpreadTicks: 6,
		})
	}
	return Scenario{
		RunID: uuid.NewString(),
		Name:  "ssh-jitter-storm",
		Ticks: 120,
		Steps: steps,
	}
}

// MuxBurst models a multiplexed remote redrawing every pane at once.
func MuxBurst(endpoint string, tab schema.TabID, panes int) Scenario {
	if panes <= 0 {
		panes = 6
	}
	steps := make([]Step, 0, panes)
	for i := 0; i < panes; i++ {
		steps = append(steps, Step{
			Tick:        0,
			Pane:        schema.PaneID(fmt.Sprintf("mux-%s-%d", endpoint, i)),
			Tab:         tab,
			Domain:      schema.MultiplexedDomain(endpoint),
			Class:       schema.WorkClassBackground,
			Units:       3,
			Count:       2,
			SpreadTicks: 2,
		})
	}
	return Scenario{
		RunID: uuid.NewString(),
		Name:  "mux-burst",
		Ticks: 90,
		Steps: steps,
	}
}

// Named returns a builtin scenario by name.
func Named(name string) (Scenario, error) {
	switch name {
	case "local-drag":
		return LocalDrag("pane-local", "tab-1", 60), nil
	case "ssh-jitter-storm":
		return SSHJitterStorm("build-host", "tab-7", 4, 8), nil
	case "mux-burst":
		return MuxBurst("tmux-main", "tab-8", 6), nil
	case "mixed":
		return Mixed(), nil
	default:
		return Scenario{}, fmt.Errorf("unknown scenario %q", name)
	}
}

// Mixed combines local drag pressure with remote storms, the workload
// the fairness and starvation machinery exists for.
func Mixed() Scenario {
	drag := LocalDrag("pane-local", "tab-1", 40)
	storm := SSHJitterStorm("build-host", "tab-7", 3, 6)
	burst := MuxBurst("tmux-main", "tab-8", 4)
	steps := append([]Step{}, drag.Steps...)
	steps = append(steps, storm.Steps...)
	for _, s := range burst.Steps {
		s.Tick += 10
		steps = append(steps, s)
	}
	return Scenario{
		RunID: uuid.NewString(),
		Name:  "mixed",
		Ticks: 160,
		Steps: steps,
	}
}

// ScenarioNames lists the builtin scenarios.
func ScenarioNames() []string {
	return []string{"local-drag", "ssh-jitter-storm", "mux-burst", "mixed"}
}
