package loadgen

import (
	"math/rand"
	"sort"
	"time"

	"pkt.systems/paneflow/schema"
)

// Generator walks a scenario and emits the intents due on each tick.
// All randomness is drawn from one seeded source at construction, so
// the full emission schedule is fixed once New returns.
type Generator struct {
	scenario Scenario
	seqs     map[schema.PaneID]schema.IntentSeq
	domains  map[schema.PaneID]schema.Domain
	byTick   map[int][]Step
}

// New builds the emission schedule for a scenario.
func New(scenario Scenario, seed int64) *Generator {
	rng := rand.New(rand.NewSource(seed))
	byTick := make(map[int][]Step)
	domains := make(map[schema.PaneID]schema.Domain)
	for _, step := range scenario.Steps {
		domains[step.Pane] = step.Domain
		count := step.Count
		if count <= 0 {
			count = 1
		}
		ticks := make([]int, 0, count)
		for i := 0; i < count; i++ {
			at := step.Tick
			if step.SpreadTicks > 0 {
				at += rng.Intn(step.SpreadTicks + 1)
			}
			ticks = append(ticks, at)
		}
		sort.Ints(ticks)
		for _, at := range ticks {
			emission := step
			emission.Tick = at
			emission.Count = 1
			byTick[at] = append(byTick[at], emission)
		}
	}
	return &Generator{
		scenario: scenario,
		seqs:     make(map[schema.PaneID]schema.IntentSeq),
		domains:  domains,
		byTick:   byTick,
	}
}

// Ticks returns the scenario length in ticks.
func (g *Generator) Ticks() int { return g.scenario.Ticks }

// DomainOf returns the domain a scenario pane belongs to.
func (g *Generator) DomainOf(pane schema.PaneID) schema.Domain {
	return g.domains[pane]
}

// IntentsForTick emits the intents due on one tick. Sequence numbers
// are monotonic per pane across the whole run; geometry walks with the
// sequence so consecutive intents are genuinely distinct resizes.
func (g *Generator) IntentsForTick(tick int, now time.Time) []schema.ResizeIntent {
	steps := g.byTick[tick]
	if len(steps) == 0 {
		return nil
	}
	intents := make([]schema.ResizeIntent, 0, len(steps))
	for _, step := range steps {
		g.seqs[step.Pane]++
		seq := g.seqs[step.Pane]
		units := step.Units
		if units <= 0 {
			units = 1
		}
		intents = append(intents, schema.ResizeIntent{
			PaneID:      step.Pane,
			Seq:         seq,
			Class:       step.Class,
			Units:       units,
			SubmittedAt: now,
			Domain:      step.Domain,
			TabID:       step.Tab,
			Cols:        80 + int(seq%40),
			Rows:        24 + int(seq%12),
		})
	}
	return intents
}
