package loadgen

import (
	"pkt.systems/paneflow/driver"
	"pkt.systems/paneflow/schema"
)

// CostReflower models reflow cost per domain kind instead of doing
// real work. It is owned by the same tick loop as the driver, so the
// tallies need no synchronization.
type CostReflower struct {
	kindOf func(schema.PaneID) schema.DomainKind

	// PhaseUnits is the modeled cost of one phase step per domain kind.
	PhaseUnits map[schema.DomainKind]int

	// WorkDone accumulates modeled units across all phase steps.
	WorkDone int
	// PhaseSteps counts phase steps by kind.
	PhaseSteps map[schema.DomainKind]int
	// SyncApplies counts legacy fallback resizes.
	SyncApplies int
}

// NewCostReflower builds a cost model over the generator's pane set.
func NewCostReflower(g *Generator) *CostReflower {
	return &CostReflower{
		kindOf: func(pane schema.PaneID) schema.DomainKind {
			return g.DomainOf(pane).Kind
		},
		PhaseUnits: map[schema.DomainKind]int{
			schema.DomainLocal:       1,
			schema.DomainRemote:      3,
			schema.DomainMultiplexed: 2,
		},
		PhaseSteps: make(map[schema.DomainKind]int),
	}
}

func (c *CostReflower) step(pane schema.PaneID) driver.PhaseResult {
	kind := c.kindOf(pane)
	units := c.PhaseUnits[kind]
	if units <= 0 {
		units = 1
	}
	c.WorkDone += units
	c.PhaseSteps[kind]++
	return driver.PhaseResult{OK: true}
}

// Prepare implements driver.Reflower.
func (c *CostReflower) Prepare(w schema.ScheduledWork) driver.PhaseResult { return c.step(w.PaneID) }

// Reflow implements driver.Reflower.
func (c *CostReflower) Reflow(w schema.ScheduledWork) driver.PhaseResult { return c.step(w.PaneID) }

// Present implements driver.Reflower.
func (c *CostReflower) Present(w schema.ScheduledWork) driver.PhaseResult { return c.step(w.PaneID) }

// ApplySync implements driver.Reflower.
func (c *CostReflower) ApplySync(pane schema.PaneID, cols, rows int) {
	c.SyncApplies++
}
