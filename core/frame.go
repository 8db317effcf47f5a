package core

import (
	"sort"
	"time"

	"pkt.systems/paneflow/schema"
)

// ScheduleFrame runs one scheduling tick with no reported input backlog.
func (s *Scheduler) ScheduleFrame(budget int) []schema.ScheduledWork {
	return s.ScheduleFrameWithBacklog(budget, 0)
}

// ScheduleFrameWithBacklog selects the picks for one render tick. New
// transactions enter StagePreparing with their pane's latest sequence;
// picks for in-flight transactions grant one phase advance, reported
// back by the driver through MarkPhase and Complete.
func (s *Scheduler) ScheduleFrameWithBacklog(budget, inputBacklog int) []schema.ScheduledWork {
	if s.cfg.EmergencyDisable {
		s.metrics.SuppressedFrames++
		return nil
	}
	now := s.clock()
	if s.cfg.InputGuardrailEnabled && inputBacklog >= s.cfg.InputBacklogThreshold {
		budget -= s.cfg.InputReserveUnits
	}
	if budget <= 0 {
		return nil
	}
	stormed, newStorms := s.storms.evaluate(now)
	if newStorms > 0 {
		s.metrics.StormEventsDetected += uint64(newStorms)
		s.logger.Debug("intent storm detected", "stormed_tabs", len(stormed))
	}
	cands := s.collectCandidates(now)
	if len(cands) == 0 {
		return nil
	}
	s.orderCandidates(cands)
	shares := s.domainShares(cands, stormed, budget)

	remaining := budget
	tabPicks := make(map[schema.TabID]int)
	domainUsed := make(map[string]int)
	var picks []schema.ScheduledWork
	for i, row := range cands {
		forced := row.deferrals >= s.cfg.MaxDeferralsBeforeForce
		if !forced {
			if stormed[row.tabID] && tabPicks[row.tabID] >= s.cfg.MaxStormPicksPerTab {
				s.metrics.StormPicksThrottled++
				row.deferrals++
				continue
			}
			if shares != nil {
				key := row.domain.Key()
				if domainUsed[key]+row.units > shares[key] {
					s.metrics.DomainBudgetThrottled++
					row.deferrals++
					continue
				}
			}
		}
		if row.units > remaining {
			// A lone over-budget item may run anyway so it cannot
			// livelock behind a budget it will never fit.
			if i != len(cands)-1 || !s.cfg.AllowSingleOversubscription {
				row.deferrals++
				continue
			}
			s.metrics.OversubscribedPicks++
		}
		if forced {
			s.metrics.ForcedBackgroundRuns++
			s.logger.Debug("starved pane force scheduled",
				"pane", row.id, "deferrals", row.deferrals)
		}
		remaining -= row.units
		tabPicks[row.tabID]++
		if !forced && shares != nil {
			domainUsed[row.domain.Key()] += row.units
		}
		row.deferrals = 0
		work := schema.ScheduledWork{
			PaneID:             row.id,
			Units:              row.units,
			Cols:               row.cols,
			Rows:               row.rows,
			ForcedByStarvation: forced,
		}
		if !row.hasActive {
			s.startTransaction(row, forced, now)
		}
		work.Seq = row.activeSeq
		work.StartPhase = row.activePhase
		picks = append(picks, work)
	}
	return picks
}

// collectCandidates gathers pending rows and in-flight transactions
// ready to advance. Superseded transactions are cancelled here, at the
// boundary, and their panes sit out the rest of this tick.
func (s *Scheduler) collectCandidates(now time.Time) []*paneRow {
	cands := make([]*paneRow, 0, len(s.panes))
	for _, row := range s.panes {
		if row.superseded() {
			s.cancelActive(row, now)
			continue
		}
		if row.hasActive || row.pending() {
			cands = append(cands, row)
		}
	}
	return cands
}

// orderCandidates sorts starvation-forced rows first, then Interactive
// before Background, oldest-waiting first within a class.
func (s *Scheduler) orderCandidates(cands []*paneRow) {
	max := s.cfg.MaxDeferralsBeforeForce
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		af, bf := a.deferrals >= max, b.deferrals >= max
		if af != bf {
			return af
		}
		if a.class != b.class {
			return a.class == schema.WorkClassInteractive
		}
		at, bt := a.waitingSince(), b.waitingSince()
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.id < b.id
	})
}

// domainShares splits the budget across domains in proportion to each
// domain's storm-admissible candidate count. Shares round up so a small
// domain never rounds to zero.
func (s *Scheduler) domainShares(cands []*paneRow, stormed map[schema.TabID]bool, budget int) map[string]int {
	if !s.cfg.DomainBudgetEnabled {
		return nil
	}
	tabCount := make(map[schema.TabID]int)
	counts := make(map[string]int)
	total := 0
	for _, row := range cands {
		if stormed[row.tabID] {
			if tabCount[row.tabID] >= s.cfg.MaxStormPicksPerTab {
				continue
			}
			tabCount[row.tabID]++
		}
		counts[row.domain.Key()]++
		total++
	}
	if total == 0 {
		return nil
	}
	shares := make(map[string]int, len(counts))
	for key, n := range counts {
		shares[key] = (budget*n + total - 1) / total
	}
	return shares
}

func (s *Scheduler) startTransaction(row *paneRow, forced bool, now time.Time) {
	row.hasActive = true
	row.activeSeq = row.latestSeq
	row.activePhase = schema.StagePreparing
	row.activeForced = forced
	row.phaseStartedAt = now
	s.metrics.TransactionsStarted++
	s.appendEvent(row.id, schema.LifecycleDetail{
		Kind:   schema.DetailPrepareStarted,
		Seq:    row.activeSeq,
		Forced: forced,
	}, now)
}
