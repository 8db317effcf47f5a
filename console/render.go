package console

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"pkt.systems/paneflow/schema"
)

// dashboardState is everything one frame paints. It is assembled by the
// session loop and handed to pure render functions, so rendering can be
// tested without an SSH session.
type dashboardState struct {
	Snapshot   schema.DebugSnapshot
	Report     schema.WatchdogReport
	Tier       schema.DegradationTier
	Events     []schema.LifecycleEvent
	Paused     bool
	ShowEvents bool
	StartedAt  time.Time
	Now        time.Time
}

func renderDashboard(state dashboardState, width, height int, theme tuiTheme) []string {
	if width < 20 {
		width = 20
	}
	if height < 6 {
		height = 6
	}
	lines := make([]string, 0, height)
	lines = append(lines, renderHeader(state, width, theme))
	lines = append(lines, renderSummary(state, width, theme))
	lines = append(lines, "")

	body := height - len(lines) - 1
	if body < 1 {
		body = 1
	}
	paneLines := renderPaneTable(state.Snapshot, state.Now, body, theme)
	lines = append(lines, paneLines...)
	body -= len(paneLines)

	if body > 0 {
		if stalls := renderStalls(state.Report, body, theme); len(stalls) > 0 {
			lines = append(lines, stalls...)
			body -= len(stalls)
		}
	}
	if state.ShowEvents && body > 1 {
		lines = append(lines, renderEventTail(state.Events, body, theme)...)
	}

	for len(lines) < height-1 {
		lines = append(lines, "")
	}
	lines = lines[:height-1]
	lines = append(lines, renderFooter(state, width, theme))

	for i, line := range lines {
		lines[i] = trimANSIToWidth(line, width) + ansiReset
	}
	return lines
}

func renderHeader(state dashboardState, width int, theme tuiTheme) string {
	uptime := "0s"
	if !state.StartedAt.IsZero() && state.Now.After(state.StartedAt) {
		uptime = formatAge(state.Now.Sub(state.StartedAt))
	}
	gate := "gate:open"
	if !state.Snapshot.Gate.Active {
		gate = "gate:CLOSED"
		if state.Snapshot.Gate.LegacyFallback {
			gate = "gate:CLOSED(sync)"
		}
	}
	paused := ""
	if state.Paused {
		paused = "  PAUSED"
	}
	text := fmt.Sprintf(" paneflow  %s  %s  %s  up %s%s",
		severityLabel(state.Report.Severity, theme),
		tierLabel(state.Tier, theme),
		gate, uptime, paused)
	pad := width - visibleWidth(text)
	if pad > 0 {
		text += strings.Repeat(" ", pad)
	}
	return ansiBgRGB(theme.HeaderBG) + ansiFgRGB(theme.HeaderFG) + text + ansiReset
}

func renderSummary(state dashboardState, width int, theme tuiTheme) string {
	m := state.Snapshot.Metrics
	meta := ansiFgRGB(theme.MetaFG)
	val := ansiFgRGB(theme.ValueFG)
	return fmt.Sprintf("%spending%s %d  %sactive%s %d  %sstorm tabs%s %d  %sdone%s %d  %scancelled%s %d  %sfailed%s %d  %sforced%s %d",
		meta, val, state.Snapshot.PendingTotal,
		meta, val, state.Snapshot.ActiveTotal,
		meta, val, state.Snapshot.StormTabs,
		meta, val, m.TransactionsCompleted,
		meta, val, m.TransactionsCancelled,
		meta, val, m.TransactionsFailed,
		meta, val, m.ForcedBackgroundRuns)
}

func renderPaneTable(snap schema.DebugSnapshot, now time.Time, maxLines int, theme tuiTheme) []string {
	if maxLines < 2 {
		return nil
	}
	panes := make([]schema.PaneSnapshot, len(snap.Panes))
	copy(panes, snap.Panes)
	sort.Slice(panes, func(i, j int) bool { return panes[i].PaneID < panes[j].PaneID })

	meta := ansiFgRGB(theme.MetaFG)
	lines := []string{
		meta + padRight("PANE", 22) + padRight("TAB", 10) + padRight("DOMAIN", 18) +
			padRight("SEQ", 10) + padRight("PHASE", 12) + padRight("AGE", 8) + "DEFER" + ansiReset,
	}
	for _, pane := range panes {
		if len(lines) >= maxLines {
			break
		}
		phase := "-"
		age := "-"
		if pane.HasActive {
			phase = string(pane.ActivePhase)
			age = formatAge(now.Sub(pane.PhaseStartedAt))
		} else if pane.Pending() {
			phase = "pending"
		}
		seq := fmt.Sprintf("%d/%d", pane.CompletedSeq, pane.LatestSeq)
		lines = append(lines,
			padRight(string(pane.PaneID), 22)+
				padRight(string(pane.TabID), 10)+
				padRight(pane.Domain.Key(), 18)+
				padRight(seq, 10)+
				padRight(phase, 12)+
				padRight(age, 8)+
				fmt.Sprintf("%d", pane.ConsecutiveDeferrals))
	}
	return lines
}

func renderStalls(report schema.WatchdogReport, maxLines int, theme tuiTheme) []string {
	if len(report.Stalls) == 0 {
		return nil
	}
	lines := []string{""}
	for _, stall := range report.Stalls {
		if len(lines) >= maxLines {
			break
		}
		color := ansiFgRGB(theme.WarningFG)
		label := "warn"
		if stall.Critical {
			color = ansiFgRGB(theme.CriticalFG)
			label = "crit"
		}
		lines = append(lines, fmt.Sprintf("%s%s stall%s %s in %s for %s",
			color, label, ansiReset, stall.PaneID, stall.Phase, formatAge(stall.Age)))
	}
	return lines
}

func renderEventTail(events []schema.LifecycleEvent, maxLines int, theme tuiTheme) []string {
	lines := []string{""}
	start := 0
	if len(events) > maxLines-1 {
		start = len(events) - (maxLines - 1)
	}
	color := ansiFgRGB(theme.EventFG)
	for _, event := range events[start:] {
		detail := string(event.Detail.Kind)
		if event.Detail.SupersededBy > 0 {
			detail += fmt.Sprintf(" by %d", event.Detail.SupersededBy)
		}
		if event.Detail.Forced {
			detail += " forced"
		}
		lines = append(lines, fmt.Sprintf("%s#%d%s %s seq %d %s",
			color, event.Seq, ansiReset, event.PaneID, event.Detail.Seq, detail))
	}
	return lines
}

func renderFooter(state dashboardState, width int, theme tuiTheme) string {
	hint := " q quit  p pause  e events"
	if state.Paused {
		hint = " q quit  p resume  e events"
	}
	return ansiDim + trimANSIToWidth(hint, width) + ansiReset
}

func severityLabel(severity schema.WatchdogSeverity, theme tuiTheme) string {
	color := theme.HealthyFG
	switch severity {
	case schema.SeverityWarning:
		color = theme.WarningFG
	case schema.SeverityCritical, schema.SeveritySafeModeActive:
		color = theme.CriticalFG
	}
	if severity == "" {
		severity = schema.SeverityHealthy
	}
	return ansiFgRGB(color) + ansiBold + string(severity) + ansiReset + ansiBgRGB(theme.HeaderBG) + ansiFgRGB(theme.HeaderFG)
}

func tierLabel(tier schema.DegradationTier, theme tuiTheme) string {
	color := theme.HealthyFG
	switch tier {
	case schema.TierQualityReduced:
		color = theme.WarningFG
	case schema.TierCorrectnessGuarded, schema.TierEmergencyCompatibility:
		color = theme.CriticalFG
	}
	if tier == "" {
		tier = schema.TierFullQuality
	}
	return ansiFgRGB(color) + string(tier) + ansiReset + ansiBgRGB(theme.HeaderBG) + ansiFgRGB(theme.HeaderFG)
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func padRight(text string, width int) string {
	w := visibleWidth(text)
	if w >= width {
		return trimANSIToWidth(text, width-1) + " "
	}
	return text + strings.Repeat(" ", width-w)
}

func visibleWidth(text string) int {
	width := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		i += size
		width++
	}
	return width
}

func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	visible := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			start := i
			i = skipEscape(text, i+1)
			b.WriteString(text[start:i])
			continue
		}
		if visible >= width {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		b.WriteRune(r)
		i += size
		visible++
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		return i + 1
	}
}

func skipCSI(text string, i int) int {
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}
