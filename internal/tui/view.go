package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/feedwatch/internal/model"
	"github.com/tinytelemetry/feedwatch/internal/stats"
)

const sparklineHeight = 5

func (d *DashboardPage) View(width, height int) string {
	if width <= 0 {
		width = 100
	}
	if d.loading() {
		return renderLoadingPlaceholder(width, max(height, 3), "Waiting for daemon...")
	}

	sections := []string{d.renderHeader(width)}
	if d.err != nil {
		sections = append(sections, errorStyle.Render("error: "+d.err.Error()))
	}

	switch d.view {
	case ViewGeneral:
		sections = append(sections, d.renderGeneral(width), d.renderSparkline(width))
	case ViewEntities:
		sections = append(sections, d.renderEntities(width))
	case ViewEvents:
		sections = append(sections, d.renderEvents(width, height))
	}

	sections = append(sections, d.renderStatusLine(width))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (d *DashboardPage) renderHeader(width int) string {
	st := d.status
	target := st.Target
	if target == "" {
		target = "no target"
	}
	left := fmt.Sprintf("feedwatch  %s  ", target)
	state := stateStyle(st.Alive).Background(ColorNavy).Render(st.State.String())
	right := fmt.Sprintf("  msgs %d  malformed %d", st.Messages, st.Malformed)

	line := left + state + right
	return headerStyle.Width(width).Render(line)
}

func (d *DashboardPage) renderGeneral(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("General"))
	b.WriteString(" " + onlineBadge(d.general.Online) + "\n")

	if len(d.fields) == 0 {
		b.WriteString(labelStyle.Render("waiting for stats"))
		return sectionStyle.Width(width - 2).Render(b.String())
	}

	nameWidth := 0
	for _, f := range d.fields {
		nameWidth = max(nameWidth, len(f))
	}
	fmt.Fprintf(&b, "%-*s  %14s  %14s\n", nameWidth, "field", "value", "relative")
	for i, f := range d.fields {
		row := fmt.Sprintf("%-*s  %14s  %14s", nameWidth, f,
			formatValue(d.general.Current, f), formatValue(d.general.Relative, f))
		if i == d.selected {
			row = selectedStyle.Render(row)
		}
		b.WriteString(row)
		if i < len(d.fields)-1 {
			b.WriteByte('\n')
		}
	}
	return sectionStyle.Width(width - 2).Render(b.String())
}

func (d *DashboardPage) renderSparkline(width int) string {
	field := d.selectedField()
	if field == "" {
		return ""
	}
	points := d.history[field]

	w := min(d.sparkWidth, max(width-4, 1))
	sl := sparkline.New(w, sparklineHeight)
	sl.PushAll(points)
	sl.Draw()

	title := titleStyle.Render(field) + labelStyle.Render(fmt.Sprintf("  last %d samples", len(points)))
	return sectionStyle.Width(width - 2).Render(title + "\n" + sl.View())
}

func (d *DashboardPage) renderEntities(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Entities") + "\n")
	if len(d.ids) == 0 {
		b.WriteString(labelStyle.Render("no per-entity stats"))
		return sectionStyle.Width(width - 2).Render(b.String())
	}

	fieldSet := make(map[string]struct{})
	for _, id := range d.ids {
		for f := range d.entities[id].Current {
			fieldSet[f] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	nameWidth := len("field")
	for f := range fieldSet {
		fields = append(fields, f)
		nameWidth = max(nameWidth, len(f))
	}
	sort.Strings(fields)

	fmt.Fprintf(&b, "%-*s", nameWidth, "field")
	for _, id := range d.ids {
		label := strconv.Itoa(id)
		if !d.entities[id].Online {
			label += "*"
		}
		fmt.Fprintf(&b, "  %12s", label)
	}
	for _, f := range fields {
		fmt.Fprintf(&b, "\n%-*s", nameWidth, f)
		for _, id := range d.ids {
			fmt.Fprintf(&b, "  %12s", formatValue(d.entities[id].Current, f))
		}
	}
	b.WriteString("\n" + labelStyle.Render("* stale"))
	return sectionStyle.Width(width - 2).Render(b.String())
}

func (d *DashboardPage) renderEvents(width, height int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Recent events") + "\n")
	if len(d.events) == 0 {
		b.WriteString(labelStyle.Render("no events"))
		return sectionStyle.Width(width - 2).Render(b.String())
	}

	limit := len(d.events)
	if height > 8 {
		limit = min(limit, height-8)
	}
	for i, ev := range d.events[:limit] {
		typ := ev.Type
		if typ == "" {
			typ = "-"
		}
		line := fmt.Sprintf("%s  %-16s %s", ev.Received.Format("15:04:05"), typ, string(ev.Data))
		if len(line) > width-4 && width > 8 {
			line = line[:width-7] + "..."
		}
		b.WriteString(line)
		if i < limit-1 {
			b.WriteByte('\n')
		}
	}
	return sectionStyle.Width(width - 2).Render(b.String())
}

func (d *DashboardPage) renderStatusLine(width int) string {
	var parts []string
	for v := View(0); v < viewCount; v++ {
		name := v.String()
		if v == d.view {
			name = "[" + name + "]"
		}
		parts = append(parts, name)
	}
	var help []string
	for _, k := range d.keys.ShortHelp() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	text := strings.Join(parts, " ") + "  |  " + strings.Join(help, "  ")
	return statusStyle.Width(width).Render(text)
}

func formatValue(s model.Snapshot, field string) string {
	v, ok := s[field]
	if !ok {
		return model.NotAvailable
	}
	return stats.FormatMagnitude(v, "")
}

func onlineBadge(online bool) string {
	if online {
		return stateStyle(true).Render("online")
	}
	return stateStyle(false).Render("stale")
}
