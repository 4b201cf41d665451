package tui

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"
)

// SnapshotsPage browses the last raw payload received under each message name.
type SnapshotsPage struct {
	source   StatsSource
	keys     KeyMap
	names    []string
	selected int
	payload  json.RawMessage
	err      error
}

type rawNamesMsg struct {
	names []string
	err   error
}

type rawPayloadMsg struct {
	name    string
	payload json.RawMessage
	err     error
}

// NewSnapshotsPage creates the raw snapshot browser.
func NewSnapshotsPage(source StatsSource) *SnapshotsPage {
	return &SnapshotsPage{source: source, keys: DefaultKeyMap()}
}

func (p *SnapshotsPage) ID() string { return "snapshots" }

func (p *SnapshotsPage) Init() tea.Cmd {
	if p.source == nil {
		return nil
	}
	src := p.source
	return func() tea.Msg {
		names, err := src.RawSnapshotNames()
		return rawNamesMsg{names: names, err: err}
	}
}

func (p *SnapshotsPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, p.keys.ForceQuit), key.Matches(msg, p.keys.Quit):
			return tea.Quit, nil
		case key.Matches(msg, p.keys.Back), key.Matches(msg, p.keys.Snapshots):
			return nil, &PageNav{PageID: "dashboard"}
		case key.Matches(msg, p.keys.Up):
			if p.selected > 0 {
				p.selected--
				return p.loadSelected(), nil
			}
		case key.Matches(msg, p.keys.Down):
			if p.selected < len(p.names)-1 {
				p.selected++
				return p.loadSelected(), nil
			}
		}

	case rawNamesMsg:
		p.err = msg.err
		if msg.err != nil {
			return nil, nil
		}
		p.names = msg.names
		if p.selected >= len(p.names) {
			p.selected = 0
		}
		return p.loadSelected(), nil

	case rawPayloadMsg:
		if msg.name != p.selectedName() {
			return nil, nil
		}
		p.payload, p.err = msg.payload, msg.err
	}
	return nil, nil
}

func (p *SnapshotsPage) selectedName() string {
	if p.selected < 0 || p.selected >= len(p.names) {
		return ""
	}
	return p.names[p.selected]
}

func (p *SnapshotsPage) loadSelected() tea.Cmd {
	name := p.selectedName()
	if name == "" || p.source == nil {
		p.payload = nil
		return nil
	}
	src := p.source
	return func() tea.Msg {
		raw, err := src.RawSnapshot(name)
		return rawPayloadMsg{name: name, payload: raw, err: err}
	}
}

func (p *SnapshotsPage) View(width, height int) string {
	if width <= 0 {
		width = 100
	}

	var list strings.Builder
	list.WriteString(titleStyle.Render("Messages"))
	list.WriteString("\n")
	if len(p.names) == 0 {
		list.WriteString(labelStyle.Render("nothing received yet"))
	}
	for i, name := range p.names {
		if i == p.selected {
			list.WriteString(selectedStyle.Render("> " + name))
		} else {
			list.WriteString("  " + name)
		}
		list.WriteString("\n")
	}

	body := labelStyle.Render("select a message")
	if len(p.payload) > 0 {
		body = gjson.GetBytes(p.payload, "@pretty").String()
		if lines := strings.Split(body, "\n"); height > 6 && len(lines) > height-6 {
			body = strings.Join(lines[:height-6], "\n") + "\n" + labelStyle.Render("...")
		}
	}

	sections := []string{
		headerStyle.Width(width).Render("feedwatch  raw snapshots"),
		lipgloss.JoinHorizontal(lipgloss.Top,
			sectionStyle.Render(strings.TrimRight(list.String(), "\n")),
			sectionStyle.Render(body)),
	}
	if p.err != nil {
		sections = append(sections, errorStyle.Render("error: "+p.err.Error()))
	}
	sections = append(sections, statusStyle.Width(width).Render(" esc back  ↑/↓ select  q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
