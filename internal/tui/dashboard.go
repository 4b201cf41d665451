package tui

import (
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// View identifies one of the dashboard's tabs.
type View int

const (
	ViewGeneral View = iota
	ViewEntities
	ViewEvents
	viewCount
)

func (v View) String() string {
	switch v {
	case ViewGeneral:
		return "General"
	case ViewEntities:
		return "Entities"
	case ViewEvents:
		return "Events"
	default:
		return "?"
	}
}

const (
	DefaultSparklineWidth = 60
	dashboardEventLimit   = 100
)

// DashboardPage renders the live stats of one feed.
type DashboardPage struct {
	source         StatsSource
	keys           KeyMap
	updateInterval time.Duration
	sparkWidth     int

	view     View
	selected int
	fields   []string // sorted general fields
	history  map[string][]float64

	status   model.FeedStatus
	general  model.WindowView
	ids      []int
	entities map[int]model.WindowView
	events   []model.Event
	err      error
	updated  time.Time
}

// NewDashboardPage creates the dashboard. Non-positive sizes use defaults.
func NewDashboardPage(source StatsSource, updateInterval time.Duration, sparkWidth int) *DashboardPage {
	if updateInterval <= 0 {
		updateInterval = model.DefaultUpdateInterval
	}
	if sparkWidth <= 0 {
		sparkWidth = DefaultSparklineWidth
	}
	return &DashboardPage{
		source:         source,
		keys:           DefaultKeyMap(),
		updateInterval: updateInterval,
		sparkWidth:     sparkWidth,
		history:        make(map[string][]float64),
		entities:       make(map[int]model.WindowView),
	}
}

func (d *DashboardPage) ID() string { return "dashboard" }

func (d *DashboardPage) Init() tea.Cmd {
	if d.source == nil {
		return nil
	}
	return tea.Batch(fetchCmd(d.source, dashboardEventLimit), tickCmd(d.updateInterval), d.spinnerCmd())
}

func (d *DashboardPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return d.handleKey(msg)

	case TickMsg:
		if d.source == nil {
			return nil, nil
		}
		return tea.Batch(fetchCmd(d.source, dashboardEventLimit), tickCmd(d.updateInterval)), nil

	case SpinnerTickMsg:
		return d.spinnerCmd(), nil

	case dataMsg:
		d.apply(msg)
		return nil, nil

	case resetDoneMsg:
		if msg.err != nil {
			d.err = msg.err
			return nil, nil
		}
		d.history = make(map[string][]float64)
		return fetchCmd(d.source, dashboardEventLimit), nil
	}
	return nil, nil
}

func (d *DashboardPage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	switch {
	case key.Matches(msg, d.keys.Snapshots):
		return nil, &PageNav{PageID: "snapshots"}
	case key.Matches(msg, d.keys.Quit), key.Matches(msg, d.keys.ForceQuit):
		return tea.Quit, nil
	case key.Matches(msg, d.keys.Reset):
		if d.source != nil {
			return resetCmd(d.source), nil
		}
	case key.Matches(msg, d.keys.NextView):
		d.view = (d.view + 1) % viewCount
	case key.Matches(msg, d.keys.PrevView):
		d.view = (d.view + viewCount - 1) % viewCount
	case key.Matches(msg, d.keys.Up):
		if d.selected > 0 {
			d.selected--
		}
	case key.Matches(msg, d.keys.Down):
		if d.selected < len(d.fields)-1 {
			d.selected++
		}
	}
	return nil, nil
}

func (d *DashboardPage) apply(msg dataMsg) {
	d.err = msg.err
	if msg.err != nil {
		return
	}
	d.status = msg.status
	d.general = msg.general
	d.ids = msg.ids
	d.entities = msg.entities
	d.events = msg.events
	d.updated = time.Now()

	prev := d.selectedField()
	d.fields = d.fields[:0]
	for f := range msg.general.Current {
		d.fields = append(d.fields, f)
	}
	sort.Strings(d.fields)
	d.selected = 0
	for i, f := range d.fields {
		if f == prev {
			d.selected = i
			break
		}
	}

	for f, v := range msg.general.Current {
		h := append(d.history[f], v)
		if len(h) > d.sparkWidth {
			h = h[len(h)-d.sparkWidth:]
		}
		d.history[f] = h
	}
}

func (d *DashboardPage) selectedField() string {
	if d.selected < 0 || d.selected >= len(d.fields) {
		return ""
	}
	return d.fields[d.selected]
}
