package tui

import (
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// StatsSource is the read side of the daemon as seen by the dashboard.
// socketrpc.Client satisfies it.
type StatsSource interface {
	FeedStatus() (model.FeedStatus, error)
	GeneralStats() (model.WindowView, error)
	EntityIDs() ([]int, error)
	EntityStats(id int) (model.WindowView, error)
	RecentEvents(limit int) ([]model.Event, error)
	RawSnapshotNames() ([]string, error)
	RawSnapshot(name string) (json.RawMessage, error)
	ResetBaselines() error
}

// TickMsg triggers a refresh.
type TickMsg time.Time

// dataMsg carries one refresh worth of daemon state.
type dataMsg struct {
	status   model.FeedStatus
	general  model.WindowView
	entities map[int]model.WindowView
	ids      []int
	events   []model.Event
	err      error
}

type resetDoneMsg struct{ err error }

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func fetchCmd(src StatsSource, eventLimit int) tea.Cmd {
	return func() tea.Msg {
		return fetch(src, eventLimit)
	}
}

func fetch(src StatsSource, eventLimit int) dataMsg {
	var msg dataMsg
	if msg.status, msg.err = src.FeedStatus(); msg.err != nil {
		return msg
	}
	if msg.general, msg.err = src.GeneralStats(); msg.err != nil {
		return msg
	}
	if msg.ids, msg.err = src.EntityIDs(); msg.err != nil {
		return msg
	}
	msg.entities = make(map[int]model.WindowView, len(msg.ids))
	for _, id := range msg.ids {
		view, err := src.EntityStats(id)
		if err != nil {
			// Entity tables only grow, so a miss is a transport error.
			msg.err = err
			return msg
		}
		msg.entities[id] = view
	}
	msg.events, msg.err = src.RecentEvents(eventLimit)
	return msg
}

func resetCmd(src StatsSource) tea.Cmd {
	return func() tea.Msg {
		return resetDoneMsg{err: src.ResetBaselines()}
	}
}
