package subscriber

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// Route is the destination a message was dispatched to.
type Route int

const (
	RouteDropped Route = iota
	RouteStats
	RouteEvent
)

// StatsSink receives demultiplexable stats snapshots.
type StatsSink interface {
	Update(snapshot model.Snapshot)
}

// Dispatcher routes decoded messages by name. It holds no state of its own.
type Dispatcher struct {
	stats     StatsSink
	handler   model.FeedHandler
	statsName string
	eventName string
	log       *zap.Logger
}

// NewDispatcher creates a dispatcher. Empty names fall back to the canonical
// "stats" and "event" tags.
func NewDispatcher(stats StatsSink, handler model.FeedHandler, statsName, eventName string, log *zap.Logger) *Dispatcher {
	if statsName == "" {
		statsName = model.DefaultStatsMessage
	}
	if eventName == "" {
		eventName = model.DefaultEventMessage
	}
	if handler == nil {
		handler = NopHandler{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		stats:     stats,
		handler:   handler,
		statsName: statsName,
		eventName: eventName,
		log:       log,
	}
}

// Dispatch forwards msg to the stats sink and handler, or to the event
// handler. Other names are dropped.
func (d *Dispatcher) Dispatch(msg Message) Route {
	switch msg.Name {
	case d.statsName:
		snapshot := msg.Snapshot()
		if d.stats != nil {
			d.stats.Update(snapshot)
		}
		d.handler.OnStatsUpdate(snapshot)
		return RouteStats
	case d.eventName:
		d.handler.OnEvent(msg.Type, msg.Data)
		return RouteEvent
	default:
		d.log.Debug("dropping message", zap.String("name", msg.Name))
		return RouteDropped
	}
}

// NopHandler ignores every callback.
type NopHandler struct{}

func (NopHandler) OnFeedAlive()                    {}
func (NopHandler) OnFeedDead()                     {}
func (NopHandler) OnStatsUpdate(model.Snapshot)    {}
func (NopHandler) OnEvent(string, json.RawMessage) {}
