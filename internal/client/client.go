package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/feedwatch/internal/model"
	"github.com/tinytelemetry/feedwatch/internal/stats"
	"github.com/tinytelemetry/feedwatch/internal/subscriber"
)

// DefaultEventHistory is the number of events kept for RecentEvents.
const DefaultEventHistory = 256

// Config configures a Client. Subscriber.Handler is ignored: the client
// installs itself and forwards callbacks to Handler when set.
type Config struct {
	Subscriber   subscriber.Config
	Handler      model.FeedHandler
	EventHistory int
	Clock        stats.Clock
}

// Client owns a Subscriber, receives its callbacks and serves the read
// contract used by the socket RPC, HTTP and metrics surfaces.
type Client struct {
	sub     *subscriber.Subscriber
	next    model.FeedHandler
	clock   stats.Clock
	log     *zap.Logger
	updates chan struct{}

	mu     sync.RWMutex
	events []model.Event // ring buffer
	head   int
	count  int
}

// New creates a client and its subscriber.
func New(cfg Config) *Client {
	if cfg.EventHistory <= 0 {
		cfg.EventHistory = DefaultEventHistory
	}
	if cfg.Clock == nil {
		cfg.Clock = stats.RealClock{}
	}
	if cfg.Handler == nil {
		cfg.Handler = subscriber.NopHandler{}
	}
	log := cfg.Subscriber.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		next:    cfg.Handler,
		clock:   cfg.Clock,
		log:     log.Named("client"),
		updates: make(chan struct{}, 1),
		events:  make([]model.Event, cfg.EventHistory),
	}
	subCfg := cfg.Subscriber
	subCfg.Handler = c
	c.sub = subscriber.New(subCfg)
	return c
}

// Connect subscribes to server:port. See subscriber.Subscriber.Connect.
func (c *Client) Connect(ctx context.Context, server string, port int) error {
	return c.sub.Connect(ctx, server, port)
}

// Disconnect stops the subscription.
func (c *Client) Disconnect() {
	c.sub.Disconnect()
}

// Subscriber returns the underlying subscriber.
func (c *Client) Subscriber() *subscriber.Subscriber {
	return c.sub
}

// Updates is signalled after each stats update. Signals coalesce.
func (c *Client) Updates() <-chan struct{} {
	return c.updates
}

func (c *Client) OnFeedAlive() {
	c.log.Info("feed alive", zap.String("target", c.sub.Status().Target))
	c.next.OnFeedAlive()
}

func (c *Client) OnFeedDead() {
	c.log.Warn("feed dead", zap.String("target", c.sub.Status().Target))
	c.next.OnFeedDead()
}

func (c *Client) OnStatsUpdate(data model.Snapshot) {
	select {
	case c.updates <- struct{}{}:
	default:
	}
	c.next.OnStatsUpdate(data)
}

func (c *Client) OnEvent(eventType string, data json.RawMessage) {
	c.log.Debug("event", zap.String("type", eventType))
	c.pushEvent(model.Event{
		Received: c.clock.Now(),
		Type:     eventType,
		Data:     append(json.RawMessage(nil), data...),
	})
	c.next.OnEvent(eventType, data)
}

func (c *Client) pushEvent(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[c.head] = ev
	c.head = (c.head + 1) % len(c.events)
	if c.count < len(c.events) {
		c.count++
	}
}

// RecentEvents returns up to limit events, newest first. A non-positive limit
// returns everything retained.
func (c *Client) RecentEvents(limit int) []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := c.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (c.head - i + len(c.events)) % len(c.events)
		out = append(out, c.events[idx])
	}
	return out
}

func (c *Client) FeedStatus() model.FeedStatus {
	return c.sub.Status()
}

func (c *Client) GeneralStats() model.WindowView {
	return c.sub.GeneralStats().View()
}

func (c *Client) EntityIDs() []int {
	return c.sub.Stats().EntityIDs()
}

func (c *Client) EntityStats(id int) (model.WindowView, bool) {
	w, ok := c.sub.EntityStats(id)
	if !ok {
		return model.WindowView{}, false
	}
	return w.View(), true
}

func (c *Client) RawSnapshot(name string) (json.RawMessage, bool) {
	return c.sub.RawSnapshot(name)
}

func (c *Client) RawSnapshotNames() []string {
	return c.sub.RawSnapshotNames()
}

// ResetBaselines rebases every stats window on its current snapshot.
func (c *Client) ResetBaselines() {
	c.sub.Stats().ResetBaselines()
	c.log.Info("baselines reset")
}

// RunReconnect connects and, on failure, retries every interval until it
// succeeds or ctx is done. A nil return means the feed is flowing.
func (c *Client) RunReconnect(ctx context.Context, server string, port int, interval time.Duration) error {
	for {
		err := c.Connect(ctx, server, port)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("connect failed, retrying", zap.Error(err), zap.Duration("interval", interval))

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

var _ model.StatsAPI = (*Client)(nil)
var _ model.FeedHandler = (*Client)(nil)
