package promexport

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

const namespace = "feedwatch"

// Collector projects the live stats windows as Prometheus metrics on each
// scrape. It holds no state; every value is read from the StatsReader.
type Collector struct {
	source model.StatsReader

	feedAlive     *prometheus.Desc
	messagesTotal *prometheus.Desc
	malformed     *prometheus.Desc
	lastMessage   *prometheus.Desc
	generalValue  *prometheus.Desc
	generalDelta  *prometheus.Desc
	entityValue   *prometheus.Desc
	entityDelta   *prometheus.Desc
	windowOnline  *prometheus.Desc
}

func NewCollector(source model.StatsReader) *Collector {
	return &Collector{
		source: source,
		feedAlive: prometheus.NewDesc(namespace+"_feed_alive",
			"Whether the feed delivered a message within the receive timeout.",
			[]string{"target"}, nil),
		messagesTotal: prometheus.NewDesc(namespace+"_messages_total",
			"Messages received from the feed.",
			[]string{"target"}, nil),
		malformed: prometheus.NewDesc(namespace+"_malformed_total",
			"Messages skipped because they could not be decoded.",
			[]string{"target"}, nil),
		lastMessage: prometheus.NewDesc(namespace+"_last_message_timestamp_seconds",
			"Unix time of the most recent message.",
			[]string{"target"}, nil),
		generalValue: prometheus.NewDesc(namespace+"_general_value",
			"Current value of a general metric.",
			[]string{"field"}, nil),
		generalDelta: prometheus.NewDesc(namespace+"_general_relative",
			"General metric value relative to its baseline.",
			[]string{"field"}, nil),
		entityValue: prometheus.NewDesc(namespace+"_entity_value",
			"Current value of a per-entity metric.",
			[]string{"entity", "field"}, nil),
		entityDelta: prometheus.NewDesc(namespace+"_entity_relative",
			"Per-entity metric value relative to its baseline.",
			[]string{"entity", "field"}, nil),
		windowOnline: prometheus.NewDesc(namespace+"_window_online",
			"Whether a stats window was updated within the online window.",
			[]string{"window"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.feedAlive
	ch <- c.messagesTotal
	ch <- c.malformed
	ch <- c.lastMessage
	ch <- c.generalValue
	ch <- c.generalDelta
	ch <- c.entityValue
	ch <- c.entityDelta
	ch <- c.windowOnline
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.FeedStatus()
	send(ch, c.feedAlive, prometheus.GaugeValue, boolValue(st.Alive), st.Target)
	send(ch, c.messagesTotal, prometheus.CounterValue, float64(st.Messages), st.Target)
	send(ch, c.malformed, prometheus.CounterValue, float64(st.Malformed), st.Target)
	if !st.LastMessage.IsZero() {
		send(ch, c.lastMessage, prometheus.GaugeValue, float64(st.LastMessage.UnixNano())/1e9, st.Target)
	}

	general := c.source.GeneralStats()
	c.collectWindow(ch, general, c.generalValue, c.generalDelta)
	send(ch, c.windowOnline, prometheus.GaugeValue, boolValue(general.Online), "general")

	for _, id := range c.source.EntityIDs() {
		view, ok := c.source.EntityStats(id)
		if !ok {
			continue
		}
		entity := strconv.Itoa(id)
		c.collectWindow(ch, view, c.entityValue, c.entityDelta, entity)
		send(ch, c.windowOnline, prometheus.GaugeValue, boolValue(view.Online), entity)
	}
}

func (c *Collector) collectWindow(ch chan<- prometheus.Metric, v model.WindowView, value, delta *prometheus.Desc, labels ...string) {
	for field, x := range v.Current {
		send(ch, value, prometheus.GaugeValue, x, append(labels, field)...)
	}
	for field, x := range v.Relative {
		send(ch, delta, prometheus.GaugeValue, x, append(labels, field)...)
	}
}

// send drops a sample whose label values are rejected, such as field names
// that are not valid UTF-8.
func send(ch chan<- prometheus.Metric, desc *prometheus.Desc, vt prometheus.ValueType, v float64, labels ...string) {
	m, err := prometheus.NewConstMetric(desc, vt, v, labels...)
	if err != nil {
		return
	}
	ch <- m
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRegistry returns a registry holding the feed collector plus the standard
// process and Go runtime collectors.
func NewRegistry(source model.StatsReader) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(source),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
