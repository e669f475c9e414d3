// Package metrics collects and exposes Prometheus metrics for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus metrics.
type Collector struct {
	bidTransitions    *prometheus.CounterVec
	postingsBooked    prometheus.Counter
	postingsExpired   prometheus.Counter
	postingsRefreshed prometheus.Counter
	bidsExpired       prometheus.Counter
	sweepErrors       prometheus.Counter

	registry *prometheus.Registry
}

// NewCollector creates and registers the engine metrics on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		bidTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadboard_bid_transitions_total",
			Help: "Total bid transitions applied, by action and outcome",
		}, []string{"action", "outcome"}),
		postingsBooked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadboard_postings_booked_total",
			Help: "Total postings booked via bid acceptance",
		}),
		postingsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadboard_postings_expired_total",
			Help: "Total postings expired by the sweeper",
		}),
		postingsRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadboard_postings_refreshed_total",
			Help: "Total auto-refresh extensions applied by the sweeper",
		}),
		bidsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadboard_bids_expired_total",
			Help: "Total bids expired by the sweeper",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loadboard_sweep_errors_total",
			Help: "Total per-item errors skipped during sweep ticks",
		}),
		registry: prometheus.NewRegistry(),
	}

	c.registry.MustRegister(
		c.bidTransitions,
		c.postingsBooked,
		c.postingsExpired,
		c.postingsRefreshed,
		c.bidsExpired,
		c.sweepErrors,
	)
	return c
}

// BidTransition records one attempted bid transition.
func (c *Collector) BidTransition(action, outcome string) {
	if c == nil {
		return
	}
	c.bidTransitions.WithLabelValues(action, outcome).Inc()
}

// PostingBooked increments the booked-postings counter.
func (c *Collector) PostingBooked() {
	if c == nil {
		return
	}
	c.postingsBooked.Inc()
}

// PostingExpired increments the expired-postings counter.
func (c *Collector) PostingExpired() {
	if c == nil {
		return
	}
	c.postingsExpired.Inc()
}

// PostingRefreshed increments the auto-refresh counter.
func (c *Collector) PostingRefreshed() {
	if c == nil {
		return
	}
	c.postingsRefreshed.Inc()
}

// BidExpired increments the expired-bids counter.
func (c *Collector) BidExpired() {
	if c == nil {
		return
	}
	c.bidsExpired.Inc()
}

// SweepError increments the skipped-item counter.
func (c *Collector) SweepError() {
	if c == nil {
		return
	}
	c.sweepErrors.Inc()
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
