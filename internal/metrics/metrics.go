// Package metrics collects the lending counters exposed on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the lending service reports to.
type Recorder interface {
	RecordCheckout()
	RecordCheckoutRejected(reason string)
	RecordReturn(late bool)
	RecordLost()
	RecordFineAssessed(cents int64)
	RecordFineSettled(cents int64)
	RecordLatency(op string, d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	checkouts    prometheus.Counter
	rejected     *prometheus.CounterVec
	returns      *prometheus.CounterVec
	lost         prometheus.Counter
	finesCharged prometheus.Counter
	finesSettled prometheus.Counter
	latency      *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booktracker_checkouts_total",
			Help: "Successful checkouts.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booktracker_checkouts_rejected_total",
			Help: "Checkouts rejected, by reason.",
		}, []string{"reason"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booktracker_returns_total",
			Help: "Returned books, split by whether the return was late.",
		}, []string{"late"}),
		lost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booktracker_lost_total",
			Help: "Loans closed as lost.",
		}),
		finesCharged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booktracker_fines_assessed_cents_total",
			Help: "Sum of fines assessed, in cents.",
		}),
		finesSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booktracker_fines_settled_cents_total",
			Help: "Sum of fines settled, in cents.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "booktracker_lending_latency_seconds",
			Help:    "Latency of lending operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.checkouts,
		c.rejected,
		c.returns,
		c.lost,
		c.finesCharged,
		c.finesSettled,
		c.latency,
	)

	return c
}

func (c *Collector) RecordCheckout() {
	c.checkouts.Inc()
}

func (c *Collector) RecordCheckoutRejected(reason string) {
	c.rejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordReturn(late bool) {
	label := "false"
	if late {
		label = "true"
	}
	c.returns.WithLabelValues(label).Inc()
}

func (c *Collector) RecordLost() {
	c.lost.Inc()
}

func (c *Collector) RecordFineAssessed(cents int64) {
	c.finesCharged.Add(float64(cents))
}

func (c *Collector) RecordFineSettled(cents int64) {
	c.finesSettled.Add(float64(cents))
}

func (c *Collector) RecordLatency(op string, d time.Duration) {
	c.latency.WithLabelValues(op).Observe(d.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordCheckout()                     {}
func (Nop) RecordCheckoutRejected(string)       {}
func (Nop) RecordReturn(bool)                   {}
func (Nop) RecordLost()                         {}
func (Nop) RecordFineAssessed(int64)            {}
func (Nop) RecordFineSettled(int64)             {}
func (Nop) RecordLatency(string, time.Duration) {}
