// Package metrics exports pipeline counters to Prometheus.
//
// A Collector implements the observer interfaces of the gateway, the poller,
// the upserter and the news desk, so one value can be handed to each of them.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/newsdesk/llm"
	"github.com/c360studio/newsdesk/model"
	"github.com/c360studio/newsdesk/news"
	"github.com/c360studio/newsdesk/salvage"
	"github.com/c360studio/newsdesk/storage"
)

const namespace = "newsdesk"

// Collector holds the pipeline metrics.
type Collector struct {
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	pollAttempts    *prometheus.HistogramVec
	salvageStages   *prometheus.CounterVec
	salvageRejected *prometheus.CounterVec
	upserts         *prometheus.CounterVec
	jobs            *prometheus.CounterVec
}

var (
	_ llm.GatewayObserver    = (*Collector)(nil)
	_ llm.PollObserver       = (*Collector)(nil)
	_ storage.UpsertObserver = (*Collector)(nil)
	_ news.Observer          = (*Collector)(nil)
)

// New creates a collector and registers it with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Model calls by slot and outcome.",
		}, []string{"slot", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Model call latency by slot, including polling.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 15, 30, 60, 120, 300, 600},
		}, []string{"slot"}),
		pollAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "attempts",
			Help:      "Status fetches per polled response, by final status.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 80},
		}, []string{"status"}),
		salvageStages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "salvage",
			Name:      "extractions_total",
			Help:      "Extractions by article kind and winning stage.",
		}, []string{"kind", "stage"}),
		salvageRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "salvage",
			Name:      "rejected_items_total",
			Help:      "Candidates dropped by validation.",
		}, []string{"kind"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "upserts_total",
			Help:      "Upserts by collection and outcome.",
		}, []string{"collection", "outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "jobs_total",
			Help:      "Batch jobs by article kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	for _, col := range []prometheus.Collector{
		c.gatewayCalls, c.gatewayDuration, c.pollAttempts,
		c.salvageStages, c.salvageRejected, c.upserts, c.jobs,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return c, nil
}

// ObserveCall implements llm.GatewayObserver.
func (c *Collector) ObserveCall(slot model.Slot, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.gatewayCalls.WithLabelValues(string(slot), outcome).Inc()
	if outcome != llm.OutcomeSkipped {
		c.gatewayDuration.WithLabelValues(string(slot)).Observe(d.Seconds())
	}
}

// ObservePoll implements llm.PollObserver.
func (c *Collector) ObservePoll(attempts int, status llm.CompletionStatus) {
	if c == nil {
		return
	}
	c.pollAttempts.WithLabelValues(string(status)).Observe(float64(attempts))
}

// ObserveUpsert implements storage.UpsertObserver.
func (c *Collector) ObserveUpsert(collection, outcome string) {
	if c == nil {
		return
	}
	c.upserts.WithLabelValues(collection, outcome).Inc()
}

// ObserveExtraction implements news.Observer.
func (c *Collector) ObserveExtraction(kind news.Kind, stage salvage.Stage, _, rejected int) {
	if c == nil {
		return
	}
	label := string(stage)
	if label == "" {
		label = "none"
	}
	c.salvageStages.WithLabelValues(string(kind), label).Inc()
	if rejected > 0 {
		c.salvageRejected.WithLabelValues(string(kind)).Add(float64(rejected))
	}
}

// ObserveJob implements news.Observer.
func (c *Collector) ObserveJob(kind news.Kind, outcome string) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(string(kind), outcome).Inc()
}
