// Package metrics exports Prometheus counters for preference stores.
//
// A Collector is fed by store subscriptions, so a store never depends on
// it:
//
//	c := metrics.New(prometheus.DefaultRegisterer)
//	subs := c.Attach(store)
//	defer metrics.Detach(subs)
//
// All operations are safe for concurrent use.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/prefstore/internal/prefs"
	"github.com/dshills/prefstore/internal/prefs/notify"
)

const namespace = "prefstore"

// Collector holds the metrics for one or more stores.
type Collector struct {
	// EventsTotal counts published store events.
	// Labels: key, kind (change, invalid, saved, error), op
	EventsTotal *prometheus.CounterVec

	// FieldErrorsTotal counts rejected fields.
	// Labels: key, code (type_mismatch, out_of_range, ...)
	FieldErrorsTotal *prometheus.CounterVec

	// LastCommit is the unix time of the newest change event.
	// Labels: key
	LastCommit *prometheus.GaugeVec

	// MigratedTotal counts documents visited by MigrateAll.
	// Labels: result (written, unchanged, failed)
	MigratedTotal *prometheus.CounterVec
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// metrics unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_total",
			Help:      "Store events by kind and operation",
		}, []string{"key", "kind", "op"}),
		FieldErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "field_errors_total",
			Help:      "Rejected fields by validation error code",
		}, []string{"key", "code"}),
		LastCommit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "last_commit_timestamp_seconds",
			Help:      "Unix time of the last committed change",
		}, []string{"key"}),
		MigratedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "migrate",
			Name:      "documents_total",
			Help:      "Documents visited by bulk migration by result",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(c.EventsTotal, c.FieldErrorsTotal, c.LastCommit, c.MigratedTotal)
	}
	return c
}

// Attach subscribes the collector to every event kind of s.
func (c *Collector) Attach(s *prefs.Store) []*notify.Subscription {
	subs := make([]*notify.Subscription, 0, len(notify.Kinds()))
	for _, k := range notify.Kinds() {
		subs = append(subs, s.On(k, c.Observe))
	}
	return subs
}

// Detach cancels subscriptions returned by Attach.
func Detach(subs []*notify.Subscription) {
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Observe records one store event.
func (c *Collector) Observe(ev prefs.Event) {
	c.EventsTotal.WithLabelValues(ev.Key, ev.Kind.String(), string(ev.Op)).Inc()

	switch ev.Kind {
	case notify.KindChange:
		c.LastCommit.WithLabelValues(ev.Key).Set(float64(ev.Time.Unix()))
	case notify.KindInvalid:
		for _, fe := range ev.Errors {
			c.FieldErrorsTotal.WithLabelValues(ev.Key, fe.Code.String()).Inc()
		}
		if len(ev.Errors) == 0 && errors.Is(ev.Err, prefs.ErrParse) {
			c.FieldErrorsTotal.WithLabelValues(ev.Key, "parse").Inc()
		}
	}
}

// RecordMigration records the outcome of a MigrateAll run.
func (c *Collector) RecordMigration(results []prefs.MigrateResult) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			c.MigratedTotal.WithLabelValues("failed").Inc()
		case r.Written:
			c.MigratedTotal.WithLabelValues("written").Inc()
		default:
			c.MigratedTotal.WithLabelValues("unchanged").Inc()
		}
	}
}
