// Package metrics exposes task activity as Prometheus counters.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Barrelito/sam-a-sub000/activity"
)

// Metrics holds the task counters and their registry.
type Metrics struct {
	reg         *prometheus.Registry
	events      *prometheus.CounterVec
	statuses    *prometheus.CounterVec
	distributed prometheus.Counter
	requests    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktrack_task_events_total",
			Help: "Task events by type.",
		}, []string{"type"}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktrack_status_changes_total",
			Help: "Task status changes by target status.",
		}, []string{"status"}),
		distributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasktrack_station_tasks_distributed_total",
			Help: "Station tasks created by distribution.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktrack_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
	m.reg.MustRegister(
		m.events, m.statuses, m.distributed, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Attach counts every event published on bus. The returned function
// detaches the counters.
func (m *Metrics) Attach(bus activity.Bus) (detach func()) {
	return bus.Subscribe("", m.observe)
}

func (m *Metrics) observe(_ context.Context, ev *activity.Event) error {
	m.events.WithLabelValues(string(ev.Type)).Inc()
	switch ev.Type {
	case activity.TypeStatusChanged:
		if to := ev.Metadata["to"]; to != "" {
			m.statuses.WithLabelValues(to).Inc()
		}
	case activity.TypeTaskDistributed:
		if n, err := strconv.Atoi(ev.Metadata["created"]); err == nil {
			m.distributed.Add(float64(n))
		}
	}
	return nil
}

// ObserveRequest counts one served HTTP request.
func (m *Metrics) ObserveRequest(route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
