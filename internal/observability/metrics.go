package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"colony.ai/internal/protocol"
)

// Metrics groups the Prometheus instruments fed from engine tick summaries.
type Metrics struct {
	Tasks       prometheus.Gauge
	Pooled      prometheus.Gauge
	Running     prometheus.Gauge
	IdleWorkers prometheus.Gauge
	BusyWorkers prometheus.Gauge
	Tick        prometheus.Gauge

	Issued    prometheus.Counter
	Ran       prometheus.Counter
	Throttled prometheus.Counter
	Outcomes  *prometheus.CounterVec

	StepMS prometheus.Histogram
}

// NewMetrics registers the instruments on reg. Pass prometheus.DefaultRegisterer
// to expose them through MetricsHandler; tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	return &Metrics{
		Tasks:       gauge("tasks", "Tasks in the warehouse."),
		Pooled:      gauge("pooled_tasks", "Task ids waiting in the pool."),
		Running:     gauge("running_tasks", "Tasks with at least one assigned worker."),
		IdleWorkers: gauge("idle_workers", "Registered workers without a task."),
		BusyWorkers: gauge("busy_workers", "Registered workers with a task."),
		Tick:        gauge("tick", "Last completed engine tick."),

		Issued:    counter("issued_total", "Tasks added to the warehouse."),
		Ran:       counter("ran_total", "Task runs."),
		Throttled: counter("throttled_total", "Run decisions held back by a room ceiling."),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Per-worker run results by code.",
		}, []string{"code"}),

		StepMS: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_ms",
			Help:      "Wall time of one engine tick in milliseconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}),
	}
}

// WriteTick lets Metrics act as an engine tick sink.
func (m *Metrics) WriteTick(s protocol.TickSummary) error {
	m.ObserveTick(s)
	return nil
}

func (m *Metrics) ObserveTick(s protocol.TickSummary) {
	m.Tasks.Set(float64(s.Tasks))
	m.Pooled.Set(float64(s.Pooled))
	m.Running.Set(float64(s.Running))
	m.IdleWorkers.Set(float64(s.IdleWorkers))
	m.BusyWorkers.Set(float64(s.BusyWorkers))
	m.Tick.Set(float64(s.Tick))

	m.Issued.Add(float64(s.Issued))
	m.Ran.Add(float64(s.Ran))
	m.Throttled.Add(float64(s.Throttled))
	m.Outcomes.WithLabelValues("continue").Add(float64(s.Outcomes.Continue))
	m.Outcomes.WithLabelValues("renew").Add(float64(s.Outcomes.Renew))
	m.Outcomes.WithLabelValues("finish").Add(float64(s.Outcomes.Finish))
	m.Outcomes.WithLabelValues("delete").Add(float64(s.Outcomes.Delete))
	m.Outcomes.WithLabelValues("early_terminated").Add(float64(s.Outcomes.EarlyTerminated))

	m.StepMS.Observe(s.StepMS)
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics gathered by g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
