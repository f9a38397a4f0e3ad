package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the simulation: worker-pool
// task lifecycle, per-model generation timings, and product output. It
// satisfies the pool's Observer interface.
type Collector struct {
	gatherer prometheus.Gatherer

	TaskSubmissions *prometheus.CounterVec
	TaskDurations   *prometheus.HistogramVec
	TasksQueued     prometheus.Gauge
	TasksRunning    prometheus.Gauge

	PassesWritten prometheus.Counter
	PassesFailed  prometheus.Counter
	PassDurations prometheus.Histogram
}

// NewCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swot_tasks_total",
		Help: "Total number of completed worker-pool tasks, labeled by error model and outcome.",
	}, []string{"model", "outcome"})
	submissions, err := registerCounterVec(reg, submissions, "swot_tasks_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swot_task_duration_seconds",
		Help:    "Error model generation latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"model"})
	durations, err = registerHistogramVec(reg, durations, "swot_task_duration_seconds")
	if err != nil {
		return nil, err
	}

	queued, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swot_tasks_queued",
		Help: "Number of submitted tasks not yet picked up by a worker.",
	}), "swot_tasks_queued")
	if err != nil {
		return nil, err
	}
	running, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swot_tasks_running",
		Help: "Number of tasks currently executing on the worker pool.",
	}), "swot_tasks_running")
	if err != nil {
		return nil, err
	}

	written, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swot_passes_written_total",
		Help: "Number of passes successfully generated and written.",
	}), "swot_passes_written_total")
	if err != nil {
		return nil, err
	}
	failed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swot_passes_failed_total",
		Help: "Number of passes whose error generation failed.",
	}), "swot_passes_failed_total")
	if err != nil {
		return nil, err
	}
	passDurations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swot_pass_duration_seconds",
		Help:    "End-to-end latency of one pass (geometry, generation, write).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
	passDurations, err = registerHistogram(reg, passDurations, "swot_pass_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		TaskSubmissions: submissions,
		TaskDurations:   durations,
		TasksQueued:     queued,
		TasksRunning:    running,
		PassesWritten:   written,
		PassesFailed:    failed,
		PassDurations:   passDurations,
	}, nil
}

// TaskQueued adjusts the queued-task gauge; the pool calls it with +1 on
// submit and -1 on pickup.
func (c *Collector) TaskQueued(delta int) {
	if c == nil || c.TasksQueued == nil {
		return
	}
	c.TasksQueued.Add(float64(delta))
}

// TaskStarted marks one task as running.
func (c *Collector) TaskStarted(model string) {
	if c == nil || c.TasksRunning == nil {
		return
	}
	c.TasksRunning.Inc()
}

// TaskFinished records one completed task.
func (c *Collector) TaskFinished(model, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.TasksRunning != nil {
		c.TasksRunning.Dec()
	}
	if c.TaskSubmissions != nil {
		c.TaskSubmissions.WithLabelValues(model, outcome).Inc()
	}
	if c.TaskDurations != nil {
		c.TaskDurations.WithLabelValues(model).Observe(elapsed.Seconds())
	}
}

// PassDone records the outcome of one driver pass.
func (c *Collector) PassDone(ok bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	if ok {
		if c.PassesWritten != nil {
			c.PassesWritten.Inc()
		}
	} else if c.PassesFailed != nil {
		c.PassesFailed.Inc()
	}
	if c.PassDurations != nil {
		c.PassDurations.Observe(elapsed.Seconds())
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
