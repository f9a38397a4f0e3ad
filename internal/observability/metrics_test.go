package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestTaskLifecycleRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	collector.TaskQueued(1)
	collector.TaskQueued(-1)
	collector.TaskStarted("Karin")
	collector.TaskFinished("Karin", "ok", 25*time.Millisecond)

	if got := testutil.ToFloat64(collector.TaskSubmissions.WithLabelValues("Karin", "ok")); got != 1 {
		t.Fatalf("swot_tasks_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.TasksQueued); got != 0 {
		t.Fatalf("swot_tasks_queued = %v, want 0 after pickup", got)
	}
	if got := testutil.ToFloat64(collector.TasksRunning); got != 0 {
		t.Fatalf("swot_tasks_running = %v, want 0 after finish", got)
	}
	if count := histogramSampleCount(t, reg, "swot_task_duration_seconds", map[string]string{
		"model": "Karin",
	}); count != 1 {
		t.Fatalf("swot_task_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestPassOutcomeCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	collector.PassDone(true, 100*time.Millisecond)
	collector.PassDone(false, 50*time.Millisecond)

	if got := testutil.ToFloat64(collector.PassesWritten); got != 1 {
		t.Fatalf("swot_passes_written_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.PassesFailed); got != 1 {
		t.Fatalf("swot_passes_failed_total = %v, want 1", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector second registration: %v", err)
	}

	first.TaskFinished("Timing", "ok", time.Millisecond)
	second.TaskFinished("Timing", "ok", time.Millisecond)
	if got := testutil.ToFloat64(first.TaskSubmissions.WithLabelValues("Timing", "ok")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestMetricsHandlerExposesSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.TaskStarted("RollPhase")
	collector.TaskFinished("RollPhase", "error", 10*time.Millisecond)
	collector.PassDone(true, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"swot_tasks_total",
		"swot_task_duration_seconds",
		"swot_tasks_queued",
		"swot_tasks_running",
		"swot_passes_written_total",
		"swot_pass_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
