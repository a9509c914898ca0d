package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"colony.ai/internal/protocol"
)

func TestMetrics_ObserveTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "colony")

	s := protocol.TickSummary{
		Tick:      7,
		Tasks:     4,
		Pooled:    2,
		Running:   1,
		Issued:    3,
		Ran:       1,
		Throttled: 2,
		StepMS:    0.4,
		Outcomes:  protocol.Outcomes{Continue: 1, Delete: 2},
	}
	m.ObserveTick(s)
	if err := m.WriteTick(s); err != nil {
		t.Fatalf("write tick: %v", err)
	}

	if got := testutil.ToFloat64(m.Tasks); got != 4 {
		t.Fatalf("tasks gauge: got %v", got)
	}
	if got := testutil.ToFloat64(m.Issued); got != 6 {
		t.Fatalf("issued counter: got %v", got)
	}
	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("delete")); got != 4 {
		t.Fatalf("delete outcomes: got %v", got)
	}
	if got := testutil.CollectAndCount(m.StepMS); got != 1 {
		t.Fatalf("step histogram series: got %d", got)
	}
}

func TestHandlerFor_ServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "colony")
	m.ObserveTick(protocol.TickSummary{Tick: 3, Throttled: 1})

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"colony_tick 3", "colony_throttled_total 1", "colony_outcomes_total{code=\"renew\"} 0"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "colony")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	NewMetrics(reg, "colony")
}
