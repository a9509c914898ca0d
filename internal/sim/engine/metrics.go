package engine

import "colony.ai/internal/protocol"

// EngineMetrics is a thread-safe read-only view of key engine signals.
// It is updated from the engine goroutine and read from HTTP handlers/tests.
type EngineMetrics struct {
	Tick  uint64 `json:"tick"`
	RunID string `json:"run_id"`

	Tasks       int `json:"tasks"`
	Pooled      int `json:"pooled"`
	Running     int `json:"running"`
	IdleWorkers int `json:"idle_workers"`
	BusyWorkers int `json:"busy_workers"`

	StepMS float64 `json:"step_ms"`

	IssuedTotal   uint64            `json:"issued_total"`
	RanTotal      uint64            `json:"ran_total"`
	OutcomeTotals map[string]uint64 `json:"outcome_totals"`

	Switches Switches `json:"switches"`
}

func (e *Engine) buildMetrics(s protocol.TickSummary) EngineMetrics {
	totals := make(map[string]uint64, len(e.outcomes))
	for k, v := range e.outcomes {
		totals[k] = v
	}
	return EngineMetrics{
		Tick:          s.Tick,
		RunID:         s.RunID,
		Tasks:         s.Tasks,
		Pooled:        s.Pooled,
		Running:       s.Running,
		IdleWorkers:   s.IdleWorkers,
		BusyWorkers:   s.BusyWorkers,
		StepMS:        s.StepMS,
		IssuedTotal:   e.issuedTotal,
		RanTotal:      e.ranTotal,
		OutcomeTotals: totals,
		Switches:      e.ctrl.Switches(),
	}
}

func (e *Engine) Metrics() EngineMetrics {
	if e == nil {
		return EngineMetrics{}
	}
	v := e.metrics.Load()
	if v == nil {
		return EngineMetrics{}
	}
	m, ok := v.(EngineMetrics)
	if !ok {
		return EngineMetrics{}
	}
	return m
}
