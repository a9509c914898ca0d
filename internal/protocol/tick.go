package protocol

// TickSummary is emitted once per engine tick. It feeds the tick log, the index
// db, the metrics and the observer stream.
type TickSummary struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	RunID           string `json:"run_id"`

	StepMS float64 `json:"step_ms"`

	Tasks       int `json:"tasks"`
	Pooled      int `json:"pooled"`
	Running     int `json:"running"`
	IdleWorkers int `json:"idle_workers"`
	BusyWorkers int `json:"busy_workers"`

	Issued    int      `json:"issued"`
	Matched   int      `json:"matched"`
	Purged    int      `json:"purged"`
	Ran       int      `json:"ran"`
	Throttled int      `json:"throttled"`
	Outcomes  Outcomes `json:"outcomes"`

	// RecordReset is set on ticks where the call tallies were wiped.
	RecordReset bool `json:"record_reset,omitempty"`
	Compacted   int  `json:"compacted,omitempty"`
}

type Outcomes struct {
	Continue int `json:"continue"`
	Renew    int `json:"renew"`
	Finish   int `json:"finish"`
	Delete   int `json:"delete"`
	// EarlyTerminated counts Continue results downgraded to Renew.
	EarlyTerminated int `json:"early_terminated"`
}

// BootstrapResponse is served to observers before they subscribe.
type BootstrapResponse struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	EngineID        string       `json:"engine_id"`
	RunID           string       `json:"run_id"`
	TickRateHz      int          `json:"tick_rate_hz"`
	Tick            uint64       `json:"tick"`
	Latest          *TickSummary `json:"latest,omitempty"`
}
