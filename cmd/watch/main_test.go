package main

import (
	"encoding/json"
	"strings"
	"testing"

	"colony.ai/internal/protocol"
)

func TestFormatTick(t *testing.T) {
	b, _ := json.Marshal(protocol.TickSummary{Type: protocol.TypeTick, Tick: 10, Ran: 4, Outcomes: protocol.Outcomes{Finish: 2}})
	line, ok := formatTick(b, 5)
	if !ok || !strings.HasPrefix(line, "tick=10 ") || !strings.Contains(line, "ran=4") || !strings.Contains(line, "f2") {
		t.Fatalf("line: %q %v", line, ok)
	}
	if _, ok := formatTick(b, 3); ok {
		t.Fatalf("tick 10 should be skipped with every=3")
	}
	if _, ok := formatTick([]byte(`{"type":"BOOTSTRAP"}`), 1); ok {
		t.Fatalf("non-tick frame formatted")
	}
	if _, ok := formatTick([]byte(`not json`), 1); ok {
		t.Fatalf("garbage formatted")
	}
}
