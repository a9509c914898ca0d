package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"colony.ai/internal/persistence/snapshot"
	"colony.ai/internal/protocol"
	"colony.ai/internal/sim/engine"
)

func openForRead(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteIndex_WritesTicksSnapshotsAndTallies(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "colony.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for tick := uint64(0); tick < 5; tick++ {
		if err := idx.WriteTick(protocol.TickSummary{Type: protocol.TypeTick, Tick: tick, RunID: "r1", Issued: 2, Ran: int(tick)}); err != nil {
			t.Fatalf("write tick: %v", err)
		}
	}
	idx.RecordSnapshot("/tmp/snap/4.snap.zst", snapshot.SnapshotV1{
		Header:  snapshot.Header{Version: 1, RunID: "r1", Tick: 4},
		Tasks:   []snapshot.TaskV1{{ID: "a"}, {ID: "b"}},
		Workers: []snapshot.WorkerV1{{Name: "w1"}},
		Roll:    map[string][]string{"a": {"w1"}},
	})
	idx.RecordTallies(4, []engine.Row{
		{Index: engine.RecordCall, Path: []string{"W1N1"}, Key: "harvest", Value: 3},
		{Index: engine.RecordCall, Path: []string{"W1N1", "harvest"}, Key: "source", Value: -1},
	})
	idx.RecordTallies(5, nil)
	if err := idx.UpsertTuning(map[string]int{"tick_rate_hz": 5}); err != nil {
		t.Fatalf("upsert tuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if idx.Dropped() != 0 {
		t.Fatalf("dropped writes: %d", idx.Dropped())
	}
	// Writes after Close are ignored.
	if err := idx.WriteTick(protocol.TickSummary{Tick: 9}); err != nil {
		t.Fatalf("write after close: %v", err)
	}

	db := openForRead(t, dbPath)

	var n, ranSum int
	if err := db.QueryRow(`SELECT COUNT(*), SUM(ran) FROM ticks WHERE run_id='r1'`).Scan(&n, &ranSum); err != nil {
		t.Fatalf("query ticks: %v", err)
	}
	if n != 5 || ranSum != 10 {
		t.Fatalf("ticks: count=%d ran=%d", n, ranSum)
	}

	var tasks, workers, running int
	if err := db.QueryRow(`SELECT tasks, workers, running FROM snapshots WHERE tick=4`).Scan(&tasks, &workers, &running); err != nil {
		t.Fatalf("query snapshots: %v", err)
	}
	if tasks != 2 || workers != 1 || running != 1 {
		t.Fatalf("snapshot row: %d %d %d", tasks, workers, running)
	}

	var v int
	if err := db.QueryRow(`SELECT value FROM tallies WHERE tick=4 AND idx='call' AND path='W1N1/harvest' AND key='source'`).Scan(&v); err != nil {
		t.Fatalf("query tallies: %v", err)
	}
	if v != -1 {
		t.Fatalf("tally: got %d", v)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM tallies`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("tallies count: %d %v", n, err)
	}

	var ver, digest string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&ver); err != nil || ver != schemaVersion {
		t.Fatalf("schema version: %q %v", ver, err)
	}
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning_digest'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning digest: %q %v", digest, err)
	}
}

func TestSQLiteIndex_ReopenKeepsRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "colony.sqlite")
	for i := 0; i < 2; i++ {
		idx, err := OpenSQLite(dbPath)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		_ = idx.WriteTick(protocol.TickSummary{Tick: uint64(i), RunID: "r"})
		_ = idx.WriteTick(protocol.TickSummary{Tick: 0, RunID: "r"})
		if err := idx.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	db := openForRead(t, dbPath)
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 2 {
		t.Fatalf("ticks after reopen: got %d", n)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
}
