package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"colony.ai/internal/persistence/snapshot"
	"colony.ai/internal/protocol"
	"colony.ai/internal/sim/engine"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable read model of the engine's history: one row per
// tick, one per written snapshot and the record tallies sampled at chosen
// ticks. Writes are queued and applied by a single goroutine; when the queue
// is full they are dropped, since the tick log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqTallies
)

type req struct {
	kind reqKind

	tick     protocol.TickSummary
	snapshot snapshotRow
	tallies  talliesBatch
}

type snapshotRow struct {
	Tick    uint64
	Path    string
	RunID   string
	Tasks   int
	Workers int
	Running int
}

type talliesBatch struct {
	Tick uint64
	Rows []engine.Row
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			tasks INTEGER NOT NULL,
			pooled INTEGER NOT NULL,
			running INTEGER NOT NULL,
			idle_workers INTEGER NOT NULL,
			busy_workers INTEGER NOT NULL,
			issued INTEGER NOT NULL,
			ran INTEGER NOT NULL,
			throttled INTEGER NOT NULL,
			step_ms REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_run ON ticks(run_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			run_id TEXT NOT NULL,
			tasks INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			running INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tallies (
			tick INTEGER NOT NULL,
			idx TEXT NOT NULL,
			path TEXT NOT NULL,
			key TEXT NOT NULL,
			value INTEGER NOT NULL,
			PRIMARY KEY (tick, idx, path, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tallies_key ON tallies(idx, path, key, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many writes were discarded because the queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// WriteTick makes the index usable as an engine tick sink.
func (s *SQLiteIndex) WriteTick(sum protocol.TickSummary) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: sum})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		RunID:   snap.Header.RunID,
		Tasks:   len(snap.Tasks),
		Workers: len(snap.Workers),
		Running: len(snap.Roll),
	}})
}

// RecordTallies stores the record tallies as they stood at tick.
func (s *SQLiteIndex) RecordTallies(tick uint64, rows []engine.Row) {
	if s == nil || s.closed.Load() || len(rows) == 0 {
		return
	}
	s.enqueue(req{kind: reqTallies, tallies: talliesBatch{Tick: tick, Rows: rows}})
}

// UpsertTuning stores the applied tuning as canonical JSON with its digest,
// along with the schema version. It writes synchronously.
func (s *SQLiteIndex) UpsertTuning(tune any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return fmt.Errorf("marshal tuning: %w", err)
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, kv := range [][2]string{
		{"schema_version", schemaVersion},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	} {
		if _, err := stmt.Exec(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,run_id,tasks,pooled,running,idle_workers,busy_workers,issued,ran,throttled,step_ms,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,run_id,tasks,workers,running) VALUES(?,?,?,?,?,?)`)
	insertTally, _ := s.db.Prepare(`INSERT OR REPLACE INTO tallies(tick,idx,path,key,value) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertSnapshot, insertTally} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			if insertTick == nil {
				continue
			}
			t := r.tick
			raw, _ := json.Marshal(t)
			if _, err := tx.Stmt(insertTick).Exec(
				int64(t.Tick),
				t.RunID,
				t.Tasks,
				t.Pooled,
				t.Running,
				t.IdleWorkers,
				t.BusyWorkers,
				t.Issued,
				t.Ran,
				t.Throttled,
				t.StepMS,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			if insertSnapshot == nil {
				continue
			}
			sn := r.snapshot
			if _, err := tx.Stmt(insertSnapshot).Exec(
				int64(sn.Tick),
				sn.Path,
				sn.RunID,
				sn.Tasks,
				sn.Workers,
				sn.Running,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqTallies:
			if insertTally == nil {
				continue
			}
			b := r.tallies
			for _, row := range b.Rows {
				if _, err := tx.Stmt(insertTally).Exec(
					int64(b.Tick),
					row.Index,
					strings.Join(row.Path, "/"),
					row.Key,
					row.Value,
				); err != nil {
					rollback()
					break
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
