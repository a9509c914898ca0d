package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"colony.ai/internal/observability"
	"colony.ai/internal/persistence/indexdb"
	persistlog "colony.ai/internal/persistence/log"
	"colony.ai/internal/persistence/snapshot"
	"colony.ai/internal/protocol"
	"colony.ai/internal/sim/engine"
	"colony.ai/internal/sim/sandbox"
	"colony.ai/internal/sim/tuning"
	"colony.ai/internal/transport/observer"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		engineID    = flag.String("id", "colony_1", "engine id")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		sandboxPath = flag.String("sandbox", "", "path to sandbox.yaml (default: <configs>/sandbox.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite read-model index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	engineLogger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)
	observerLogger := log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds)

	engineDir := filepath.Join(*dataDir, "engines", *engineID)
	_ = os.MkdirAll(engineDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(engineDir)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	sp := strings.TrimSpace(*sandboxPath)
	if sp == "" {
		sp = filepath.Join(*configDir, "sandbox.yaml")
	}
	scfg, err := sandbox.LoadConfig(sp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load sandbox: %v", err)
		}
		logger.Printf("sandbox config not found (%s); using defaults", sp)
		scfg = sandbox.DefaultConfig()
	}
	world, err := sandbox.New(scfg)
	if err != nil {
		logger.Fatalf("sandbox: %v", err)
	}

	eng, err := engine.New(tune.EngineConfig(*engineID), engine.Options{
		Sensor: world,
		Demand: world,
		Policy: sandbox.RoleTable(),
		Logger: engineLogger,
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	// Behaviors must be registered before a snapshot import re-attaches them.
	world.Install(eng)

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.EngineID != "" && snap.Header.EngineID != *engineID {
			logger.Fatalf("snapshot engine id mismatch: flag=%s snap=%s", *engineID, snap.Header.EngineID)
		}
		if err := eng.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), eng.CurrentTick())
	}

	// Optional read-model index (does not affect scheduling).
	idx, err := openRuntimeIndex(engineDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(filepath.Join(engineDir, "ticks"), tune.LogSegmentTicks)
	defer tickLog.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg, "colony")
	hub := observer.NewHub(8)

	eng.AddTickSink(tickLog)
	eng.AddTickSink(metrics)
	eng.AddTickSink(hub)
	if idx != nil {
		eng.AddTickSink(idx)
		eng.AddTickSink(tallySink{ctrl: eng.Controller(), idx: idx, every: tune.AdjustInterval})
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	eng.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(engineDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				idx.RecordSnapshot(path, snap)
			}
		}
	}()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	obsSrv := observer.NewServer(eng, hub, observerLogger)
	mux := newMux(eng, obsSrv, reg, muxOptions{
		Admin: envBool("COLONY_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		Pprof: envBool("COLONY_ENABLE_PPROF_HTTP", false),
	}, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("engine=%s run=%s listening on %s", *engineID, eng.RunID(), *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-engineDone
	logger.Printf("stopped at tick=%d", eng.CurrentTick())
}

// tallySink samples the record tallies into the index every few ticks. It runs
// on the engine goroutine, which owns the record.
type tallySink struct {
	ctrl  *engine.Controller
	idx   *indexdb.SQLiteIndex
	every uint64
}

func (s tallySink) WriteTick(sum protocol.TickSummary) error {
	if s.every == 0 || sum.Tick == 0 || sum.Tick%s.every != 0 {
		return nil
	}
	s.idx.RecordTallies(sum.Tick, s.ctrl.Record().Rows())
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(engineDir string) string {
	dir := filepath.Join(engineDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
