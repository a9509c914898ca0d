// Package engine schedules tasks over a population of workers, one tick at a
// time. A tick runs, in order: dead-worker purge, Adjust, Issue, worker
// matching, Run. All state is owned by the goroutine that calls Step (or Run).
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"colony.ai/internal/persistence/snapshot"
	"colony.ai/internal/protocol"
	"colony.ai/internal/sim/tasks"
)

// TickSink receives the summary of every tick. Sinks are called from the
// engine goroutine and must not block.
type TickSink interface {
	WriteTick(s protocol.TickSummary) error
}

type Options struct {
	Sensor   WorldSensor
	Demand   SpawnDemand
	Policy   AcceptancePolicy
	Registry *tasks.Registry
	// Logger may be nil.
	Logger *log.Logger
}

type Engine struct {
	cfg      Config
	runID    string
	registry *tasks.Registry
	logger   *log.Logger

	st     *State
	pool   *TaskPool
	runs   *RunSet
	coord  *Coordinator
	loader *Loader
	ctrl   *Controller

	tick atomic.Uint64

	sinks []TickSink
	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics  atomic.Value
	stop     chan struct{}
	stopOnce sync.Once

	issuedTotal uint64
	ranTotal    uint64
	outcomes    map[string]uint64
}

var ErrNoSensor = errors.New("engine: world sensor is required")

func New(cfg Config, opts Options) (*Engine, error) {
	if opts.Sensor == nil {
		return nil, ErrNoSensor
	}
	cfg.applyDefaults()
	if opts.Registry == nil {
		opts.Registry = tasks.NewRegistry()
	}

	e := &Engine{
		cfg:      cfg,
		runID:    uuid.NewString(),
		registry: opts.Registry,
		logger:   opts.Logger,
		st:       NewState(),
		stop:     make(chan struct{}),
		outcomes: map[string]uint64{},
	}
	e.pool = NewTaskPool(e.st.task)
	e.runs = NewRunSet()
	e.coord = NewCoordinator(e.st, e.pool, e.runs, opts.Sensor, opts.Demand, opts.Policy, e.registry, opts.Logger)
	e.loader = NewLoader(e.st, e.coord, opts.Sensor)
	e.ctrl = NewController(cfg, e.coord, opts.Sensor, 0, opts.Logger)
	return e, nil
}

func (e *Engine) ID() string { return e.cfg.ID }

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) TickRateHz() int { return e.cfg.TickRateHz }

func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) State() *State { return e.st }

func (e *Engine) Pool() *TaskPool { return e.pool }

func (e *Engine) RunSet() *RunSet { return e.runs }

func (e *Engine) Coordinator() *Coordinator { return e.coord }

func (e *Engine) Controller() *Controller { return e.ctrl }

func (e *Engine) Registry() *tasks.Registry { return e.registry }

func (e *Engine) AddTickSink(s TickSink) {
	if s != nil {
		e.sinks = append(e.sinks, s)
	}
}

func (e *Engine) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { e.snapshotSink = ch }

// AddTask adds a task from outside the tick. It must be called from the engine
// goroutine or while the engine is stopped.
func (e *Engine) AddTask(t *tasks.Task, silence bool) bool {
	return e.coord.AddTask(t, silence)
}

// AddToTimer schedules fn at a future tick.
func (e *Engine) AddToTimer(tick uint64, fn func()) bool {
	return e.ctrl.AddToTimer(tick, e.tick.Load(), fn)
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Step advances one tick and returns its summary.
func (e *Engine) Step() protocol.TickSummary {
	start := time.Now()
	tick := e.tick.Load()
	e.coord.beginTick(tick)

	e.coord.PurgeDead()
	reset := e.ctrl.Adjust(tick)
	e.ctrl.Issue(tick)
	e.loader.Run()
	e.ctrl.Run(tick)

	compacted := 0
	if reset || (e.cfg.CompactEveryTicks > 0 && tick > 0 && tick%e.cfg.CompactEveryTicks == 0) {
		compacted = e.pool.Compact()
		if compacted > 0 {
			e.logf("tick %d: compacted %d stale pool ids", tick, compacted)
		}
	}

	sum := e.summary(tick, reset, compacted)
	// Tasks added between ticks count toward the next summary.
	e.coord.stats = tickStats{}
	sum.StepMS = float64(time.Since(start).Microseconds()) / 1000.0
	e.account(sum)
	e.tick.Store(tick + 1)

	for _, s := range e.sinks {
		if err := s.WriteTick(sum); err != nil {
			e.logf("tick %d: sink: %v", tick, err)
		}
	}
	e.metrics.Store(e.buildMetrics(sum))

	if e.snapshotSink != nil && e.cfg.SnapshotEveryTicks > 0 && tick != 0 && tick%e.cfg.SnapshotEveryTicks == 0 {
		snap, err := e.ExportSnapshot(tick)
		if err != nil {
			e.logf("tick %d: export snapshot: %v", tick, err)
		} else {
			select {
			case e.snapshotSink <- snap:
			default:
				e.logf("tick %d: snapshot sink full, dropped", tick)
			}
		}
	}
	return sum
}

func (e *Engine) summary(tick uint64, reset bool, compacted int) protocol.TickSummary {
	s := e.coord.stats
	idle := len(e.st.Idle.GetAllFromNode(nil))
	busy := 0
	for _, w := range e.st.Workers {
		if !w.Idle() {
			busy++
		}
	}
	return protocol.TickSummary{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		RunID:           e.runID,
		Tasks:           len(e.st.WareHouse),
		Pooled:          e.pool.Len(),
		Running:         e.runs.Len(),
		IdleWorkers:     idle,
		BusyWorkers:     busy,
		Issued:          s.issued,
		Matched:         s.matched,
		Purged:          s.purged,
		Ran:             s.ran,
		Throttled:       s.throttled,
		Outcomes: protocol.Outcomes{
			Continue:        s.cont,
			Renew:           s.renew,
			Finish:          s.finish,
			Delete:          s.del,
			EarlyTerminated: s.early,
		},
		RecordReset: reset,
		Compacted:   compacted,
	}
}

func (e *Engine) account(s protocol.TickSummary) {
	e.issuedTotal += uint64(s.Issued)
	e.ranTotal += uint64(s.Ran)
	e.outcomes[tasks.Continue.String()] += uint64(s.Outcomes.Continue)
	e.outcomes[tasks.Renew.String()] += uint64(s.Outcomes.Renew)
	e.outcomes[tasks.Finish.String()] += uint64(s.Outcomes.Finish)
	e.outcomes[tasks.Delete.String()] += uint64(s.Outcomes.Delete)
}

// Run steps the engine at TickRateHz until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case <-ticker.C:
			e.Step()
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (e *Engine) Stop() { e.stopOnce.Do(func() { close(e.stop) }) }
