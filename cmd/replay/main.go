// Command replay inspects engine snapshots and tick logs offline. Given
// -ticks it also resumes the snapshot against a fresh sandbox world and steps
// it, printing one summary per tick.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	persistlog "colony.ai/internal/persistence/log"
	"colony.ai/internal/persistence/snapshot"
	"colony.ai/internal/sim/engine"
	"colony.ai/internal/sim/sandbox"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	var (
		snapPath    = fs.String("snapshot", "", "path to .snap.zst")
		ticksDir    = fs.String("ticks", "", "tick log dir containing ticks-*.jsonl.zst (optional)")
		sandboxPath = fs.String("sandbox", "", "sandbox.yaml used when stepping (default: built-in layout)")
		steps       = fs.Int("steps", 0, "ticks to step after loading the snapshot")
		fromTick    = fs.Uint64("from_tick", 0, "first logged tick to print (inclusive)")
		toTick      = fs.Uint64("to_tick", 0, "last logged tick to print (inclusive, 0 = all)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *snapPath == "" && *ticksDir == "" {
		return fmt.Errorf("missing -snapshot or -ticks")
	}

	if *ticksDir != "" {
		if err := printLog(out, *ticksDir, *fromTick, *toTick); err != nil {
			return err
		}
	}
	if *snapPath == "" {
		return nil
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	describe(out, snap)
	if *steps <= 0 {
		return nil
	}

	scfg := sandbox.DefaultConfig()
	if *sandboxPath != "" {
		if scfg, err = sandbox.LoadConfig(*sandboxPath); err != nil {
			return fmt.Errorf("load sandbox: %w", err)
		}
	}
	world, err := sandbox.New(scfg)
	if err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	eng, err := engine.New(engine.Config{ID: snap.Header.EngineID}, engine.Options{
		Sensor: world,
		Demand: world,
		Policy: sandbox.RoleTable(),
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	world.Install(eng)
	if err := eng.ImportSnapshot(snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	enc := json.NewEncoder(out)
	for i := 0; i < *steps; i++ {
		if err := enc.Encode(eng.Step()); err != nil {
			return err
		}
	}
	return nil
}

func describe(out io.Writer, snap snapshot.SnapshotV1) {
	fmt.Fprintf(out, "snapshot v%d engine=%s run=%s tick=%d tasks=%d workers=%d running=%d\n",
		snap.Header.Version, snap.Header.EngineID, snap.Header.RunID, snap.Header.Tick,
		len(snap.Tasks), len(snap.Workers), len(snap.Roll))

	kinds := map[string]int{}
	for _, t := range snap.Tasks {
		kinds[t.TaskType+"/"+t.SubType]++
	}
	keys := make([]string, 0, len(kinds))
	for k := range kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-24s %d\n", k, kinds[k])
	}
}

func printLog(out io.Writer, dir string, from, to uint64) error {
	files, err := persistlog.Segments(dir)
	if err != nil {
		return fmt.Errorf("list ticks: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no tick log files found in %s", dir)
	}
	enc := json.NewEncoder(out)
	for _, path := range files {
		entries, err := persistlog.ReadTicks(path)
		if err != nil {
			return err
		}
		for _, s := range entries {
			if s.Tick < from || (to != 0 && s.Tick > to) {
				continue
			}
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
	}
	return nil
}
