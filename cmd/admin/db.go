package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd runs one of the canned index queries: snapshots, ticks or tallies.
func dbCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("db", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	engineID := fs.String("id", "", "engine id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "tally tick (optional; defaults to latest)")
	limit := fs.Int("limit", 20, "result limit")
	room := fs.String("room", "", "room filter (tallies)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*engineID) == "" {
			return fmt.Errorf("missing -id or -db")
		}
		path = filepath.Join(*dataDir, "engines", *engineID, "index", "colony.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,run_id,tasks,workers,running FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Path    string `json:"path"`
				RunID   string `json:"run_id"`
				Tasks   int    `json:"tasks"`
				Workers int    `json:"workers"`
				Running int    `json:"running"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.RunID, &r.Tasks, &r.Workers, &r.Running); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,run_id,tasks,pooled,running,issued,ran,throttled,step_ms FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64   `json:"tick"`
				RunID     string  `json:"run_id"`
				Tasks     int     `json:"tasks"`
				Pooled    int     `json:"pooled"`
				Running   int     `json:"running"`
				Issued    int     `json:"issued"`
				Ran       int     `json:"ran"`
				Throttled int     `json:"throttled"`
				StepMS    float64 `json:"step_ms"`
			}
			if err := rows.Scan(&r.Tick, &r.RunID, &r.Tasks, &r.Pooled, &r.Running, &r.Issued, &r.Ran, &r.Throttled, &r.StepMS); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "tallies":
		if *tick == 0 {
			var lt sql.NullInt64
			if err := db.QueryRow(`SELECT MAX(tick) FROM tallies`).Scan(&lt); err != nil {
				return fmt.Errorf("latest tick: %w", err)
			}
			if !lt.Valid {
				return fmt.Errorf("no tallies found")
			}
			*tick = uint64(lt.Int64)
		}
		query := `SELECT idx,path,key,value FROM tallies WHERE tick=?`
		params := []any{int64(*tick)}
		if *room != "" {
			query += ` AND (path=? OR path LIKE ?)`
			params = append(params, *room, *room+"/%")
		}
		query += ` ORDER BY idx,path,key LIMIT ?`
		params = append(params, *limit)
		rows, err := db.Query(query, params...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick  uint64 `json:"tick"`
				Index string `json:"index"`
				Path  string `json:"path"`
				Key   string `json:"key"`
				Value int    `json:"value"`
			}
			if err := rows.Scan(&r.Index, &r.Path, &r.Key, &r.Value); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Tick = *tick
			printJSON(out, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (want snapshots, ticks or tallies)", q)
	}
}
