package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run_id filter (ticks, audits, snapshots)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "eyes.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := queryIndex(os.Stdout, db, q, *runID, *limit); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

// queryIndex prints rows of one index table as JSON lines.
func queryIndex(out io.Writer, db *sql.DB, q, runID string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	switch q {
	case "runs":
		rows, err := db.Query(`SELECT run_id,restart,seed,started_at,restored FROM runs ORDER BY restart DESC, started_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID     string `json:"run_id"`
				Restart   uint64 `json:"restart"`
				Seed      int64  `json:"seed"`
				StartedAt string `json:"started_at"`
				Restored  bool   `json:"restored"`
			}
			if err := rows.Scan(&r.RunID, &r.Restart, &r.Seed, &r.StartedAt, &r.Restored); err != nil {
				return err
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT run_id,tick,agents,resources,births,deaths,digest FROM ticks WHERE (?='' OR run_id=?) ORDER BY tick DESC LIMIT ?`, runID, runID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID     string `json:"run_id"`
				Tick      uint64 `json:"tick"`
				Agents    int    `json:"agents"`
				Resources int    `json:"resources"`
				Births    int    `json:"births"`
				Deaths    int    `json:"deaths"`
				Digest    string `json:"digest"`
			}
			if err := rows.Scan(&r.RunID, &r.Tick, &r.Agents, &r.Resources, &r.Births, &r.Deaths, &r.Digest); err != nil {
				return err
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "audits":
		rows, err := db.Query(`SELECT run_id,tick,seq,command,detail FROM audits WHERE (?='' OR run_id=?) ORDER BY tick DESC, seq DESC LIMIT ?`, runID, runID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID   string `json:"run_id"`
				Tick    uint64 `json:"tick"`
				Seq     int    `json:"seq"`
				Command string `json:"command"`
				Detail  string `json:"detail,omitempty"`
			}
			var detail sql.NullString
			if err := rows.Scan(&r.RunID, &r.Tick, &r.Seq, &r.Command, &detail); err != nil {
				return err
			}
			r.Detail = detail.String
			printJSON(out, r)
		}
		return rows.Err()

	case "snapshots":
		rows, err := db.Query(`SELECT run_id,tick,path,agents,resources,final FROM snapshots WHERE (?='' OR run_id=?) ORDER BY tick DESC LIMIT ?`, runID, runID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID     string `json:"run_id"`
				Tick      uint64 `json:"tick"`
				Path      string `json:"path"`
				Agents    int    `json:"agents"`
				Resources int    `json:"resources"`
				Final     bool   `json:"final"`
			}
			if err := rows.Scan(&r.RunID, &r.Tick, &r.Path, &r.Agents, &r.Resources, &r.Final); err != nil {
				return err
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "archives":
		rows, err := db.Query(`SELECT run_id,restart,end_tick,path,recorded_at FROM archives ORDER BY restart DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID      string `json:"run_id"`
				Restart    uint64 `json:"restart"`
				EndTick    uint64 `json:"end_tick"`
				Path       string `json:"path"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.RunID, &r.Restart, &r.EndTick, &r.Path, &r.RecordedAt); err != nil {
				return err
			}
			printJSON(out, r)
		}
		return rows.Err()

	case "meta":
		rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := rows.Scan(&r.Key, &r.Value); err != nil {
				return err
			}
			printJSON(out, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (runs|ticks|audits|snapshots|archives|meta)", q)
	}
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
