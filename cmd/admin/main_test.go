package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eyes.sim/internal/persistence/indexdb"
	"eyes.sim/internal/persistence/snapshot"
	"eyes.sim/internal/protocol"
	"eyes.sim/internal/sim/world"
	"eyes.sim/internal/transport/observer"
)

func TestListSnapshots_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []uint64{1000, 250000, 5000} {
		snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "r1", Tick: tick, Final: tick == 250000}}
		if err := snapshot.WriteSnapshot(snapshot.Path(dir, tick), snap); err != nil {
			t.Fatalf("WriteSnapshot: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := listSnapshots(&buf, dir); err != nil {
		t.Fatalf("listSnapshots: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%q", lines)
	}
	if !strings.Contains(lines[0], "tick=250,000") || !strings.HasSuffix(lines[0], "final") {
		t.Fatalf("first line %q", lines[0])
	}
	if !strings.Contains(lines[2], "tick=1,000") {
		t.Fatalf("last line %q", lines[2])
	}
}

func TestQueryIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eyes.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordRun(world.RunInfo{RunID: "r1", Restart: 0, Seed: 5, StartedAt: time.Unix(100, 0)})
	idx.RecordRun(world.RunInfo{RunID: "r2", Restart: 1, Seed: 6, StartedAt: time.Unix(200, 0)})
	for _, tick := range []uint64{1000, 2000} {
		_ = idx.WriteTick(world.TickLogEntry{Tick: tick, RunID: "r2", Agents: 3, Digest: "d"})
	}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 1000, RunID: "r1", Agents: 9, Digest: "e"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 2000, RunID: "r2", Command: "GROWTH_RATE_UP", Detail: "growth_rate=51"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var buf bytes.Buffer
	if err := queryIndex(&buf, db, "runs", "", 10); err != nil {
		t.Fatalf("runs: %v", err)
	}
	var run struct {
		RunID   string `json:"run_id"`
		Restart uint64 `json:"restart"`
	}
	first, _, _ := strings.Cut(buf.String(), "\n")
	if err := json.Unmarshal([]byte(first), &run); err != nil {
		t.Fatalf("unmarshal %q: %v", first, err)
	}
	if run.RunID != "r2" || run.Restart != 1 {
		t.Fatalf("first run=%+v", run)
	}

	buf.Reset()
	if err := queryIndex(&buf, db, "ticks", "r2", 10); err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("ticks for r2: %d rows\n%s", n, buf.String())
	}

	buf.Reset()
	if err := queryIndex(&buf, db, "audits", "", 10); err != nil {
		t.Fatalf("audits: %v", err)
	}
	if !strings.Contains(buf.String(), `"detail":"growth_rate=51"`) {
		t.Fatalf("audits=%s", buf.String())
	}

	if err := queryIndex(&buf, db, "nope", "", 10); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func startObserver(t *testing.T, commands chan<- world.Command) string {
	t.Helper()
	s := observer.NewServer(commands, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestSendControl_Ack(t *testing.T) {
	cmds := make(chan world.Command, 1)
	base := startObserver(t, cmds)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ack, err := sendControl(ctx, base, "pause")
	if err != nil {
		t.Fatalf("sendControl: %v", err)
	}
	if ack.Command != "PAUSE" {
		t.Fatalf("ack=%+v", ack)
	}
	select {
	case c := <-cmds:
		if c != world.CmdPause {
			t.Fatalf("forwarded %v", c)
		}
	default:
		t.Fatalf("command not forwarded")
	}
}

func TestSendControl_Errors(t *testing.T) {
	base := startObserver(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := sendControl(ctx, base, "pause")
	var ce *controlError
	if !errors.As(err, &ce) || ce.Code != protocol.ErrReadOnly {
		t.Fatalf("err=%v", err)
	}

	_, err = sendControl(ctx, startObserver(t, make(chan world.Command, 1)), "fly")
	if !errors.As(err, &ce) || ce.Code != protocol.ErrUnknownCommand {
		t.Fatalf("err=%v", err)
	}
}
