// Package snapshot reads and writes world snapshots: a zstd stream holding
// a one-line JSON header followed by the gob-encoded SnapshotV1.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
	// Final is set on the snapshot taken when a run ends.
	Final bool `json:"final,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Config ConfigV1 `json:"config"`

	Restarts  uint64    `json:"restarts"`
	StartedAt time.Time `json:"started_at"`
	Speed     int       `json:"speed"`

	Growth GrowthV1 `json:"growth"`
	RNG    []byte   `json:"rng"`

	Agents    []AgentV1    `json:"agents"`
	Resources []ResourceV1 `json:"resources"`

	Counters CountersV1 `json:"counters"`
}

type ConfigV1 struct {
	Size               int            `json:"size"`
	Seed               int64          `json:"seed"`
	ResourceCount      int            `json:"resource_count"`
	Population         []PopulationV1 `json:"population"`
	InitialEnergyMin   int            `json:"initial_energy_min"`
	InitialEnergyMax   int            `json:"initial_energy_max"`
	ResourceEnergy     int            `json:"resource_energy"`
	IdleCost           int            `json:"idle_cost"`
	MoveCost           int            `json:"move_cost"`
	ReproductionEnergy int            `json:"reproduction_energy"`
	MoveRate           float64        `json:"move_rate"`
	VisionReach        int            `json:"vision_reach"`
}

type PopulationV1 struct {
	Strategy string `json:"strategy"`
	Count    int    `json:"count"`
}

type GrowthV1 struct {
	Rate     int    `json:"rate"`
	Elapsed  uint64 `json:"elapsed"`
	Interval uint64 `json:"interval"`
}

type AgentV1 struct {
	ID       uint64 `json:"id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Energy   int    `json:"energy"`
	Strategy string `json:"strategy"`
	Sigil    rune   `json:"sigil"`
	State    []byte `json:"state,omitempty"`
}

type ResourceV1 struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type CountersV1 struct {
	NextAgent        uint64 `json:"next_agent"`
	Ticks            uint64 `json:"ticks"`
	Births           uint64 `json:"births"`
	Deaths           uint64 `json:"deaths"`
	Moves            uint64 `json:"moves"`
	Looks            uint64 `json:"looks"`
	Eaten            uint64 `json:"eaten"`
	Grown            uint64 `json:"grown"`
	GrowthEvents     uint64 `json:"growth_events"`
	RejectedStale    uint64 `json:"rejected_stale"`
	RejectedOccupied uint64 `json:"rejected_occupied"`
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err = bw.Write(hb); err == nil {
		err = bw.WriteByte('\n')
	}
	if err == nil {
		if err = gob.NewEncoder(bw).Encode(&snap); err != nil {
			err = fmt.Errorf("gob encode: %w", err)
		}
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header is repeated inside the gob payload.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// Path is the conventional location of the snapshot for tick under dir.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}

// Latest returns the most recently written snapshot in dir, preferring the
// higher tick when modification times tie.
func Latest(dir string) (string, error) {
	paths, err := byRecency(dir)
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// LatestResumable is Latest restricted to snapshots of live runs. Final
// snapshots record a run that already ended and are skipped.
func LatestResumable(dir string) (string, error) {
	paths, err := byRecency(dir)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		h, err := ReadHeader(p)
		if err != nil {
			return "", fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if !h.Final {
			return p, nil
		}
	}
	return "", os.ErrNotExist
}

// byRecency lists the snapshots in dir, newest first.
func byRecency(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type cand struct {
		mod  time.Time
		tick uint64
		path string
	}
	var cands []cand
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, cand{mod: info.ModTime(), tick: tick, path: filepath.Join(dir, name)})
	}
	if len(cands) == 0 {
		return nil, os.ErrNotExist
	}
	// Tick numbers restart with every run, so recency decides.
	sort.Slice(cands, func(i, j int) bool {
		if !cands[i].mod.Equal(cands[j].mod) {
			return cands[i].mod.After(cands[j].mod)
		}
		return cands[i].tick > cands[j].tick
	})
	paths := make([]string, len(cands))
	for i, c := range cands {
		paths[i] = c.path
	}
	return paths, nil
}
