// Package tuning loads, clamps and saves the simulation settings file.
package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"eyes.sim/internal/sim/world"
)

const (
	MinSize = 10
	MaxSize = 200
)

type Tuning struct {
	Size           int     `yaml:"size"`
	Seed           int64   `yaml:"seed"`
	ResourceCount  int     `yaml:"resource_count"`
	ResourceEnergy int     `yaml:"resource_energy"`
	GrowthRate     int     `yaml:"growth_rate"`
	Speed          int     `yaml:"speed"`
	MoveRate       float64 `yaml:"move_rate"`
	VisionReach    int     `yaml:"vision_reach"`

	Energy     Energy       `yaml:"energy"`
	Population []Population `yaml:"population"`
	Ops        Ops          `yaml:"ops"`
}

type Energy struct {
	InitialMin   int `yaml:"initial_min"`
	InitialMax   int `yaml:"initial_max"`
	Idle         int `yaml:"idle"`
	Move         int `yaml:"move"`
	Reproduction int `yaml:"reproduction"`
}

type Population struct {
	Strategy string `yaml:"strategy"`
	Count    int    `yaml:"count"`
}

// Ops are operational knobs that do not change simulation outcomes.
type Ops struct {
	LogEveryTicks      uint64 `yaml:"log_every_ticks"`
	SnapshotEveryTicks uint64 `yaml:"snapshot_every_ticks"`
	StrictInvariants   bool   `yaml:"strict_invariants"`
}

func Defaults() Tuning {
	return Tuning{
		Size:           40,
		ResourceCount:  1000,
		ResourceEnergy: 1000,
		GrowthRate:     85,
		Speed:          9,
		MoveRate:       0.005,
		VisionReach:    4,
		Energy: Energy{
			InitialMin:   10000,
			InitialMax:   20000,
			Idle:         1,
			Move:         10,
			Reproduction: 100000,
		},
		Population: []Population{
			{Strategy: "random", Count: 10},
			{Strategy: "noop", Count: 10},
			{Strategy: "tape", Count: 10},
			{Strategy: "looker", Count: 10},
		},
		Ops: Ops{
			LogEveryTicks:      1000,
			SnapshotEveryTicks: 100000,
		},
	}
}

// Performance is the benchmark preset: random walkers with no energy costs
// survive indefinitely on a typical amount of resource.
func Performance() Tuning {
	t := Defaults()
	t.Speed = 10
	t.MoveRate = 0.001
	t.ResourceEnergy = 0
	t.Energy.Idle = 0
	t.Energy.Move = 0
	t.Population = []Population{{Strategy: "random", Count: 50}}
	return t
}

// Load reads path, validates it against the embedded schema and clamps it.
// Keys missing from the file keep their defaults. An empty path returns the
// defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := Validate(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	return t, nil
}

// LoadOrInit loads path, writing the defaults first when the file does not
// exist or reset is set.
func LoadOrInit(path string, reset bool) (Tuning, error) {
	_, err := os.Stat(path)
	if reset || errors.Is(err, os.ErrNotExist) {
		t := Defaults()
		if err := Save(path, t); err != nil {
			return t, err
		}
		return t, nil
	}
	return Load(path)
}

func Save(path string, t Tuning) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// Normalize clamps every field into its legal range.
func (t *Tuning) Normalize() {
	t.Size = min(max(t.Size, MinSize), MaxSize)
	cells := t.Size * t.Size
	t.ResourceCount = min(max(t.ResourceCount, 0), cells)
	t.ResourceEnergy = max(t.ResourceEnergy, 0)
	t.GrowthRate = min(max(t.GrowthRate, world.MinGrowthRate), world.MaxGrowthRate)
	t.Speed = min(max(t.Speed, world.MinSpeed), world.MaxSpeed)
	t.MoveRate = min(max(t.MoveRate, 0), 1)
	t.VisionReach = min(max(t.VisionReach, 1), t.Size)

	e := &t.Energy
	e.InitialMin = max(e.InitialMin, 1)
	e.InitialMax = max(e.InitialMax, e.InitialMin)
	e.Idle = max(e.Idle, 0)
	e.Move = max(e.Move, 0)
	e.Reproduction = max(e.Reproduction, 1)

	for i := range t.Population {
		t.Population[i].Strategy = strings.TrimSpace(t.Population[i].Strategy)
		t.Population[i].Count = min(max(t.Population[i].Count, 0), cells)
	}
}

func (t Tuning) WorldConfig() world.Config {
	cfg := world.Config{
		Size:               t.Size,
		Seed:               t.Seed,
		ResourceCount:      t.ResourceCount,
		InitialEnergyMin:   t.Energy.InitialMin,
		InitialEnergyMax:   t.Energy.InitialMax,
		ResourceEnergy:     t.ResourceEnergy,
		IdleCost:           t.Energy.Idle,
		MoveCost:           t.Energy.Move,
		ReproductionEnergy: t.Energy.Reproduction,
		MoveRate:           t.MoveRate,
		GrowthRate:         t.GrowthRate,
		Speed:              t.Speed,
		VisionReach:        t.VisionReach,
		StrictInvariants:   t.Ops.StrictInvariants,
	}
	for _, p := range t.Population {
		cfg.Population = append(cfg.Population, world.PopulationEntry{Strategy: p.Strategy, Count: p.Count})
	}
	return cfg
}

//go:embed tuning.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("tuning.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("tuning.schema.json")
	})
	return schema, schemaErr
}

// Validate checks raw YAML against the tuning schema.
func Validate(raw []byte) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// The validator expects JSON-shaped values.
	jb, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(jb, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
