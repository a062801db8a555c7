package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world"
	"voxelterrain.dev/internal/sim/world/terrain/gen"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

//go:embed tuning.schema.json
var schemaJSON string

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Tuning struct {
	WorldID    string `yaml:"world_id"`
	TickRateHz int    `yaml:"tick_rate_hz"`

	ChunkWidth  int   `yaml:"chunk_width"`
	ChunkHeight int   `yaml:"chunk_height"`
	Seed        int64 `yaml:"seed"`

	DrawDistance      int  `yaml:"draw_distance"`
	AsyncLoading      bool `yaml:"async_loading"`
	BackgroundLoading bool `yaml:"background_loading"`
	LoadBudgetMs      int  `yaml:"load_budget_ms"`
	EvictHysteresis   int  `yaml:"evict_hysteresis"`
	StrictMeshing     bool `yaml:"strict_meshing"`

	CatalogPath string    `yaml:"catalog_path"`
	Store       StoreSpec `yaml:"store"`

	Terrain   TerrainSpec    `yaml:"terrain"`
	Trees     TreeSpec       `yaml:"trees"`
	Resources []ResourceSpec `yaml:"resources"`
}

type StoreSpec struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type TerrainSpec struct {
	Scale     float64 `yaml:"scale"`
	Magnitude float64 `yaml:"magnitude"`
	Offset    float64 `yaml:"offset"`
}

type TreeSpec struct {
	Frequency float64    `yaml:"frequency"`
	Trunk     TrunkSpec  `yaml:"trunk"`
	Canopy    CanopySpec `yaml:"canopy"`
}

type TrunkSpec struct {
	MinHeight int `yaml:"min_height"`
	MaxHeight int `yaml:"max_height"`
}

type CanopySpec struct {
	MinRadius int     `yaml:"min_radius"`
	MaxRadius int     `yaml:"max_radius"`
	Density   float64 `yaml:"density"`
}

// ResourceSpec overrides the catalog defaults of one resource block. Unset
// fields keep the catalog value.
type ResourceSpec struct {
	Block    string          `yaml:"block"`
	Scarcity *float64        `yaml:"scarcity,omitempty"`
	Scale    *catalogs.Scale `yaml:"scale,omitempty"`
}

// Defaults mirrors the interactive defaults of the terrain demo.
func Defaults() Tuning {
	return Tuning{
		WorldID:      "world_1",
		TickRateHz:   20,
		ChunkWidth:   32,
		ChunkHeight:  32,
		Seed:         0,
		DrawDistance: 1,
		LoadBudgetMs: 4,
		Store:        StoreSpec{Backend: StoreMemory},
		Terrain:      TerrainSpec{Scale: 30, Magnitude: 0.5, Offset: 0.2},
		Trees: TreeSpec{
			Frequency: 0.01,
			Trunk:     TrunkSpec{MinHeight: 4, MaxHeight: 7},
			Canopy:    CanopySpec{MinRadius: 2, MaxRadius: 4, Density: 0.5},
		},
	}
}

// Load reads path over Defaults(). An empty path yields the defaults.
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
	return Parse(raw)
}

// Parse validates raw against the schema, decodes it over Defaults() and
// checks the result.
func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := validateSchema(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var compiledSchema *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	s, err := jsonschema.CompileString("tuning.schema.json", schemaJSON)
	if err != nil {
		return nil, err
	}
	compiledSchema = s
	return s, nil
}

// validateSchema converts the YAML document to its JSON form and checks it
// against the embedded schema.
func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	s, err := schema()
	if err != nil {
		return err
	}
	return s.Validate(v)
}

func (t *Tuning) Normalize() {
	t.WorldID = strings.TrimSpace(t.WorldID)
	t.Store.Backend = strings.ToLower(strings.TrimSpace(t.Store.Backend))
	if t.Store.Backend == "" {
		t.Store.Backend = StoreMemory
	}
	if t.BackgroundLoading {
		t.AsyncLoading = true
	}
	for i := range t.Resources {
		t.Resources[i].Block = strings.TrimSpace(t.Resources[i].Block)
	}
}

func (t Tuning) Validate() error {
	if t.WorldID == "" {
		return errors.New("world_id is required")
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0, got %d", t.TickRateHz)
	}
	if err := t.ChunkSize().Validate(); err != nil {
		return err
	}
	if t.DrawDistance < 0 {
		return fmt.Errorf("draw_distance must be >= 0, got %d", t.DrawDistance)
	}
	if t.LoadBudgetMs < 0 || t.EvictHysteresis < 0 {
		return errors.New("load_budget_ms and evict_hysteresis must be >= 0")
	}
	switch t.Store.Backend {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", t.Store.Backend)
	}
	seen := map[string]bool{}
	for _, r := range t.Resources {
		if r.Block == "" {
			return errors.New("resource block name is required")
		}
		if seen[r.Block] {
			return fmt.Errorf("duplicate resource %q", r.Block)
		}
		seen[r.Block] = true
	}
	return nil
}

func (t Tuning) ChunkSize() grid.Size {
	return grid.Size{Width: t.ChunkWidth, Height: t.ChunkHeight}
}

func (t Tuning) LoadMode() world.LoadMode {
	switch {
	case t.BackgroundLoading:
		return world.LoadBackground
	case t.AsyncLoading:
		return world.LoadDeferred
	default:
		return world.LoadSync
	}
}

func (t Tuning) WorldConfig() world.WorldConfig {
	return world.WorldConfig{
		ID:              t.WorldID,
		TickRateHz:      t.TickRateHz,
		ChunkSize:       t.ChunkSize(),
		DrawDistance:    t.DrawDistance,
		LoadMode:        t.LoadMode(),
		LoadBudget:      time.Duration(t.LoadBudgetMs) * time.Millisecond,
		EvictHysteresis: t.EvictHysteresis,
		StrictMeshing:   t.StrictMeshing,
	}
}

// Params resolves resource names against cat and returns the generation
// parameters. Catalog resources keep catalog order; overrides replace their
// fields in place.
func (t Tuning) Params(cat *catalogs.BlockCatalog) (gen.Params, error) {
	p := gen.DefaultParams(cat)
	p.Seed = t.Seed
	p.Terrain = gen.TerrainParams{
		Scale:     t.Terrain.Scale,
		Magnitude: t.Terrain.Magnitude,
		Offset:    t.Terrain.Offset,
	}
	p.Trees = gen.TreeParams{
		Frequency: t.Trees.Frequency,
		Trunk:     gen.TrunkParams{MinHeight: t.Trees.Trunk.MinHeight, MaxHeight: t.Trees.Trunk.MaxHeight},
		Canopy: gen.CanopyParams{
			MinRadius: t.Trees.Canopy.MinRadius,
			MaxRadius: t.Trees.Canopy.MaxRadius,
			Density:   t.Trees.Canopy.Density,
		},
	}
	for _, spec := range t.Resources {
		def, ok := cat.ByName(spec.Block)
		if !ok {
			return p, fmt.Errorf("tuning.yaml: resource %q: %w", spec.Block, catalogs.ErrUnknownBlock)
		}
		r, ok := p.Resource(def.ID)
		if !ok {
			if spec.Scale == nil || spec.Scarcity == nil {
				return p, fmt.Errorf("tuning.yaml: resource %q has no catalog scatter defaults; set scale and scarcity", spec.Block)
			}
			r = gen.ResourceParams{Block: def.ID}
		}
		if spec.Scale != nil {
			r.Scale = *spec.Scale
		}
		if spec.Scarcity != nil {
			r.Scarcity = *spec.Scarcity
		}
		p = p.WithResource(r)
	}
	if err := p.Validate(cat); err != nil {
		return p, fmt.Errorf("tuning.yaml: %w", err)
	}
	return p, nil
}
