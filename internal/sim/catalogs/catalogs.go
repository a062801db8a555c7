package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// BlockID is a palette index. 0 is always the empty block.
type BlockID uint16

const Empty BlockID = 0

// Names of the blocks the generator relies on.
const (
	NameEmpty   = "empty"
	NameGrass   = "grass"
	NameDirt    = "dirt"
	NameStone   = "stone"
	NameCoalOre = "coal_ore"
	NameIronOre = "iron_ore"
	NameTree    = "tree"
	NameLeaves  = "leaves"
)

var ErrUnknownBlock = errors.New("unknown block")

type Scale struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type BlockDef struct {
	ID       BlockID `json:"id"`
	Name     string  `json:"name"`
	Color    *uint32 `json:"color,omitempty"`
	Scale    *Scale  `json:"scale,omitempty"`
	Scarcity float64 `json:"scarcity,omitempty"`
}

// Resource reports whether the block takes part in resource scatter.
func (d BlockDef) Resource() bool { return d.Scale != nil }

// BlockCatalog is a read-only table built once at startup.
type BlockCatalog struct {
	defs   []BlockDef // ordered by id
	byID   map[BlockID]int
	byName map[string]int

	Digest string
}

func color(v uint32) *uint32 { return &v }

// Default returns the built-in block table.
func Default() *BlockCatalog {
	c, err := build([]BlockDef{
		{ID: 0, Name: NameEmpty},
		{ID: 1, Name: NameGrass, Color: color(0x559020)},
		{ID: 2, Name: NameDirt, Color: color(0x807020)},
		{ID: 3, Name: NameStone, Color: color(0x808080), Scale: &Scale{X: 30, Y: 30, Z: 30}, Scarcity: 0.5},
		{ID: 4, Name: NameCoalOre, Color: color(0x202020), Scale: &Scale{X: 20, Y: 20, Z: 20}, Scarcity: 0.8},
		{ID: 5, Name: NameIronOre, Color: color(0x806060), Scale: &Scale{X: 60, Y: 60, Z: 60}, Scarcity: 0.9},
		{ID: 6, Name: NameTree, Color: color(0x604020)},
		{ID: 7, Name: NameLeaves, Color: color(0x80c080)},
	}, nil)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a blocks.json file: an array of BlockDef.
func Load(path string) (*BlockCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	c, err := build(defs, raw)
	if err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	return c, nil
}

func build(defs []BlockDef, raw []byte) (*BlockCatalog, error) {
	c := &BlockCatalog{
		byID:   map[BlockID]int{},
		byName: map[string]int{},
	}
	sorted := append([]BlockDef(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, d := range sorted {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, fmt.Errorf("block %d: empty name", d.ID)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate block id %d", d.ID)
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate block name %q", d.Name)
		}
		if d.Scarcity < 0 || d.Scarcity > 1 {
			return nil, fmt.Errorf("block %s: scarcity %v outside [0,1]", d.Name, d.Scarcity)
		}
		if d.Scale != nil && (d.Scale.X <= 0 || d.Scale.Y <= 0 || d.Scale.Z <= 0) {
			return nil, fmt.Errorf("block %s: scale must be positive", d.Name)
		}
		c.byID[d.ID] = len(c.defs)
		c.byName[d.Name] = len(c.defs)
		c.defs = append(c.defs, d)
	}

	// Ensure empty exists and is palette id 0.
	i, ok := c.byName[NameEmpty]
	if !ok || c.defs[i].ID != Empty {
		return nil, fmt.Errorf("missing %s with id 0", NameEmpty)
	}
	if c.defs[i].Resource() {
		return nil, fmt.Errorf("%s cannot be a resource", NameEmpty)
	}
	for _, name := range []string{NameGrass, NameDirt, NameTree, NameLeaves} {
		if _, ok := c.byName[name]; !ok {
			return nil, fmt.Errorf("missing required block %q", name)
		}
	}

	if raw == nil {
		raw, _ = json.Marshal(c.defs)
	}
	sum := sha256.Sum256(raw)
	c.Digest = hex.EncodeToString(sum[:])
	return c, nil
}

func (c *BlockCatalog) Get(id BlockID) (BlockDef, bool) {
	i, ok := c.byID[id]
	if !ok {
		return BlockDef{}, false
	}
	return c.defs[i], true
}

func (c *BlockCatalog) ByName(name string) (BlockDef, bool) {
	i, ok := c.byName[name]
	if !ok {
		return BlockDef{}, false
	}
	return c.defs[i], true
}

// MustID resolves a name that build() guarantees to exist.
func (c *BlockCatalog) MustID(name string) BlockID {
	d, ok := c.ByName(name)
	if !ok {
		panic(fmt.Sprintf("catalogs: %v %q", ErrUnknownBlock, name))
	}
	return d.ID
}

// Blocks returns every definition ordered by id.
func (c *BlockCatalog) Blocks() []BlockDef {
	return append([]BlockDef(nil), c.defs...)
}

// Resources returns the scatter-capable blocks in catalog order.
func (c *BlockCatalog) Resources() []BlockDef {
	var out []BlockDef
	for _, d := range c.defs {
		if d.Resource() {
			out = append(out, d)
		}
	}
	return out
}

// Palette lists block names indexed by position in id order.
func (c *BlockCatalog) Palette() []string {
	out := make([]string, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d.Name)
	}
	return out
}
