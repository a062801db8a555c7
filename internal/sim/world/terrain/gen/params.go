package gen

import (
	"errors"
	"fmt"

	"voxelterrain.dev/internal/sim/catalogs"
)

var ErrInvalidParams = errors.New("invalid generation params")

type TerrainParams struct {
	Scale     float64
	Magnitude float64
	Offset    float64
}

type TrunkParams struct {
	MinHeight int
	MaxHeight int
}

type CanopyParams struct {
	MinRadius int
	MaxRadius int
	Density   float64
}

type TreeParams struct {
	Frequency float64
	Trunk     TrunkParams
	Canopy    CanopyParams
}

// ResourceParams tunes scatter for one resource block.
type ResourceParams struct {
	Block    catalogs.BlockID
	Scale    catalogs.Scale
	Scarcity float64
}

// Params is the generation snapshot a chunk is built from. Chunks copy it at
// construction, so later tuning never touches built chunks.
type Params struct {
	Seed      int64
	Terrain   TerrainParams
	Trees     TreeParams
	Resources []ResourceParams
}

// DefaultParams seeds resource tuning from the catalog defaults.
func DefaultParams(cat *catalogs.BlockCatalog) Params {
	p := Params{
		Seed: 0,
		Terrain: TerrainParams{
			Scale:     30,
			Magnitude: 0.5,
			Offset:    0.2,
		},
		Trees: TreeParams{
			Frequency: 0.01,
			Trunk:     TrunkParams{MinHeight: 4, MaxHeight: 7},
			Canopy:    CanopyParams{MinRadius: 2, MaxRadius: 4, Density: 0.5},
		},
	}
	for _, r := range cat.Resources() {
		p.Resources = append(p.Resources, ResourceParams{
			Block:    r.ID,
			Scale:    *r.Scale,
			Scarcity: r.Scarcity,
		})
	}
	return p
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	p.Resources = append([]ResourceParams(nil), p.Resources...)
	return p
}

// Resource returns the tuning for block id, if present.
func (p Params) Resource(id catalogs.BlockID) (ResourceParams, bool) {
	for _, r := range p.Resources {
		if r.Block == id {
			return r, true
		}
	}
	return ResourceParams{}, false
}

// WithResource returns a copy with the tuning for r.Block replaced (or
// appended when the block had none).
func (p Params) WithResource(r ResourceParams) Params {
	out := p.Clone()
	for i := range out.Resources {
		if out.Resources[i].Block == r.Block {
			out.Resources[i] = r
			return out
		}
	}
	out.Resources = append(out.Resources, r)
	return out
}

func (p Params) Validate(cat *catalogs.BlockCatalog) error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
	}
	if p.Terrain.Scale <= 0 {
		return bad("terrain.scale must be positive, got %v", p.Terrain.Scale)
	}
	if p.Trees.Frequency < 0 || p.Trees.Frequency > 1 {
		return bad("trees.frequency %v outside [0,1]", p.Trees.Frequency)
	}
	if p.Trees.Trunk.MinHeight < 0 || p.Trees.Trunk.MaxHeight < p.Trees.Trunk.MinHeight {
		return bad("trunk height range [%d,%d]", p.Trees.Trunk.MinHeight, p.Trees.Trunk.MaxHeight)
	}
	if p.Trees.Canopy.MinRadius < 0 || p.Trees.Canopy.MaxRadius < p.Trees.Canopy.MinRadius {
		return bad("canopy radius range [%d,%d]", p.Trees.Canopy.MinRadius, p.Trees.Canopy.MaxRadius)
	}
	if p.Trees.Canopy.Density < 0 || p.Trees.Canopy.Density > 1 {
		return bad("canopy.density %v outside [0,1]", p.Trees.Canopy.Density)
	}
	for _, r := range p.Resources {
		if r.Block == catalogs.Empty {
			return bad("resource cannot be the empty block")
		}
		if cat != nil {
			if _, ok := cat.Get(r.Block); !ok {
				return bad("resource %d: %v", r.Block, catalogs.ErrUnknownBlock)
			}
		}
		if r.Scale.X <= 0 || r.Scale.Y <= 0 || r.Scale.Z <= 0 {
			return bad("resource %d: scale must be positive", r.Block)
		}
		if r.Scarcity < 0 || r.Scarcity > 1 {
			return bad("resource %d: scarcity %v outside [0,1]", r.Block, r.Scarcity)
		}
	}
	return nil
}
