package gen

import (
	"context"
	"math"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/noise"
	"voxelterrain.dev/internal/sim/rng"
	"voxelterrain.dev/internal/sim/world/logic/mathx"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

// Overlay supplies player edits for a chunk.
type Overlay interface {
	ForChunk(cx, cz int, fn func(k store.Key, id catalogs.BlockID))
}

// Generator fills chunk grids from one parameter snapshot.
// Noise fields depend on the seed only, so the same world coordinate samples
// the same value from every chunk.
type Generator struct {
	params Params

	resources noise.Field
	terrain   noise.Field

	grass  catalogs.BlockID
	dirt   catalogs.BlockID
	tree   catalogs.BlockID
	leaves catalogs.BlockID
}

func New(p Params, cat *catalogs.BlockCatalog) (*Generator, error) {
	if err := p.Validate(cat); err != nil {
		return nil, err
	}
	r := rng.New(p.Seed)
	return &Generator{
		params:    p.Clone(),
		resources: noise.New(r),
		terrain:   noise.New(r),
		grass:     cat.MustID(catalogs.NameGrass),
		dirt:      cat.MustID(catalogs.NameDirt),
		tree:      cat.MustID(catalogs.NameTree),
		leaves:    cat.MustID(catalogs.NameLeaves),
	}, nil
}

func (g *Generator) Params() Params { return g.params.Clone() }

// Generate runs every phase in order on grd for chunk (cx, cz). The context
// is checked between phases; a cancelled build leaves grd in an unspecified
// state and must be discarded.
func (g *Generator) Generate(ctx context.Context, grd *grid.Grid, cx, cz int, overlay Overlay) error {
	phases := []func(){
		func() { g.Initialize(grd) },
		func() { g.ScatterResources(grd, cx, cz) },
		func() { g.ShapeTerrain(grd, cx, cz) },
		func() { g.PlantTrees(grd, cx, cz) },
		func() { ApplyChanges(grd, cx, cz, overlay) },
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		phase()
	}
	return nil
}

func (g *Generator) Initialize(grd *grid.Grid) {
	grd.Reset()
}

// ScatterResources places each resource where 3D noise beats its scarcity.
// Later resources overwrite earlier ones.
func (g *Generator) ScatterResources(grd *grid.Grid, cx, cz int) {
	size := grd.Size()
	ox, oz := cx*size.Width, cz*size.Width
	for _, res := range g.params.Resources {
		for x := 0; x < size.Width; x++ {
			for y := 0; y < size.Height; y++ {
				for z := 0; z < size.Width; z++ {
					v := g.resources.Sample3D(
						float64(ox+x)/res.Scale.X,
						float64(y)/res.Scale.Y,
						float64(oz+z)/res.Scale.Z,
					)
					if v > res.Scarcity {
						grd.SetBlock(x, y, z, res.Block)
					}
				}
			}
		}
	}
}

// TerrainNoise samples the height field at a world column.
func (g *Generator) TerrainNoise(wx, wz int) float64 {
	return g.terrain.Sample2D(
		float64(wx)/g.params.Terrain.Scale,
		float64(wz)/g.params.Terrain.Scale,
	)
}

// SurfaceHeight maps a world column to its grass level in a chunk of the
// given height, clamped to [0, height-1].
func (g *Generator) SurfaceHeight(wx, wz, height int) int {
	scaled := g.params.Terrain.Offset + g.params.Terrain.Magnitude*g.TerrainNoise(wx, wz)
	h := int(math.Floor(float64(height) * scaled))
	if h < 0 {
		return 0
	}
	if h > height-1 {
		return height - 1
	}
	return h
}

// ShapeTerrain lays dirt under the surface (keeping resources), grass on the
// surface (always) and clears everything above it.
func (g *Generator) ShapeTerrain(grd *grid.Grid, cx, cz int) {
	size := grd.Size()
	ox, oz := cx*size.Width, cz*size.Width
	for x := 0; x < size.Width; x++ {
		for z := 0; z < size.Width; z++ {
			h := g.SurfaceHeight(ox+x, oz+z, size.Height)
			for y := 0; y < size.Height; y++ {
				switch {
				case y < h:
					if grd.Block(x, y, z) == catalogs.Empty {
						grd.SetBlock(x, y, z, g.dirt)
					}
				case y == h:
					grd.SetBlock(x, y, z, g.grass)
				default:
					grd.SetBlock(x, y, z, catalogs.Empty)
				}
			}
		}
	}
}

// TreeInset is the border kept free of trunks so canopies stay in the chunk.
func (g *Generator) TreeInset() int { return g.params.Trees.Canopy.MaxRadius }

// PlantTrees draws one value per column inside the inset border. The stream
// is seeded per chunk so neighbouring chunks get different forests.
func (g *Generator) PlantTrees(grd *grid.Grid, cx, cz int) {
	size := grd.Size()
	inset := g.TreeInset()
	r := rng.New(int64(mathx.Hash2(g.params.Seed, cx, cz)))
	for x := inset; x < size.Width-inset; x++ {
		for z := inset; z < size.Width-inset; z++ {
			if r.Float64() < g.params.Trees.Frequency {
				g.growTree(grd, x, z, r)
			}
		}
	}
}

func (g *Generator) growTree(grd *grid.Grid, x, z int, r *rng.RNG) {
	trunk := g.params.Trees.Trunk
	h := int(math.Round(float64(trunk.MinHeight) + float64(trunk.MaxHeight-trunk.MinHeight)*r.Float64()))

	top := -1
	for y := grd.Size().Height - 1; y >= 0; y-- {
		if grd.Block(x, y, z) == g.grass {
			top = y
			break
		}
	}
	if top < 0 {
		return
	}
	for y := top + 1; y <= top+h; y++ {
		grd.SetBlock(x, y, z, g.tree)
	}
	g.growCanopy(grd, x, top+h, z, r)
}

func (g *Generator) growCanopy(grd *grid.Grid, cx, cy, cz int, r *rng.RNG) {
	canopy := g.params.Trees.Canopy
	radius := int(math.Round(float64(canopy.MinRadius) + float64(canopy.MaxRadius-canopy.MinRadius)*r.Float64()))
	r2 := radius * radius
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				if dx*dx+dy*dy+dz*dz > r2 {
					continue
				}
				if c, ok := grd.Get(cx+dx, cy+dy, cz+dz); ok && !c.Empty() {
					continue
				}
				if r.Float64() < canopy.Density {
					grd.SetBlock(cx+dx, cy+dy, cz+dz, g.leaves)
				}
			}
		}
	}
}

// ApplyChanges overwrites generated cells with stored edits. Edits outside
// the grid (e.g. after a chunk height change) are ignored.
func ApplyChanges(grd *grid.Grid, cx, cz int, overlay Overlay) {
	if overlay == nil {
		return
	}
	overlay.ForChunk(cx, cz, func(k store.Key, id catalogs.BlockID) {
		grd.SetBlock(k.X, k.Y, k.Z, id)
	})
}
