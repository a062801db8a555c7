package gen

import (
	"context"
	"errors"
	"testing"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

func flatParams(cat *catalogs.BlockCatalog) Params {
	p := DefaultParams(cat)
	p.Seed = 0
	p.Terrain.Magnitude = 0
	p.Terrain.Offset = 0.5
	p.Trees.Frequency = 0
	p.Resources = nil
	return p
}

func mustGrid(t *testing.T, w, h int) *grid.Grid {
	t.Helper()
	g, err := grid.New(grid.Size{Width: w, Height: h})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	return g
}

func mustGenerator(t *testing.T, p Params, cat *catalogs.BlockCatalog) *Generator {
	t.Helper()
	g, err := New(p, cat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestGenerateFlatTerrain(t *testing.T) {
	cat := catalogs.Default()
	gen := mustGenerator(t, flatParams(cat), cat)
	grd := mustGrid(t, 8, 32)
	if err := gen.Generate(context.Background(), grd, 0, 0, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	grass, dirt := cat.MustID(catalogs.NameGrass), cat.MustID(catalogs.NameDirt)
	grd.Each(func(x, y, z int, c grid.Cell) {
		var want catalogs.BlockID
		switch {
		case y < 16:
			want = dirt
		case y == 16:
			want = grass
		default:
			want = catalogs.Empty
		}
		if c.Block != want {
			t.Fatalf("(%d,%d,%d)=%d want %d", x, y, z, c.Block, want)
		}
		if c.Slotted() {
			t.Fatalf("generation must not assign instances")
		}
	})
}

func TestGenerateIsDeterministic(t *testing.T) {
	cat := catalogs.Default()
	p := DefaultParams(cat)
	p.Seed = 42

	a := mustGrid(t, 16, 32)
	b := mustGrid(t, 16, 32)
	if err := mustGenerator(t, p, cat).Generate(context.Background(), a, 3, -2, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := mustGenerator(t, p, cat).Generate(context.Background(), b, 3, -2, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("same params and chunk produced different grids")
	}

	p.Seed = 43
	c := mustGrid(t, 16, 32)
	if err := mustGenerator(t, p, cat).Generate(context.Background(), c, 3, -2, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.Digest() == c.Digest() {
		t.Fatalf("different seeds produced identical grids")
	}
}

func TestSurfaceIsContinuousAcrossChunks(t *testing.T) {
	cat := catalogs.Default()
	p := DefaultParams(cat)
	p.Seed = 7
	p.Trees.Frequency = 0
	p.Resources = nil
	gen := mustGenerator(t, p, cat)
	grass := cat.MustID(catalogs.NameGrass)

	const w, h = 16, 32
	for _, cx := range []int{-1, 0, 1} {
		grd := mustGrid(t, w, h)
		if err := gen.Generate(context.Background(), grd, cx, 0, nil); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		for x := 0; x < w; x++ {
			for z := 0; z < w; z++ {
				want := gen.SurfaceHeight(cx*w+x, z, h)
				if got := grd.Block(x, want, z); got != grass {
					t.Fatalf("chunk %d col (%d,%d): expected grass at %d, got %d", cx, x, z, want, got)
				}
				if got := grd.Block(x, want+1, z); got != catalogs.Empty {
					t.Fatalf("chunk %d col (%d,%d): expected air above surface, got %d", cx, x, z, got)
				}
			}
		}
	}
}

func TestResourcesSurviveDirtButNotGrass(t *testing.T) {
	cat := catalogs.Default()
	p := flatParams(cat)
	stone := cat.MustID(catalogs.NameStone)
	p.Resources = []ResourceParams{{Block: stone, Scale: catalogs.Scale{X: 5, Y: 5, Z: 5}, Scarcity: 0}}
	gen := mustGenerator(t, p, cat)
	grd := mustGrid(t, 16, 32)
	if err := gen.Generate(context.Background(), grd, 0, 0, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	grass, dirt := cat.MustID(catalogs.NameGrass), cat.MustID(catalogs.NameDirt)
	stones := 0
	grd.Each(func(x, y, z int, c grid.Cell) {
		switch {
		case y < 16:
			if c.Block != dirt && c.Block != stone {
				t.Fatalf("(%d,%d,%d)=%d below surface", x, y, z, c.Block)
			}
			if c.Block == stone {
				stones++
			}
		case y == 16:
			if c.Block != grass {
				t.Fatalf("surface (%d,%d,%d)=%d want grass", x, y, z, c.Block)
			}
		default:
			if !c.Empty() {
				t.Fatalf("air (%d,%d,%d)=%d", x, y, z, c.Block)
			}
		}
	})
	if stones == 0 {
		t.Fatalf("expected some stone below the surface")
	}
}

func TestLaterResourceWins(t *testing.T) {
	cat := catalogs.Default()
	p := flatParams(cat)
	stone, coal := cat.MustID(catalogs.NameStone), cat.MustID(catalogs.NameCoalOre)
	scale := catalogs.Scale{X: 5, Y: 5, Z: 5}
	p.Resources = []ResourceParams{
		{Block: stone, Scale: scale, Scarcity: 0},
		{Block: coal, Scale: scale, Scarcity: 0},
	}
	gen := mustGenerator(t, p, cat)
	grd := mustGrid(t, 16, 32)
	if err := gen.Generate(context.Background(), grd, 0, 0, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	coals := 0
	grd.Each(func(x, y, z int, c grid.Cell) {
		if c.Block == stone {
			t.Fatalf("stone at (%d,%d,%d) should have been overwritten by coal", x, y, z)
		}
		if c.Block == coal {
			coals++
		}
	})
	if coals == 0 {
		t.Fatalf("expected coal cells")
	}
}

func TestTreesStayInsideInsetAndKeepTerrain(t *testing.T) {
	cat := catalogs.Default()
	base := flatParams(cat)
	bare := mustGrid(t, 16, 32)
	if err := mustGenerator(t, base, cat).Generate(context.Background(), bare, 0, 0, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	p := base
	p.Trees.Frequency = 1
	gen := mustGenerator(t, p, cat)
	grd := mustGrid(t, 16, 32)
	if err := gen.Generate(context.Background(), grd, 0, 0, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tree, leaves := cat.MustID(catalogs.NameTree), cat.MustID(catalogs.NameLeaves)
	inset := gen.TreeInset()
	trunks := 0
	grd.Each(func(x, y, z int, c grid.Cell) {
		if prev := bare.Block(x, y, z); prev != catalogs.Empty && prev != c.Block {
			t.Fatalf("trees replaced terrain at (%d,%d,%d): %d -> %d", x, y, z, prev, c.Block)
		}
		if c.Block == tree {
			trunks++
			if x < inset || x >= 16-inset || z < inset || z >= 16-inset {
				t.Fatalf("trunk at (%d,%d,%d) outside inset %d", x, y, z, inset)
			}
		}
	})
	if trunks == 0 {
		t.Fatalf("frequency 1 should plant trunks")
	}
	// Trunk starts right above the grass.
	if got := grd.Block(inset, 17, inset); got != tree && got != leaves {
		t.Fatalf("expected tree above grass at inset corner, got %d", got)
	}
}

func TestTreesDifferPerChunk(t *testing.T) {
	cat := catalogs.Default()
	p := flatParams(cat)
	p.Trees.Frequency = 0.2
	gen := mustGenerator(t, p, cat)
	a, b := mustGrid(t, 16, 32), mustGrid(t, 16, 32)
	if err := gen.Generate(context.Background(), a, 0, 0, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := gen.Generate(context.Background(), b, 1, 0, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.Digest() == b.Digest() {
		t.Fatalf("flat chunks with trees should still differ by chunk")
	}
}

func TestChangesOverrideGeneration(t *testing.T) {
	cat := catalogs.Default()
	p := flatParams(cat)
	p.Trees.Frequency = 1
	gen := mustGenerator(t, p, cat)
	stone := cat.MustID(catalogs.NameStone)

	s := store.NewMemory()
	_ = s.Set(store.Key{CX: 2, CZ: 1, X: 1, Y: 30, Z: 1}, stone)
	_ = s.Set(store.Key{CX: 2, CZ: 1, X: 6, Y: 16, Z: 6}, catalogs.Empty)
	_ = s.Set(store.Key{CX: 2, CZ: 1, X: 1, Y: 99, Z: 1}, stone)
	_ = s.Set(store.Key{CX: 0, CZ: 0, X: 1, Y: 1, Z: 1}, catalogs.Empty)

	grd := mustGrid(t, 16, 32)
	if err := gen.Generate(context.Background(), grd, 2, 1, s); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := grd.Block(1, 30, 1); got != stone {
		t.Fatalf("placed block lost: %d", got)
	}
	if got := grd.Block(6, 16, 6); got != catalogs.Empty {
		t.Fatalf("removed block regenerated: %d", got)
	}
	if got := grd.Block(1, 1, 1); got != cat.MustID(catalogs.NameDirt) {
		t.Fatalf("edit from another chunk leaked: %d", got)
	}
}

func TestGenerateHonoursCancellation(t *testing.T) {
	cat := catalogs.Default()
	gen := mustGenerator(t, DefaultParams(cat), cat)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gen.Generate(ctx, mustGrid(t, 4, 8), 0, 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGeneratorSnapshotsParams(t *testing.T) {
	cat := catalogs.Default()
	p := DefaultParams(cat)
	gen := mustGenerator(t, p, cat)
	p.Resources[0].Scarcity = 0
	if gen.Params().Resources[0].Scarcity == 0 {
		t.Fatalf("generator shares resource slice with caller")
	}
}

func TestValidateRejectsBadParams(t *testing.T) {
	cat := catalogs.Default()
	cases := map[string]func(*Params){
		"scale":     func(p *Params) { p.Terrain.Scale = 0 },
		"frequency": func(p *Params) { p.Trees.Frequency = 1.5 },
		"trunk":     func(p *Params) { p.Trees.Trunk.MaxHeight = p.Trees.Trunk.MinHeight - 1 },
		"canopy":    func(p *Params) { p.Trees.Canopy.MinRadius = -1 },
		"density":   func(p *Params) { p.Trees.Canopy.Density = -0.1 },
		"unknown":   func(p *Params) { p.Resources[0].Block = 999 },
		"scarcity":  func(p *Params) { p.Resources[0].Scarcity = 2 },
	}
	for name, mutate := range cases {
		p := DefaultParams(cat)
		mutate(&p)
		if _, err := New(p, cat); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("%s: expected ErrInvalidParams, got %v", name, err)
		}
	}
}
