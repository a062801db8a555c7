package world

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

type memEditLog struct{ entries []EditLogEntry }

func (l *memEditLog) WriteEdit(e EditLogEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func TestFlatWorldSurface(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	grass := w.cat.MustID(catalogs.NameGrass)
	for _, p := range [][2]int{{0, 0}, {-8, 5}, {15, -8}} {
		c, ok := w.GetBlock(p[0], 8, p[1])
		if !ok || c.Block != grass {
			t.Fatalf("(%d,8,%d)=%+v ok=%v want grass", p[0], p[1], c, ok)
		}
		if c, ok := w.GetBlock(p[0], 9, p[1]); !ok || !c.Empty() {
			t.Fatalf("(%d,9,%d) should be air", p[0], p[1])
		}
	}
	if _, ok := w.GetBlock(0, 99, 0); ok {
		t.Fatalf("y above the chunk must miss")
	}
	if _, ok := w.GetBlock(1000, 8, 0); ok {
		t.Fatalf("unloaded chunk must miss")
	}
	assertMeshInvariants(t, w)
}

func TestAddRemoveRoundTrip(t *testing.T) {
	w, sink := newFlatWorld(t, LoadSync)
	logs := &memEditLog{}
	w.SetEditLogger(logs)
	w.UpdateObserver(origin())
	stone := w.cat.MustID(catalogs.NameStone)
	grass := w.cat.MustID(catalogs.NameGrass)

	before := sink.upserts
	changed, err := w.AddBlock(3, 9, 3, stone)
	if err != nil || !changed {
		t.Fatalf("AddBlock changed=%v err=%v", changed, err)
	}
	if sink.upserts == before {
		t.Fatalf("edit did not reach the render sink")
	}
	c, ok := w.GetBlock(3, 9, 3)
	if !ok || c.Block != stone || !c.Slotted() {
		t.Fatalf("added cell=%+v ok=%v", c, ok)
	}
	if under, _ := w.GetBlock(3, 8, 3); under.Slotted() {
		t.Fatalf("grass under the new block is now obscured and must be hidden")
	}
	assertMeshInvariants(t, w)

	// Occupied cell: no change.
	if changed, err := w.AddBlock(3, 9, 3, grass); err != nil || changed {
		t.Fatalf("AddBlock on occupied cell changed=%v err=%v", changed, err)
	}

	changed, err = w.RemoveBlock(3, 9, 3)
	if err != nil || !changed {
		t.Fatalf("RemoveBlock changed=%v err=%v", changed, err)
	}
	if c, _ := w.GetBlock(3, 9, 3); !c.Empty() || c.Slotted() {
		t.Fatalf("removed cell=%+v", c)
	}
	if under, _ := w.GetBlock(3, 8, 3); !under.Slotted() {
		t.Fatalf("grass should be revealed again")
	}
	id, ok := w.Store().Get(store.Key{CX: 0, CZ: 0, X: 3, Y: 9, Z: 3})
	if !ok || id != catalogs.Empty {
		t.Fatalf("store=%d ok=%v want explicit empty", id, ok)
	}
	assertMeshInvariants(t, w)

	if changed, err := w.RemoveBlock(3, 9, 3); err != nil || changed {
		t.Fatalf("RemoveBlock on air changed=%v err=%v", changed, err)
	}
	if len(logs.entries) != 2 || logs.entries[0].Action != ActionAddBlock || logs.entries[1].Action != ActionRemoveBlock {
		t.Fatalf("edit log=%+v", logs.entries)
	}
	if logs.entries[1].From != uint16(stone) || logs.entries[1].Local != [3]int{3, 9, 3} {
		t.Fatalf("remove entry=%+v", logs.entries[1])
	}
}

func TestDiggingRevealsBuriedBlocks(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	dirt := w.cat.MustID(catalogs.NameDirt)

	if c, _ := w.GetBlock(4, 6, 4); c.Block != dirt || c.Slotted() {
		t.Fatalf("buried dirt=%+v should be unslotted", c)
	}
	for _, y := range []int{8, 7} {
		if _, err := w.RemoveBlock(4, y, 4); err != nil {
			t.Fatalf("RemoveBlock y=%d: %v", y, err)
		}
	}
	if c, _ := w.GetBlock(4, 6, 4); !c.Slotted() {
		t.Fatalf("dirt at the bottom of the hole must be revealed")
	}
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		if c, _ := w.GetBlock(4+d[0], 7, 4+d[1]); !c.Slotted() {
			t.Fatalf("hole wall (%d,7,%d) must be revealed", 4+d[0], 4+d[1])
		}
	}
	assertMeshInvariants(t, w)

	// Refill: walls become obscured again.
	if _, err := w.AddBlock(4, 7, 4, dirt); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if c, _ := w.GetBlock(4, 6, 4); c.Slotted() {
		t.Fatalf("dirt below the refill must be hidden")
	}
	assertMeshInvariants(t, w)
}

func TestEditsAcrossChunkBorder(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	for _, x := range []int{7, 8, -1, 0} {
		if _, err := w.RemoveBlock(x, 8, 2); err != nil {
			t.Fatalf("RemoveBlock x=%d: %v", x, err)
		}
		if _, err := w.RemoveBlock(x, 7, 2); err != nil {
			t.Fatalf("RemoveBlock x=%d: %v", x, err)
		}
	}
	assertMeshInvariants(t, w)
	if _, err := w.AddBlock(8, 7, 2, w.cat.MustID(catalogs.NameStone)); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	assertMeshInvariants(t, w)
}

func TestEditErrors(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	if _, err := w.AddBlock(0, 9, 0, catalogs.Empty); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("placing empty: %v", err)
	}
	if _, err := w.AddBlock(0, 9, 0, 999); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("placing unknown block: %v", err)
	}
	if _, err := w.AddBlock(100, 9, 0, w.cat.MustID(catalogs.NameDirt)); !errors.Is(err, ErrChunkNotReady) {
		t.Fatalf("edit outside window: %v", err)
	}
	if _, err := w.RemoveBlock(-100, 8, 0); !errors.Is(err, ErrChunkNotReady) {
		t.Fatalf("remove outside window: %v", err)
	}
	if changed, err := w.AddBlock(0, 16, 0, w.cat.MustID(catalogs.NameDirt)); err != nil || changed {
		t.Fatalf("out-of-range y must be a silent no-op, changed=%v err=%v", changed, err)
	}
}

func TestEditsSurviveUnloadAndReload(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	leaves := w.cat.MustID(catalogs.NameLeaves)
	if _, err := w.AddBlock(2, 12, 2, leaves); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if _, err := w.RemoveBlock(5, 8, 5); err != nil {
		t.Fatalf("RemoveBlock: %v", err)
	}

	w.UpdateObserver(mgl32.Vec3{400, 20, 400})
	if _, ok := w.Chunk(ChunkKey{}); ok {
		t.Fatalf("origin chunk should be evicted")
	}
	w.UpdateObserver(origin())

	if c, ok := w.GetBlock(2, 12, 2); !ok || c.Block != leaves || !c.Slotted() {
		t.Fatalf("placed block lost after reload: %+v", c)
	}
	if c, _ := w.GetBlock(5, 8, 5); !c.Empty() {
		t.Fatalf("removed block came back: %+v", c)
	}
	assertMeshInvariants(t, w)
}

func TestSettersOnlyAffectLaterChunks(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	before := w.StateDigest()
	old, _ := w.Chunk(ChunkKey{})

	p := w.Params()
	p.Terrain.Offset = 0.25
	if err := w.SetParams(p); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if err := w.SetSeed(99); err != nil {
		t.Fatalf("SetSeed: %v", err)
	}
	if w.StateDigest() != before {
		t.Fatalf("setters must not touch resident chunks")
	}
	if old.Params().Terrain.Offset != 0.5 {
		t.Fatalf("chunk params snapshot changed")
	}

	// A chunk loaded now uses the new parameters.
	w.UpdateObserver(mgl32.Vec3{16.5, 20, 0.5})
	grass := w.cat.MustID(catalogs.NameGrass)
	if c, _ := w.GetBlock(20, 4, 0); c.Block != grass {
		t.Fatalf("new chunk should have its surface at 4, got %+v", c)
	}
	if c, _ := w.GetBlock(8, 8, 0); c.Block != grass {
		t.Fatalf("old chunk kept its surface at 8, got %+v", c)
	}
}

func TestRegenerateAppliesParamsAndKeepsEdits(t *testing.T) {
	w, sink := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	stone := w.cat.MustID(catalogs.NameStone)
	if _, err := w.AddBlock(1, 14, 1, stone); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if err := w.SetTerrain(w.Params().Terrain); err != nil {
		t.Fatalf("SetTerrain: %v", err)
	}
	p := w.Params()
	p.Terrain.Offset = 0.25
	_ = w.SetParams(p)

	w.Regenerate()
	if len(sink.disposed) != 9 {
		t.Fatalf("regenerate should dispose 9 chunks, got %d", len(sink.disposed))
	}
	grass := w.cat.MustID(catalogs.NameGrass)
	if c, ok := w.GetBlock(0, 4, 0); !ok || c.Block != grass {
		t.Fatalf("regenerated surface=%+v ok=%v", c, ok)
	}
	if c, ok := w.GetBlock(1, 14, 1); !ok || c.Block != stone {
		t.Fatalf("edit lost on regenerate: %+v", c)
	}
	assertMeshInvariants(t, w)
}

func TestStrictMeshingFailsUnknownBlocks(t *testing.T) {
	cat := catalogs.Default()
	for _, strict := range []bool{true, false} {
		cfg := testConfig(LoadSync)
		cfg.StrictMeshing = strict
		w, _ := newTestWorld(t, cfg, flatParams(cat))
		_ = w.Store().Set(store.Key{CX: 0, CZ: 0, X: 1, Y: 12, Z: 1}, 200)
		w.UpdateObserver(origin())
		w.Tick()

		ch, _ := w.Chunk(ChunkKey{})
		m := w.Metrics()
		if strict {
			if ch.State() != ChunkFailed || m.FailedChunks != 1 {
				t.Fatalf("strict: state=%v metrics=%+v", ch.State(), m)
			}
			if _, ok := w.GetBlock(1, 12, 1); ok {
				t.Fatalf("strict: failed chunk must not be readable")
			}
			continue
		}
		if !ch.Loaded() || m.Skipped != 1 {
			t.Fatalf("lenient: state=%v metrics=%+v", ch.State(), m)
		}
		if c, _ := w.GetBlock(1, 12, 1); c.Block != 200 || c.Slotted() {
			t.Fatalf("lenient: unknown cell=%+v", c)
		}
	}
}

func TestRegenerateAppliesPendingChunkSize(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	if err := w.SetChunkSize(grid.Size{Width: 4, Height: 16}); err != nil {
		t.Fatalf("SetChunkSize: %v", err)
	}
	if active, pending := w.ChunkSize(); active.Width != 8 || pending.Width != 4 {
		t.Fatalf("size active=%v pending=%v", active, pending)
	}
	w.Regenerate()
	if active, _ := w.ChunkSize(); active.Width != 4 {
		t.Fatalf("pending size not applied: %v", active)
	}
	if n := len(w.LoadedChunkKeys()); n != 9 {
		t.Fatalf("loaded=%d want 9", n)
	}
	assertMeshInvariants(t, w)
}

func TestEditsPinSeedAndChunkSize(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	seed := w.Params().Seed

	// A size scheduled before the first edit is dropped at Regenerate.
	if err := w.SetChunkSize(grid.Size{Width: 4, Height: 16}); err != nil {
		t.Fatalf("SetChunkSize: %v", err)
	}
	dirt := w.cat.MustID(catalogs.NameDirt)
	if _, err := w.AddBlock(5, 9, 5, dirt); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	if err := w.SetSeed(seed + 7); !errors.Is(err, ErrEditsRecorded) {
		t.Fatalf("SetSeed err=%v want ErrEditsRecorded", err)
	}
	if err := w.SetChunkSize(grid.Size{Width: 16, Height: 16}); !errors.Is(err, ErrEditsRecorded) {
		t.Fatalf("SetChunkSize err=%v want ErrEditsRecorded", err)
	}
	// Other parameters stay adjustable.
	p := w.Params()
	p.Terrain.Offset = 0.25
	if err := w.SetParams(p); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	w.Regenerate()
	if active, pending := w.ChunkSize(); active.Width != 8 || pending.Width != 8 {
		t.Fatalf("size active=%v pending=%v", active, pending)
	}
	if c, ok := w.GetBlock(5, 9, 5); !ok || c.Block != dirt {
		t.Fatalf("edit lost: %+v ok=%v", c, ok)
	}

	// A restart with the configured seed accepts what this world saved.
	w2, _ := newFlatWorld(t, LoadSync)
	if err := w2.ImportSnapshot(w.ExportSnapshot()); err != nil {
		t.Fatalf("restart import: %v", err)
	}
}
