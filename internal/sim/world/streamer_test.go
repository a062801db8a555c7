package world

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

func TestVisibleSetNearestFirst(t *testing.T) {
	got := VisibleSet(ChunkKey{CX: 2, CZ: -1}, 1)
	if len(got) != 9 {
		t.Fatalf("len=%d want 9", len(got))
	}
	if got[0] != (ChunkKey{CX: 2, CZ: -1}) {
		t.Fatalf("center must come first, got %v", got[0])
	}
	seen := keySet(got)
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			if !seen[ChunkKey{CX: 2 + dx, CZ: -1 + dz}] {
				t.Fatalf("missing (%d,%d)", 2+dx, -1+dz)
			}
		}
	}
	if n := len(VisibleSet(ChunkKey{}, 0)); n != 1 {
		t.Fatalf("distance 0 should yield one chunk, got %d", n)
	}
}

func TestChunkOfFloorsNegativeCoordinates(t *testing.T) {
	cases := []struct {
		x, z   int
		key    ChunkKey
		lx, lz int
	}{
		{0, 0, ChunkKey{CX: 0, CZ: 0}, 0, 0},
		{7, 8, ChunkKey{CX: 0, CZ: 1}, 7, 0},
		{-1, -8, ChunkKey{CX: -1, CZ: -1}, 7, 0},
		{-9, 15, ChunkKey{CX: -2, CZ: 1}, 7, 7},
	}
	for _, c := range cases {
		if got := ChunkOf(c.x, c.z, 8); got != c.key {
			t.Fatalf("ChunkOf(%d,%d)=%v want %v", c.x, c.z, got, c.key)
		}
		lx, lz := LocalOf(c.x, c.z, 8)
		if lx != c.lx || lz != c.lz {
			t.Fatalf("LocalOf(%d,%d)=(%d,%d) want (%d,%d)", c.x, c.z, lx, lz, c.lx, c.lz)
		}
	}
}

func TestStreamingWindowFollowsObserver(t *testing.T) {
	w, sink := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())

	loaded := w.LoadedChunkKeys()
	if len(loaded) != 9 {
		t.Fatalf("loaded=%d want 9", len(loaded))
	}
	for _, k := range loaded {
		if k.CX < -1 || k.CX > 1 || k.CZ < -1 || k.CZ > 1 {
			t.Fatalf("unexpected chunk %v", k)
		}
	}
	if len(sink.meshes) != 9 {
		t.Fatalf("sink holds %d chunks want 9", len(sink.meshes))
	}

	// Step into chunk (1,0).
	w.UpdateObserver(mgl32.Vec3{8.5, 20, 0.5})
	if w.Center() != (ChunkKey{CX: 1, CZ: 0}) {
		t.Fatalf("center=%v", w.Center())
	}
	got := keySet(w.LoadedChunkKeys())
	if len(got) != 9 {
		t.Fatalf("loaded=%d want 9", len(got))
	}
	for cx := 0; cx <= 2; cx++ {
		for cz := -1; cz <= 1; cz++ {
			if !got[ChunkKey{CX: cx, CZ: cz}] {
				t.Fatalf("missing chunk (%d,%d)", cx, cz)
			}
		}
	}
	if len(sink.disposed) != 3 {
		t.Fatalf("disposed %v want the three cx=-1 chunks", sink.disposed)
	}
	for _, k := range sink.disposed {
		if k.CX != -1 {
			t.Fatalf("disposed wrong chunk %v", k)
		}
	}
}

func TestFarObserverEvictsOldWindow(t *testing.T) {
	w, sink := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())

	w.UpdateObserver(mgl32.Vec3{1e30, 20, 1e30})
	c := w.Center()
	if c.CX != math.MaxInt32 || c.CZ != math.MaxInt32 {
		t.Fatalf("center=%v want saturated chunk index", c)
	}
	resident := w.ResidentChunkKeys()
	if len(resident) != 9 {
		t.Fatalf("resident=%d want 9", len(resident))
	}
	for _, k := range resident {
		if chunkDistance(k, c) > 1 {
			t.Fatalf("chunk %v outside the window stayed resident", k)
		}
	}
	if len(sink.disposed) != 9 {
		t.Fatalf("disposed=%d want the 9 chunks around the origin", len(sink.disposed))
	}

	// Back home from the far side.
	w.UpdateObserver(mgl32.Vec3{-1e30, 20, 0.5})
	c = w.Center()
	for _, k := range w.ResidentChunkKeys() {
		if k.CX > math.MinInt32+1 || chunkDistance(k, c) > 1 {
			t.Fatalf("chunk %v should have been evicted (center %v)", k, c)
		}
	}
}

func TestNonFiniteObserverIgnored(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(mgl32.Vec3{8.5, 20, 0.5})
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	w.UpdateObserver(mgl32.Vec3{nan, 20, 0.5})
	w.UpdateObserver(mgl32.Vec3{0.5, 20, inf})
	if w.Center() != (ChunkKey{CX: 1, CZ: 0}) {
		t.Fatalf("center=%v want (1,0)", w.Center())
	}
	if pos, _ := w.Observer(); pos.X() != 8.5 {
		t.Fatalf("observer=%v", pos)
	}
	if n := len(w.LoadedChunkKeys()); n != 9 {
		t.Fatalf("loaded=%d want 9", n)
	}
}

func TestEvictHysteresisKeepsNearbyChunks(t *testing.T) {
	cfg := testConfig(LoadSync)
	cfg.EvictHysteresis = 1
	w, sink := newTestWorld(t, cfg, flatParams(catalogs.Default()))
	w.UpdateObserver(origin())
	w.UpdateObserver(mgl32.Vec3{8.5, 20, 0.5})
	if len(sink.disposed) != 0 {
		t.Fatalf("hysteresis should keep cx=-1 resident, disposed %v", sink.disposed)
	}
	if n := len(w.LoadedChunkKeys()); n != 12 {
		t.Fatalf("loaded=%d want 12", n)
	}
	w.UpdateObserver(mgl32.Vec3{16.5, 20, 0.5})
	for _, k := range w.ResidentChunkKeys() {
		if k.CX < 0 {
			t.Fatalf("chunk %v should be evicted two rings out", k)
		}
	}
}

func TestDisposeFailureDoesNotStopEviction(t *testing.T) {
	w, sink := newFlatWorld(t, LoadSync)
	sink.failDisp = true
	w.UpdateObserver(origin())
	w.UpdateObserver(mgl32.Vec3{100, 20, 100})
	if len(sink.disposed) != 9 {
		t.Fatalf("disposed=%d want 9", len(sink.disposed))
	}
	for _, k := range w.ResidentChunkKeys() {
		if chunkDistance(k, w.Center()) > 1 {
			t.Fatalf("stale chunk %v still resident", k)
		}
	}
}

func TestDeferredLoadingDrainsWithinBudget(t *testing.T) {
	cfg := testConfig(LoadDeferred)
	cfg.LoadBudget = time.Nanosecond
	w, _ := newTestWorld(t, cfg, flatParams(catalogs.Default()))
	w.UpdateObserver(origin())

	if n := len(w.LoadedChunkKeys()); n != 0 {
		t.Fatalf("deferred mode loaded %d chunks before any tick", n)
	}
	if _, ok := w.GetBlock(0, 8, 0); ok {
		t.Fatalf("GetBlock must miss while the chunk is loading")
	}
	if _, err := w.AddBlock(0, 9, 0, catalogs.Default().MustID(catalogs.NameDirt)); err != ErrChunkNotReady {
		t.Fatalf("expected ErrChunkNotReady, got %v", err)
	}

	w.Tick()
	if n := len(w.LoadedChunkKeys()); n != 1 {
		t.Fatalf("a tiny budget should still build one chunk per tick, got %d", n)
	}
	if !w.chunks[ChunkKey{}].Loaded() {
		t.Fatalf("the observer's chunk should build first")
	}
	for i := 0; i < 8; i++ {
		w.Tick()
	}
	if n := len(w.LoadedChunkKeys()); n != 9 {
		t.Fatalf("loaded=%d want 9", n)
	}
	m := w.Metrics()
	if m.LoadedChunks != 9 || m.QueueDepth != 0 || m.Generated != 9 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestDeferredEvictionCancelsQueuedBuilds(t *testing.T) {
	w, sink := newFlatWorld(t, LoadDeferred)
	w.UpdateObserver(origin())
	w.UpdateObserver(mgl32.Vec3{1000, 20, 1000})
	for i := 0; i < 20; i++ {
		w.Tick()
	}
	for k := range sink.meshes {
		if chunkDistance(k, w.Center()) > 1 {
			t.Fatalf("cancelled chunk %v reached the sink", k)
		}
	}
	m := w.Metrics()
	if m.Cancelled != 9 {
		t.Fatalf("cancelled=%d want 9", m.Cancelled)
	}
	if m.LoadedChunks != 9 || m.Generated != 9 {
		t.Fatalf("metrics=%+v", m)
	}
}

func waitLoaded(t *testing.T, w *World, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w.Tick()
		if len(w.LoadedChunkKeys()) == n && w.inflight.Load() == 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out: loaded=%d want %d", len(w.LoadedChunkKeys()), n)
}

func TestBackgroundLoadingInstallsOnTick(t *testing.T) {
	w, sink := newFlatWorld(t, LoadBackground)
	w.UpdateObserver(origin())
	if n := len(w.LoadedChunkKeys()); n != 0 {
		t.Fatalf("background builds must not be visible before a tick, got %d", n)
	}
	waitLoaded(t, w, 9)
	if len(sink.meshes) != 9 {
		t.Fatalf("sink holds %d chunks", len(sink.meshes))
	}
	assertMeshInvariants(t, w)

	// Leave before the next builds finish; nothing from the old window may
	// come back.
	w.UpdateObserver(mgl32.Vec3{500, 20, 500})
	w.UpdateObserver(mgl32.Vec3{-500, 20, -500})
	waitLoaded(t, w, 9)
	for _, k := range w.ResidentChunkKeys() {
		if chunkDistance(k, w.Center()) > 1 {
			t.Fatalf("stale chunk %v resurrected", k)
		}
	}
	for k := range sink.meshes {
		if chunkDistance(k, w.Center()) > 1 {
			t.Fatalf("stale chunk %v in sink", k)
		}
	}
}

func TestBackgroundMatchesSync(t *testing.T) {
	p := flatParams(catalogs.Default())
	p.Terrain.Magnitude = 0.4
	p.Trees.Frequency = 0.05
	p.Seed = 11

	cfg := testConfig(LoadSync)
	cfg.ChunkSize = grid.Size{Width: 16, Height: 32}
	a, _ := newTestWorld(t, cfg, p)
	a.UpdateObserver(origin())

	cfg.LoadMode = LoadBackground
	b, _ := newTestWorld(t, cfg, p)
	b.UpdateObserver(origin())
	waitLoaded(t, b, 9)

	if a.StateDigest() != b.StateDigest() {
		t.Fatalf("load mode changed generated content")
	}
}

func TestObserverAppliedOnTick(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.SetObserverAsync(mgl32.Vec3{-3, 20, -3})
	if len(w.ResidentChunkKeys()) != 0 {
		t.Fatalf("async observer must wait for Tick")
	}
	w.Tick()
	if w.Center() != (ChunkKey{CX: -1, CZ: -1}) {
		t.Fatalf("center=%v", w.Center())
	}
	if n := len(w.LoadedChunkKeys()); n != 9 {
		t.Fatalf("loaded=%d want 9", n)
	}
}

func TestSetDrawDistanceResizesWindow(t *testing.T) {
	w, _ := newFlatWorld(t, LoadSync)
	w.UpdateObserver(origin())
	w.SetDrawDistance(2)
	if n := len(w.LoadedChunkKeys()); n != 25 {
		t.Fatalf("loaded=%d want 25", n)
	}
	w.SetDrawDistance(0)
	if keys := w.LoadedChunkKeys(); len(keys) != 1 || keys[0] != (ChunkKey{}) {
		t.Fatalf("loaded=%v want only the center", keys)
	}
}
