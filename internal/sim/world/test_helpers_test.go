package world

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/gen"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

// flatParams produces a treeless, ore-free world whose surface sits at
// height/2 everywhere.
func flatParams(cat *catalogs.BlockCatalog) gen.Params {
	p := gen.DefaultParams(cat)
	p.Terrain.Magnitude = 0
	p.Terrain.Offset = 0.5
	p.Trees.Frequency = 0
	p.Resources = nil
	return p
}

func testConfig(mode LoadMode) WorldConfig {
	return WorldConfig{
		ID:           "test",
		ChunkSize:    grid.Size{Width: 8, Height: 16},
		DrawDistance: 1,
		LoadMode:     mode,
	}
}

type recordingSink struct {
	meshes   map[ChunkKey]ChunkMesh
	upserts  int
	disposed []ChunkKey
	failDisp bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{meshes: map[ChunkKey]ChunkMesh{}}
}

func (s *recordingSink) Upsert(m ChunkMesh) error {
	s.upserts++
	s.meshes[m.Key] = m
	return nil
}

func (s *recordingSink) Dispose(k ChunkKey) error {
	s.disposed = append(s.disposed, k)
	delete(s.meshes, k)
	if s.failDisp {
		return errors.New("sink offline")
	}
	return nil
}

func newTestWorld(t *testing.T, cfg WorldConfig, p gen.Params) (*World, *recordingSink) {
	t.Helper()
	w, err := New(cfg, catalogs.Default(), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sink := newRecordingSink()
	w.SetRenderSink(sink)
	t.Cleanup(w.Close)
	return w, sink
}

func newFlatWorld(t *testing.T, mode LoadMode) (*World, *recordingSink) {
	t.Helper()
	return newTestWorld(t, testConfig(mode), flatParams(catalogs.Default()))
}

func origin() mgl32.Vec3 { return mgl32.Vec3{0.5, 20, 0.5} }

// assertMeshInvariants checks every loaded chunk: slot back-references are
// consistent and a cell is instanced exactly when it is solid and exposed.
func assertMeshInvariants(t *testing.T, w *World) {
	t.Helper()
	for _, k := range w.LoadedChunkKeys() {
		ch := w.chunks[k]
		if err := ch.meshes.Check(ch.grid); err != nil {
			t.Fatalf("chunk %v: %v", k, err)
		}
		ch.grid.Each(func(x, y, z int, c grid.Cell) {
			want := !c.Empty() && !ch.grid.Obscured(x, y, z)
			if c.Slotted() != want {
				t.Fatalf("chunk %v cell (%d,%d,%d) block=%d slotted=%v want %v", k, x, y, z, c.Block, c.Slotted(), want)
			}
		})
	}
}

func keySet(keys []ChunkKey) map[ChunkKey]bool {
	out := make(map[ChunkKey]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}
