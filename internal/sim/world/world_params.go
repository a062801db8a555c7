package world

import (
	"fmt"

	"voxelterrain.dev/internal/sim/world/terrain/gen"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

// SetParams replaces the generation parameters. Resident chunks keep the
// snapshot they were built with; only chunks generated afterwards (or
// rebuilt by Regenerate) see the change. The seed is fixed once edits exist.
func (w *World) SetParams(p gen.Params) error {
	if p.Seed != w.params.Seed && w.store.Len() > 0 {
		return fmt.Errorf("set seed %d: %w", p.Seed, ErrEditsRecorded)
	}
	g, err := gen.New(p, w.cat)
	if err != nil {
		return err
	}
	w.params = p.Clone()
	w.gen = g
	return nil
}

func (w *World) SetSeed(seed int64) error {
	p := w.Params()
	p.Seed = seed
	return w.SetParams(p)
}

func (w *World) SetTerrain(t gen.TerrainParams) error {
	p := w.Params()
	p.Terrain = t
	return w.SetParams(p)
}

func (w *World) SetTrees(t gen.TreeParams) error {
	p := w.Params()
	p.Trees = t
	return w.SetParams(p)
}

// SetResource updates the scatter tuning of one resource block.
func (w *World) SetResource(r gen.ResourceParams) error {
	return w.SetParams(w.Params().WithResource(r))
}

// SetChunkSize validates s and schedules it for the next Regenerate. Edits
// are keyed by chunk layout, so the size is fixed once edits exist.
func (w *World) SetChunkSize(s grid.Size) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s == w.cfg.ChunkSize {
		w.pendingSize = nil
		return nil
	}
	if w.store.Len() > 0 {
		return fmt.Errorf("set chunk size %dx%d: %w", s.Width, s.Height, ErrEditsRecorded)
	}
	w.pendingSize = &s
	return nil
}

// ChunkSize returns the size of resident chunks and the size the next
// Regenerate will switch to.
func (w *World) ChunkSize() (active grid.Size, pending grid.Size) {
	active, pending = w.cfg.ChunkSize, w.cfg.ChunkSize
	if w.pendingSize != nil {
		pending = *w.pendingSize
	}
	return active, pending
}

// SetDrawDistance resizes the streaming window immediately.
func (w *World) SetDrawDistance(d int) {
	if d < 0 {
		d = 0
	}
	w.cfg.DrawDistance = d
	w.refresh()
}

// SetLoadMode changes how later chunks are built. Builds already scheduled
// finish in their original mode.
func (w *World) SetLoadMode(m LoadMode) error {
	switch m {
	case LoadSync, LoadDeferred, LoadBackground:
	default:
		return fmt.Errorf("unknown load mode %d", int(m))
	}
	w.cfg.LoadMode = m
	return nil
}
