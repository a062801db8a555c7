package world

import (
	"fmt"

	"voxelterrain.dev/internal/persistence/snapshot"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

// ImportSnapshot replays the snapshot's edits into the change store and
// resumes the tick counter. Resident chunks are rebuilt so the edits show.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.ChangesV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if s.Header.WorldID != "" && s.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world id mismatch: cfg=%s snap=%s", w.cfg.ID, s.Header.WorldID)
	}
	// Edits are keyed by chunk layout and made against one terrain, so a
	// snapshot holding edits must match both exactly. An empty one only
	// carries the tick.
	if len(s.Changes) > 0 {
		active, _ := w.ChunkSize()
		if s.ChunkWidth != active.Width || s.ChunkHeight != active.Height {
			return fmt.Errorf("snapshot chunk size mismatch: cfg=%dx%d snap=%dx%d",
				active.Width, active.Height, s.ChunkWidth, s.ChunkHeight)
		}
		if s.Seed != w.params.Seed {
			return fmt.Errorf("snapshot seed mismatch: cfg=%d snap=%d", w.params.Seed, s.Seed)
		}
	}
	if s.CatalogDigest != "" && w.cat.Digest != "" && s.CatalogDigest != w.cat.Digest {
		return fmt.Errorf("snapshot catalog digest mismatch: cfg=%s snap=%s", w.cat.Digest, s.CatalogDigest)
	}
	if err := store.ImportChanges(w.store, s.Changes); err != nil {
		return fmt.Errorf("import changes: %w", err)
	}
	w.ResumeTick(s.Header.Tick)
	if len(w.chunks) > 0 {
		w.Regenerate()
	}
	w.logger.Printf("imported snapshot tick=%d changes=%d", s.Header.Tick, len(s.Changes))
	return nil
}
