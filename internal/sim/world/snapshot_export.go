package world

import (
	"voxelterrain.dev/internal/persistence/snapshot"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

// ExportSnapshot captures every recorded edit. Must be called from the world
// loop goroutine or while the loop is stopped.
func (w *World) ExportSnapshot() snapshot.ChangesV1 {
	active, _ := w.ChunkSize()
	changes := store.ExportChanges(w.store)
	return snapshot.ChangesV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    w.tick.Load(),
			Changes: len(changes),
		},
		Seed:          w.params.Seed,
		ChunkWidth:    active.Width,
		ChunkHeight:   active.Height,
		CatalogDigest: w.cat.Digest,
		Changes:       changes,
	}
}
