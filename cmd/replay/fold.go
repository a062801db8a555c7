package main

import (
	"fmt"
	"path/filepath"

	persistlog "voxelterrain.dev/internal/persistence/log"
	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

type foldStats struct {
	Files    int
	Entries  int
	Applied  int
	Skipped  int
	FromMiss int // entries whose From disagrees with the folded state

	FirstTick uint64
	LastTick  uint64
}

// foldEdits applies the edit logs in order on top of dst. Entries before
// fromTick or after toTick (when non-zero) are skipped. Entries at fromTick
// are applied: the edit log cannot tell which of them a snapshot taken at
// that tick already holds, and replaying them in order is harmless.
func foldEdits(dst store.Store, files []string, fromTick, toTick uint64, st *foldStats) error {
	for _, path := range files {
		st.Files++
		err := persistlog.ReadEdits(path, func(e world.EditLogEntry) error {
			st.Entries++
			if e.Tick < fromTick || (toTick != 0 && e.Tick > toTick) {
				st.Skipped++
				return nil
			}
			if e.Action != world.ActionAddBlock && e.Action != world.ActionRemoveBlock {
				return fmt.Errorf("%s: tick %d: unknown action %q", filepath.Base(path), e.Tick, e.Action)
			}
			k := store.Key{CX: e.Chunk[0], CZ: e.Chunk[1], X: e.Local[0], Y: e.Local[1], Z: e.Local[2]}
			if prev, ok := dst.Get(k); ok && uint16(prev) != e.From {
				st.FromMiss++
			}
			if err := dst.Set(k, catalogs.BlockID(e.To)); err != nil {
				return err
			}
			if st.Applied == 0 {
				st.FirstTick = e.Tick
			}
			st.Applied++
			st.LastTick = e.Tick
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
