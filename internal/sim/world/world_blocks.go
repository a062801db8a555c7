package world

import (
	"fmt"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

// GetBlock returns the cell at a world position. ok is false when the
// chunk is missing or not loaded, or y is outside the chunk height.
func (w *World) GetBlock(x, y, z int) (grid.Cell, bool) {
	ch, lx, lz := w.chunkAt(x, z)
	if ch == nil || !ch.Loaded() {
		return grid.Cell{Block: catalogs.Empty, Instance: grid.NoInstance}, false
	}
	return ch.grid.Get(lx, y, lz)
}

// AddBlock places id into an empty cell. It reports false without error when
// the cell is occupied or y is out of range.
func (w *World) AddBlock(x, y, z int, id catalogs.BlockID) (bool, error) {
	return w.addBlock(x, y, z, id, "")
}

// RemoveBlock clears a non-empty cell. It reports false without error when
// the cell is already empty or y is out of range.
func (w *World) RemoveBlock(x, y, z int) (bool, error) {
	return w.removeBlock(x, y, z, "")
}

func (w *World) addBlock(x, y, z int, id catalogs.BlockID, actor string) (bool, error) {
	if id == catalogs.Empty {
		return false, fmt.Errorf("%w: cannot place the empty block", ErrInvalidBlock)
	}
	if _, ok := w.cat.Get(id); !ok {
		return false, fmt.Errorf("%w: %d", ErrInvalidBlock, id)
	}
	ch, lx, lz := w.chunkAt(x, z)
	if ch == nil || !ch.Loaded() {
		return false, ErrChunkNotReady
	}
	cur, ok := ch.grid.Get(lx, y, lz)
	if !ok || !cur.Empty() {
		return false, nil
	}
	key := store.Key{CX: ch.Key.CX, CZ: ch.Key.CZ, X: lx, Y: y, Z: lz}
	if err := w.store.Set(key, id); err != nil {
		return false, fmt.Errorf("change store: %w", err)
	}

	touched := map[ChunkKey]*Chunk{ch.Key: ch}
	ch.grid.SetBlock(lx, y, lz, id)
	if !ch.grid.Obscured(lx, y, lz) {
		if err := ch.meshes.AddInstance(ch.grid, lx, y, lz); err != nil {
			w.logger.Printf("add (%d,%d,%d): %v", x, y, z, err)
		}
	}
	for _, d := range grid.Faces {
		w.hide(x+d[0], y+d[1], z+d[2], touched)
	}

	w.recordEdit(ActionAddBlock, x, y, z, key, cur.Block, id, actor)
	w.flush(touched)
	return true, nil
}

func (w *World) removeBlock(x, y, z int, actor string) (bool, error) {
	ch, lx, lz := w.chunkAt(x, z)
	if ch == nil || !ch.Loaded() {
		return false, ErrChunkNotReady
	}
	cur, ok := ch.grid.Get(lx, y, lz)
	if !ok || cur.Empty() {
		return false, nil
	}
	key := store.Key{CX: ch.Key.CX, CZ: ch.Key.CZ, X: lx, Y: y, Z: lz}
	if err := w.store.Set(key, catalogs.Empty); err != nil {
		return false, fmt.Errorf("change store: %w", err)
	}

	touched := map[ChunkKey]*Chunk{ch.Key: ch}
	ch.meshes.DeleteInstance(ch.grid, lx, y, lz)
	ch.grid.SetBlock(lx, y, lz, catalogs.Empty)
	for _, d := range grid.Faces {
		w.reveal(x+d[0], y+d[1], z+d[2], touched)
	}

	w.recordEdit(ActionRemoveBlock, x, y, z, key, cur.Block, catalogs.Empty, actor)
	w.flush(touched)
	return true, nil
}

// hide drops the instance of a world cell that became fully obscured.
func (w *World) hide(x, y, z int, touched map[ChunkKey]*Chunk) {
	ch, lx, lz := w.chunkAt(x, z)
	if ch == nil || !ch.Loaded() {
		return
	}
	c, ok := ch.grid.Get(lx, y, lz)
	if !ok || !c.Slotted() || !ch.grid.Obscured(lx, y, lz) {
		return
	}
	ch.meshes.DeleteInstance(ch.grid, lx, y, lz)
	touched[ch.Key] = ch
}

// reveal instances a world cell that is solid, unslotted and now exposed.
func (w *World) reveal(x, y, z int, touched map[ChunkKey]*Chunk) {
	ch, lx, lz := w.chunkAt(x, z)
	if ch == nil || !ch.Loaded() {
		return
	}
	c, ok := ch.grid.Get(lx, y, lz)
	if !ok || c.Empty() || c.Slotted() || ch.grid.Obscured(lx, y, lz) {
		return
	}
	if err := ch.meshes.AddInstance(ch.grid, lx, y, lz); err != nil {
		w.logger.Printf("reveal (%d,%d,%d): %v", x, y, z, err)
		return
	}
	touched[ch.Key] = ch
}

func (w *World) flush(touched map[ChunkKey]*Chunk) {
	keys := make([]ChunkKey, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}
	sortKeys(keys)
	for _, k := range keys {
		w.upsert(touched[k])
	}
}

func (w *World) recordEdit(action string, x, y, z int, k store.Key, from, to catalogs.BlockID, actor string) {
	w.counters.edits++
	if w.edits == nil {
		return
	}
	entry := EditLogEntry{
		Tick:   w.tick.Load(),
		Action: action,
		Pos:    [3]int{x, y, z},
		Chunk:  [2]int{k.CX, k.CZ},
		Local:  [3]int{k.X, k.Y, k.Z},
		From:   uint16(from),
		To:     uint16(to),
		Actor:  actor,
	}
	if err := w.edits.WriteEdit(entry); err != nil {
		w.logger.Printf("edit log: %v", err)
	}
}
