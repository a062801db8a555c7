package world

import "sort"

func sortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
}

// ResidentChunkKeys lists every chunk in the world, whatever its state.
func (w *World) ResidentChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(w.chunks))
	for k := range w.chunks {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// LoadedChunkKeys lists the chunks that are readable and rendered.
func (w *World) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(w.chunks))
	for k, ch := range w.chunks {
		if ch.Loaded() {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)
	return keys
}

// ChunkMeshes exports the geometry of every loaded chunk in key order.
func (w *World) ChunkMeshes() []ChunkMesh {
	keys := w.LoadedChunkKeys()
	out := make([]ChunkMesh, 0, len(keys))
	for _, k := range keys {
		out = append(out, w.chunks[k].export())
	}
	return out
}

func (w *World) countStates() (loaded, loading, failed int) {
	for _, ch := range w.chunks {
		switch ch.state {
		case ChunkLoaded:
			loaded++
		case ChunkLoading:
			loading++
		case ChunkFailed:
			failed++
		}
	}
	return loaded, loading, failed
}
