package store

import (
	"sort"

	"voxelterrain.dev/internal/sim/catalogs"
)

func (s *Memory) Get(k Key) (catalogs.BlockID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edits := s.chunks[k.Chunk()]
	if edits == nil {
		return catalogs.Empty, false
	}
	id, ok := edits[local{k.X, k.Y, k.Z}]
	return id, ok
}

func (s *Memory) Contains(k Key) bool {
	_, ok := s.Get(k)
	return ok
}

func (s *Memory) Set(k Key, id catalogs.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ck := k.Chunk()
	edits := s.chunks[ck]
	if edits == nil {
		edits = map[local]catalogs.BlockID{}
		s.chunks[ck] = edits
	}
	l := local{k.X, k.Y, k.Z}
	if _, ok := edits[l]; !ok {
		s.n++
	}
	edits[l] = id
	return nil
}

func (s *Memory) ForChunk(cx, cz int, fn func(k Key, id catalogs.BlockID)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for l, id := range s.chunks[ChunkKey{CX: cx, CZ: cz}] {
		fn(Key{CX: cx, CZ: cz, X: l.X, Y: l.Y, Z: l.Z}, id)
	}
}

func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

func (s *Memory) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, s.n)
	for ck, edits := range s.chunks {
		for l, id := range edits {
			out = append(out, Entry{
				Key:   Key{CX: ck.CX, CZ: ck.CZ, X: l.X, Y: l.Y, Z: l.Z},
				Block: id,
			})
		}
	}
	s.mu.RUnlock()
	SortEntries(out)
	return out
}

// EditedChunks lists chunk keys with at least one edit, sorted.
func (s *Memory) EditedChunks() []ChunkKey {
	s.mu.RLock()
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func SortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i].Key, es[j].Key
		switch {
		case a.CX != b.CX:
			return a.CX < b.CX
		case a.CZ != b.CZ:
			return a.CZ < b.CZ
		case a.X != b.X:
			return a.X < b.X
		case a.Y != b.Y:
			return a.Y < b.Y
		default:
			return a.Z < b.Z
		}
	})
}
