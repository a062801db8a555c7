package store

import (
	"sync"

	"voxelterrain.dev/internal/sim/catalogs"
)

type ChunkKey struct {
	CX int
	CZ int
}

// Key addresses one cell by chunk coordinate plus local coordinate.
type Key struct {
	CX, CZ  int
	X, Y, Z int
}

func (k Key) Chunk() ChunkKey { return ChunkKey{CX: k.CX, CZ: k.CZ} }

type Entry struct {
	Key
	Block catalogs.BlockID
}

// Store records player edits so they survive chunk unload/reload.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(k Key) (catalogs.BlockID, bool)
	Set(k Key, id catalogs.BlockID) error
	// ForChunk calls fn for every edit in the chunk. fn must not call back
	// into the store.
	ForChunk(cx, cz int, fn func(k Key, id catalogs.BlockID))
	Len() int
	// Entries returns every edit in key order.
	Entries() []Entry
}

type local struct{ X, Y, Z int }

// Memory is the in-process Store. Entries never expire.
type Memory struct {
	mu     sync.RWMutex
	chunks map[ChunkKey]map[local]catalogs.BlockID
	n      int
}

func NewMemory() *Memory {
	return &Memory{chunks: map[ChunkKey]map[local]catalogs.BlockID{}}
}

var _ Store = (*Memory)(nil)
