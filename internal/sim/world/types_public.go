package world

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/sim/world/mesh"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

var (
	// ErrChunkNotReady is returned for edits on chunks that are missing or
	// still loading.
	ErrChunkNotReady = errors.New("chunk not ready")
	ErrInvalidBlock  = errors.New("invalid block")
	ErrClosed        = errors.New("world closed")
	// ErrEditsRecorded refuses a seed or chunk size change while the change
	// store holds edits made against the current terrain.
	ErrEditsRecorded = errors.New("change store holds edits for the current seed and chunk size")
)

type ChunkKey = store.ChunkKey

// ChunkMesh is what a render sink receives for one loaded chunk: the chunk
// origin in world space and one instance list per block type, with
// transforms local to the origin.
type ChunkMesh struct {
	Key     ChunkKey
	Origin  mgl32.Vec3
	Digest  string
	Batches []mesh.InstanceList
}

// RenderSink receives chunk geometry. Calls are made from the world
// goroutine and must not block.
type RenderSink interface {
	Upsert(m ChunkMesh) error
	Dispose(k ChunkKey) error
}

// BlockSource is the query surface for physics.
type BlockSource interface {
	GetBlock(x, y, z int) (grid.Cell, bool)
}

type EditLogger interface {
	WriteEdit(entry EditLogEntry) error
}

type EditLogEntry struct {
	Tick   uint64 `json:"tick"`
	Action string `json:"action"` // ADD_BLOCK or REMOVE_BLOCK
	Pos    [3]int `json:"pos"`
	Chunk  [2]int `json:"chunk"`
	Local  [3]int `json:"local"`
	From   uint16 `json:"from"`
	To     uint16 `json:"to"`
	Actor  string `json:"actor,omitempty"`
}

const (
	ActionAddBlock    = "ADD_BLOCK"
	ActionRemoveBlock = "REMOVE_BLOCK"
)

type nopSink struct{}

func (nopSink) Upsert(ChunkMesh) error { return nil }
func (nopSink) Dispose(ChunkKey) error { return nil }
