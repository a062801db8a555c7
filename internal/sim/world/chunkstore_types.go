package world

import (
	"context"
	"encoding/hex"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/sim/world/mesh"
	"voxelterrain.dev/internal/sim/world/terrain/gen"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

type ChunkState int

const (
	ChunkUnloaded ChunkState = iota
	ChunkLoading
	ChunkLoaded
	// ChunkFailed holds a chunk whose build errored. It stays resident but
	// unreadable until it is evicted or regenerated.
	ChunkFailed
)

func (s ChunkState) String() string {
	switch s {
	case ChunkLoading:
		return "loading"
	case ChunkLoaded:
		return "loaded"
	case ChunkFailed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Chunk is one resident column of the world. grid and meshes are set only
// when the chunk reaches ChunkLoaded.
type Chunk struct {
	Key   ChunkKey
	Size  grid.Size
	state ChunkState

	gen    *gen.Generator
	grid   *grid.Grid
	meshes *mesh.Meshes

	// token identifies this incarnation of the chunk; builds finishing for
	// an older token are dropped.
	token  uint64
	cancel context.CancelFunc
}

func (c *Chunk) State() ChunkState { return c.state }
func (c *Chunk) Loaded() bool      { return c.state == ChunkLoaded }

// Params is the generation snapshot the chunk was built from.
func (c *Chunk) Params() gen.Params { return c.gen.Params() }

// Origin is the world position of local cell (0,0,0).
func (c *Chunk) Origin() (x, y, z int) {
	return c.Key.CX * c.Size.Width, 0, c.Key.CZ * c.Size.Width
}

func (c *Chunk) OriginVec() mgl32.Vec3 {
	x, y, z := c.Origin()
	return mgl32.Vec3{float32(x), float32(y), float32(z)}
}

func (c *Chunk) Digest() string {
	if c.grid == nil {
		return ""
	}
	d := c.grid.Digest()
	return hex.EncodeToString(d[:])
}

func (c *Chunk) export() ChunkMesh {
	return ChunkMesh{
		Key:     c.Key,
		Origin:  c.OriginVec(),
		Digest:  c.Digest(),
		Batches: c.meshes.Export(),
	}
}
