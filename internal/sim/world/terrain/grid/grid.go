package grid

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"voxelterrain.dev/internal/sim/catalogs"
)

// NoInstance marks a cell that has no render instance.
const NoInstance int32 = -1

var ErrInvalidSize = errors.New("invalid chunk size")

type Size struct {
	Width  int
	Height int
}

func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, s.Width, s.Height)
	}
	return nil
}

// Volume is the number of cells in one chunk.
func (s Size) Volume() int { return s.Width * s.Width * s.Height }

type Cell struct {
	Block    catalogs.BlockID
	Instance int32
}

func (c Cell) Empty() bool   { return c.Block == catalogs.Empty }
func (c Cell) Slotted() bool { return c.Instance != NoInstance }

// Grid is a dense width x height x width block of cells.
// Cells are stored x-major, then y, then z, so a linear walk visits cells in
// the same order as nested x/y/z loops.
type Grid struct {
	size  Size
	cells []Cell

	dirty bool
	hash  [32]byte
}

func New(size Size) (*Grid, error) {
	if err := size.Validate(); err != nil {
		return nil, err
	}
	g := &Grid{
		size:  size,
		cells: make([]Cell, size.Volume()),
	}
	g.Reset()
	return g, nil
}

func (g *Grid) Size() Size { return g.size }

func (g *Grid) index(x, y, z int) int {
	return (x*g.size.Height+y)*g.size.Width + z
}

func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && x < g.size.Width &&
		y >= 0 && y < g.size.Height &&
		z >= 0 && z < g.size.Width
}

// Reset clears every cell to empty with no instance.
func (g *Grid) Reset() {
	for i := range g.cells {
		g.cells[i] = Cell{Block: catalogs.Empty, Instance: NoInstance}
	}
	g.dirty = true
}

// Get returns the cell at (x,y,z); ok is false outside the grid.
func (g *Grid) Get(x, y, z int) (Cell, bool) {
	if !g.InBounds(x, y, z) {
		return Cell{Block: catalogs.Empty, Instance: NoInstance}, false
	}
	return g.cells[g.index(x, y, z)], true
}

// Block returns the block id at (x,y,z), empty outside the grid.
func (g *Grid) Block(x, y, z int) catalogs.BlockID {
	if !g.InBounds(x, y, z) {
		return catalogs.Empty
	}
	return g.cells[g.index(x, y, z)].Block
}

func (g *Grid) SetBlock(x, y, z int, id catalogs.BlockID) {
	if !g.InBounds(x, y, z) {
		return
	}
	i := g.index(x, y, z)
	if g.cells[i].Block == id {
		return
	}
	g.cells[i].Block = id
	g.dirty = true
}

func (g *Grid) SetInstance(x, y, z int, slot int32) {
	if !g.InBounds(x, y, z) {
		return
	}
	g.cells[g.index(x, y, z)].Instance = slot
}

// Obscured reports whether all 6 face neighbours are solid. Neighbours outside
// the grid count as exposed.
func (g *Grid) Obscured(x, y, z int) bool {
	for _, d := range Faces {
		nx, ny, nz := x+d[0], y+d[1], z+d[2]
		if !g.InBounds(nx, ny, nz) {
			return false
		}
		if g.cells[g.index(nx, ny, nz)].Block == catalogs.Empty {
			return false
		}
	}
	return true
}

// Faces are the 6 axis-aligned neighbour offsets.
var Faces = [6][3]int{
	{0, 1, 0},
	{0, -1, 0},
	{1, 0, 0},
	{-1, 0, 0},
	{0, 0, 1},
	{0, 0, -1},
}

// Each visits every cell in x, y, z order.
func (g *Grid) Each(fn func(x, y, z int, c Cell)) {
	i := 0
	for x := 0; x < g.size.Width; x++ {
		for y := 0; y < g.size.Height; y++ {
			for z := 0; z < g.size.Width; z++ {
				fn(x, y, z, g.cells[i])
				i++
			}
		}
	}
}

// Blocks copies the block ids in storage order.
func (g *Grid) Blocks() []catalogs.BlockID {
	out := make([]catalogs.BlockID, len(g.cells))
	for i, c := range g.cells {
		out[i] = c.Block
	}
	return out
}

// Digest hashes block ids only; instance slots are render state.
func (g *Grid) Digest() [32]byte {
	if g.dirty || g.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, c := range g.cells {
			binary.LittleEndian.PutUint16(tmp[:], uint16(c.Block))
			h.Write(tmp[:])
		}
		copy(g.hash[:], h.Sum(nil))
		g.dirty = false
	}
	return g.hash
}
