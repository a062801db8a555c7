// Package mesh keeps one dense instance list per block type for a chunk.
//
// Each slot stores a translation matrix and the local cell that owns it, and
// the owning grid cell stores the slot index. Removal swaps the last slot into
// the hole, so both sides of the back-reference are updated together.
package mesh

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

var ErrUnknownBlockType = errors.New("unknown block type")

// Owner is the local cell a slot belongs to.
type Owner struct {
	X, Y, Z int
}

// Batch is the instance list for one block type.
type Batch struct {
	Block    catalogs.BlockID
	Name     string
	Color    uint32
	HasColor bool

	transforms []mgl32.Mat4
	owners     []Owner
}

func (b *Batch) Len() int { return len(b.transforms) }

func (b *Batch) Transform(slot int) mgl32.Mat4 { return b.transforms[slot] }

func (b *Batch) Owner(slot int) Owner { return b.owners[slot] }

// Position is the translation part of the slot's transform.
func (b *Batch) Position(slot int) mgl32.Vec3 { return b.transforms[slot].Col(3).Vec3() }

func (b *Batch) append(o Owner) int32 {
	b.transforms = append(b.transforms, mgl32.Translate3D(float32(o.X), float32(o.Y), float32(o.Z)))
	b.owners = append(b.owners, o)
	return int32(len(b.transforms) - 1)
}

// remove deletes slot by moving the last slot into it. It returns the owner
// that now lives at slot, if any moved.
func (b *Batch) remove(slot int32) (Owner, bool) {
	last := int32(len(b.transforms) - 1)
	var moved Owner
	ok := false
	if slot != last {
		b.transforms[slot] = b.transforms[last]
		b.owners[slot] = b.owners[last]
		moved, ok = b.owners[slot], true
	}
	b.transforms = b.transforms[:last]
	b.owners = b.owners[:last]
	return moved, ok
}

// InstanceList is a copy of one batch handed to a render sink.
type InstanceList struct {
	Block      catalogs.BlockID
	Name       string
	Color      uint32
	HasColor   bool
	Transforms []mgl32.Mat4
}

// Meshes is the set of batches of one chunk. It is not safe for concurrent
// use; the owning world goroutine serializes access.
type Meshes struct {
	cat     *catalogs.BlockCatalog
	strict  bool
	batches map[catalogs.BlockID]*Batch
	skipped int
}

// New returns an empty mesh set. In strict mode cells with ids missing from
// cat fail with ErrUnknownBlockType; otherwise they are skipped and counted.
func New(cat *catalogs.BlockCatalog, strict bool) *Meshes {
	return &Meshes{
		cat:     cat,
		strict:  strict,
		batches: map[catalogs.BlockID]*Batch{},
	}
}

func (m *Meshes) Strict() bool { return m.strict }

// Skipped counts cells left unslotted because their block was unknown.
func (m *Meshes) Skipped() int { return m.skipped }

// Build discards existing batches and instances every exposed non-empty cell
// of g in x, y, z order.
func (m *Meshes) Build(g *grid.Grid) error {
	m.batches = map[catalogs.BlockID]*Batch{}
	m.skipped = 0
	var err error
	g.Each(func(x, y, z int, c grid.Cell) {
		g.SetInstance(x, y, z, grid.NoInstance)
		if err != nil || c.Empty() || g.Obscured(x, y, z) {
			return
		}
		err = m.slot(g, x, y, z, c.Block)
	})
	return err
}

// AddInstance appends a slot for a non-empty cell that has none. Cells that
// are empty, already slotted or outside g are left alone.
func (m *Meshes) AddInstance(g *grid.Grid, x, y, z int) error {
	c, ok := g.Get(x, y, z)
	if !ok || c.Empty() || c.Slotted() {
		return nil
	}
	return m.slot(g, x, y, z, c.Block)
}

// DeleteInstance frees the cell's slot, if it has one.
func (m *Meshes) DeleteInstance(g *grid.Grid, x, y, z int) {
	c, ok := g.Get(x, y, z)
	if !ok || !c.Slotted() {
		return
	}
	b := m.batches[c.Block]
	if b == nil || int(c.Instance) >= b.Len() {
		g.SetInstance(x, y, z, grid.NoInstance)
		return
	}
	if moved, ok := b.remove(c.Instance); ok {
		g.SetInstance(moved.X, moved.Y, moved.Z, c.Instance)
	}
	g.SetInstance(x, y, z, grid.NoInstance)
}

func (m *Meshes) slot(g *grid.Grid, x, y, z int, id catalogs.BlockID) error {
	b, err := m.batch(id)
	if err != nil {
		if m.strict {
			return fmt.Errorf("%w: %d at (%d,%d,%d)", err, id, x, y, z)
		}
		m.skipped++
		return nil
	}
	g.SetInstance(x, y, z, b.append(Owner{X: x, Y: y, Z: z}))
	return nil
}

func (m *Meshes) batch(id catalogs.BlockID) (*Batch, error) {
	if b, ok := m.batches[id]; ok {
		return b, nil
	}
	def, ok := m.cat.Get(id)
	if !ok || id == catalogs.Empty {
		return nil, ErrUnknownBlockType
	}
	b := &Batch{Block: id, Name: def.Name}
	if def.Color != nil {
		b.Color, b.HasColor = *def.Color, true
	}
	m.batches[id] = b
	return b, nil
}

func (m *Meshes) Batch(id catalogs.BlockID) (*Batch, bool) {
	b, ok := m.batches[id]
	return b, ok
}

// Batches returns the batches ordered by block id.
func (m *Meshes) Batches() []*Batch {
	out := make([]*Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Block < out[j].Block })
	return out
}

// Instances is the total slot count over all batches.
func (m *Meshes) Instances() int {
	n := 0
	for _, b := range m.batches {
		n += b.Len()
	}
	return n
}

// Export copies every batch, including ones that emptied after edits, so a
// sink can clear them.
func (m *Meshes) Export() []InstanceList {
	batches := m.Batches()
	out := make([]InstanceList, 0, len(batches))
	for _, b := range batches {
		out = append(out, InstanceList{
			Block:      b.Block,
			Name:       b.Name,
			Color:      b.Color,
			HasColor:   b.HasColor,
			Transforms: append([]mgl32.Mat4(nil), b.transforms...),
		})
	}
	return out
}

// Check verifies both directions of the slot back-reference against g.
func (m *Meshes) Check(g *grid.Grid) error {
	for _, b := range m.batches {
		for i, o := range b.owners {
			c, ok := g.Get(o.X, o.Y, o.Z)
			if !ok || c.Block != b.Block || c.Instance != int32(i) {
				return fmt.Errorf("batch %d slot %d: owner (%d,%d,%d) holds block %d slot %d", b.Block, i, o.X, o.Y, o.Z, c.Block, c.Instance)
			}
			want := mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}
			if p := b.Position(i); !p.ApproxEqual(want) {
				return fmt.Errorf("batch %d slot %d: transform at %v, owner at %v", b.Block, i, p, want)
			}
		}
	}
	var err error
	g.Each(func(x, y, z int, c grid.Cell) {
		if err != nil || !c.Slotted() {
			return
		}
		if c.Empty() {
			err = fmt.Errorf("empty cell (%d,%d,%d) holds slot %d", x, y, z, c.Instance)
			return
		}
		b := m.batches[c.Block]
		if b == nil || int(c.Instance) >= b.Len() || b.owners[c.Instance] != (Owner{x, y, z}) {
			err = fmt.Errorf("cell (%d,%d,%d) slot %d not owned", x, y, z, c.Instance)
		}
	})
	return err
}
