package store

import (
	"fmt"

	snapv1 "voxelterrain.dev/internal/persistence/snapshot"
	"voxelterrain.dev/internal/sim/catalogs"
)

// ExportChanges converts store entries into snapshot rows, in key order.
func ExportChanges(s Store) []snapv1.ChangeV1 {
	entries := s.Entries()
	out := make([]snapv1.ChangeV1, 0, len(entries))
	for _, e := range entries {
		out = append(out, snapv1.ChangeV1{
			CX:    e.CX,
			CZ:    e.CZ,
			X:     e.X,
			Y:     e.Y,
			Z:     e.Z,
			Block: uint16(e.Block),
		})
	}
	return out
}

// ImportChanges replays snapshot rows into dst. Rows with negative local
// coordinates are rejected; a later row for the same key wins.
func ImportChanges(dst Store, changes []snapv1.ChangeV1) error {
	for i, c := range changes {
		if c.X < 0 || c.Y < 0 || c.Z < 0 {
			return fmt.Errorf("change %d: negative local coordinate (%d,%d,%d)", i, c.X, c.Y, c.Z)
		}
		k := Key{CX: c.CX, CZ: c.CZ, X: c.X, Y: c.Y, Z: c.Z}
		if err := dst.Set(k, catalogs.BlockID(c.Block)); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	return nil
}
