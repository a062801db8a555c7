package world

import "voxelterrain.dev/internal/sim/world/logic/mathx"

// ChunkOf returns the chunk holding world column (x, z).
func ChunkOf(x, z, width int) ChunkKey {
	return ChunkKey{CX: mathx.FloorDiv(x, width), CZ: mathx.FloorDiv(z, width)}
}

// LocalOf converts a world column to chunk-local coordinates.
func LocalOf(x, z, width int) (lx, lz int) {
	return mathx.Mod(x, width), mathx.Mod(z, width)
}

// VisibleSet lists the chunk keys within Chebyshev distance d of center,
// nearest rings first.
func VisibleSet(center ChunkKey, d int) []ChunkKey {
	if d < 0 {
		return nil
	}
	out := make([]ChunkKey, 0, (2*d+1)*(2*d+1))
	out = append(out, center)
	for r := 1; r <= d; r++ {
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if mathx.AbsInt(dx) != r && mathx.AbsInt(dz) != r {
					continue
				}
				out = append(out, ChunkKey{CX: center.CX + dx, CZ: center.CZ + dz})
			}
		}
	}
	return out
}

func chunkDistance(a, b ChunkKey) int {
	return mathx.Chebyshev(a.CX, a.CZ, b.CX, b.CZ)
}
