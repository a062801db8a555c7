package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// FloorDivF maps a continuous coordinate onto a cell of size b. The result
// saturates to the int32 range; NaN maps to cell 0.
func FloorDivF(a float64, b int) int {
	q := math.Floor(a / float64(b))
	switch {
	case math.IsNaN(q):
		return 0
	case q > math.MaxInt32:
		return math.MaxInt32
	case q < math.MinInt32:
		return math.MinInt32
	}
	return int(q)
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Chebyshev returns the chessboard distance between two grid points,
// saturating at math.MaxInt.
func Chebyshev(ax, az, bx, bz int) int {
	d := absDiff(ax, bx)
	if dz := absDiff(az, bz); dz > d {
		d = dz
	}
	if d > math.MaxInt {
		return math.MaxInt
	}
	return int(d)
}

func absDiff(a, b int) uint64 {
	if a > b {
		return uint64(a) - uint64(b)
	}
	return uint64(b) - uint64(a)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
