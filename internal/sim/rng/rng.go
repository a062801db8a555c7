// Package rng provides a small seeded random stream that is identical on every
// platform. It is deliberately independent of math/rand so that stored seeds
// keep reproducing the same worlds across Go releases.
package rng

const (
	defaultW uint32 = 123456789
	defaultZ uint32 = 987654321
)

// RNG is a multiply-with-carry generator (two 16-bit lag-1 streams).
// Not safe for concurrent use.
type RNG struct {
	w uint32
	z uint32
}

func New(seed int64) *RNG {
	r := &RNG{
		w: defaultW + uint32(seed),
		z: defaultZ - uint32(seed),
	}
	// A zero state would stay zero forever.
	if r.w == 0 {
		r.w = defaultW
	}
	if r.z == 0 {
		r.z = defaultZ
	}
	return r
}

func (r *RNG) next() uint32 {
	r.z = 36969*(r.z&0xFFFF) + (r.z >> 16)
	r.w = 18000*(r.w&0xFFFF) + (r.w >> 16)
	return (r.z << 16) + (r.w & 0xFFFF)
}

// Float64 returns the next value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.next()) / 4294967296.0
}

// Intn returns the next value in [0, n). n <= 0 yields 0.
func (r *RNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Float64() * float64(n))
}
