package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// ChunkDigest is the sha256 of a loaded chunk's block ids.
func (w *World) ChunkDigest(k ChunkKey) (string, bool) {
	ch := w.chunks[k]
	if ch == nil || !ch.Loaded() {
		return "", false
	}
	return ch.Digest(), true
}

// StateDigest hashes the loaded chunk set: keys in order, each followed by
// its block digest.
func (w *World) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte
	for _, k := range w.LoadedChunkKeys() {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(k.CX)))
		h.Write(tmp[:])
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(k.CZ)))
		h.Write(tmp[:])
		d := w.chunks[k].grid.Digest()
		h.Write(d[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
