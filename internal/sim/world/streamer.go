package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/sim/world/logic/mathx"
)

// UpdateObserver moves the streaming window to the chunk under pos, evicts
// chunks that fell out of range and starts loading the missing ones.
// Positions with a NaN or infinite component are ignored.
func (w *World) UpdateObserver(pos mgl32.Vec3) {
	for _, v := range pos {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			w.logger.Printf("observer: ignoring non-finite position %v", pos)
			return
		}
	}
	w.observer = pos
	w.hasObserver = true
	w.recenter()
	w.refresh()
}

// SetObserverAsync records pos for the next Tick. Safe from any goroutine;
// only the latest position is kept.
func (w *World) SetObserverAsync(pos mgl32.Vec3) {
	w.pendingObserver.Store(&pos)
}

func (w *World) recenter() {
	width := w.cfg.ChunkSize.Width
	w.center = ChunkKey{
		CX: mathx.FloorDivF(float64(w.observer.X()), width),
		CZ: mathx.FloorDivF(float64(w.observer.Z()), width),
	}
}

// Center is the chunk the observer stands in.
func (w *World) Center() ChunkKey { return w.center }

func (w *World) refresh() {
	if !w.hasObserver {
		return
	}
	keep := w.cfg.DrawDistance + w.cfg.EvictHysteresis
	for _, k := range w.ResidentChunkKeys() {
		if chunkDistance(k, w.center) > keep {
			w.evict(k)
		}
	}
	for _, k := range VisibleSet(w.center, w.cfg.DrawDistance) {
		if _, ok := w.chunks[k]; !ok {
			w.startLoad(k)
		}
	}
}

// evict removes k. A loading chunk has its build cancelled; a loaded one is
// disposed from the render sink. Sink failures are logged and ignored.
func (w *World) evict(k ChunkKey) {
	ch := w.chunks[k]
	if ch == nil {
		return
	}
	delete(w.chunks, k)
	switch ch.state {
	case ChunkLoading:
		if ch.cancel != nil {
			ch.cancel()
			ch.cancel = nil
		}
		w.counters.cancelled++
	case ChunkLoaded:
		if err := w.sink.Dispose(k); err != nil {
			w.logger.Printf("chunk (%d,%d): render dispose: %v", k.CX, k.CZ, err)
		}
	}
	ch.state = ChunkUnloaded
	w.counters.evicted++
}

// Regenerate drops every resident chunk and rebuilds the visible set with
// the current parameters. A pending chunk size takes effect here. Stored
// edits are reapplied.
func (w *World) Regenerate() {
	for _, k := range w.ResidentChunkKeys() {
		w.evict(k)
	}
	w.queue = nil
	if w.pendingSize != nil {
		if w.store.Len() > 0 {
			w.logger.Printf("regenerate: dropping pending chunk size %dx%d: %v",
				w.pendingSize.Width, w.pendingSize.Height, ErrEditsRecorded)
		} else {
			w.cfg.ChunkSize = *w.pendingSize
			w.recenter()
		}
		w.pendingSize = nil
	}
	w.logger.Printf("regenerate: seed=%d chunk=%dx%d draw_distance=%d mode=%s",
		w.params.Seed, w.cfg.ChunkSize.Width, w.cfg.ChunkSize.Height, w.cfg.DrawDistance, w.cfg.LoadMode)
	w.refresh()
}
