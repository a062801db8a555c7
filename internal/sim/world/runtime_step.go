package world

import "time"

// Tick advances the world by one step: it applies the latest observer
// position, installs finished background builds and drains the deferred
// queue within the configured budget.
func (w *World) Tick() {
	start := time.Now()
	w.tick.Add(1)

	if pos := w.pendingObserver.Swap(nil); pos != nil {
		w.UpdateObserver(*pos)
	}
	w.drainResults()
	w.runQueue(w.cfg.LoadBudget)

	w.publishMetrics(time.Since(start))
}

// ResumeTick raises the tick counter to t; it never moves it back. Call it
// before Run.
func (w *World) ResumeTick(t uint64) {
	if t > w.tick.Load() {
		w.tick.Store(t)
	}
}
