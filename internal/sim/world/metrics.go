package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	LoadedChunks  int `json:"loaded_chunks"`
	LoadingChunks int `json:"loading_chunks"`
	FailedChunks  int `json:"failed_chunks"`
	QueueDepth    int `json:"queue_depth"`
	InFlight      int `json:"in_flight"`

	Generated uint64 `json:"generated_total"`
	Evicted   uint64 `json:"evicted_total"`
	Cancelled uint64 `json:"cancelled_total"`
	Dropped   uint64 `json:"dropped_total"`
	Failed    uint64 `json:"failed_total"`
	Edits     uint64 `json:"edits_total"`
	Skipped   uint64 `json:"skipped_cells_total"`

	StoredChanges int `json:"stored_changes"`

	Center       [2]int `json:"center"`
	DrawDistance int    `json:"draw_distance"`
	LoadMode     string `json:"load_mode"`
	Seed         int64  `json:"seed"`

	StepMS float64 `json:"step_ms"`
}

func (w *World) publishMetrics(step time.Duration) {
	loaded, loading, failed := w.countStates()
	w.metrics.Store(WorldMetrics{
		Tick:          w.tick.Load(),
		LoadedChunks:  loaded,
		LoadingChunks: loading,
		FailedChunks:  failed,
		QueueDepth:    len(w.queue),
		InFlight:      int(w.inflight.Load()),
		Generated:     w.counters.generated,
		Evicted:       w.counters.evicted,
		Cancelled:     w.counters.cancelled,
		Dropped:       w.counters.dropped,
		Failed:        w.counters.failed,
		Edits:         w.counters.edits,
		Skipped:       w.counters.skipped,
		StoredChanges: w.store.Len(),
		Center:        [2]int{w.center.CX, w.center.CZ},
		DrawDistance:  w.cfg.DrawDistance,
		LoadMode:      w.cfg.LoadMode.String(),
		Seed:          w.params.Seed,
		StepMS:        float64(step.Microseconds()) / 1000,
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
