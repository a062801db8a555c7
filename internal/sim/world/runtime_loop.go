package world

import (
	"context"
	"time"
)

// Run owns the world until ctx is cancelled or Stop is called. Background
// builds are installed as soon as they arrive rather than on the next tick.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case res := <-w.results:
			w.install(res)
		case req := <-w.blockReq:
			w.handleBlockReq(req)
		case req := <-w.editReq:
			w.handleEditReq(req)
		case req := <-w.doReq:
			w.handleDoReq(req)
		case <-ticker.C:
			w.Tick()
		}
	}
}
