package world

import (
	"context"
	"errors"
	"time"

	"voxelterrain.dev/internal/sim/world/mesh"
	"voxelterrain.dev/internal/sim/world/terrain/gen"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

type buildJob struct {
	key    ChunkKey
	token  uint64
	gen    *gen.Generator
	size   grid.Size
	strict bool
}

type buildResult struct {
	key    ChunkKey
	token  uint64
	grid   *grid.Grid
	meshes *mesh.Meshes
	err    error
}

// buildChunk generates and meshes a fresh grid. It touches nothing owned by
// the world loop, so it may run on the background worker.
func (w *World) buildChunk(ctx context.Context, job buildJob) buildResult {
	res := buildResult{key: job.key, token: job.token}
	g, err := grid.New(job.size)
	if err != nil {
		res.err = err
		return res
	}
	if err := job.gen.Generate(ctx, g, job.key.CX, job.key.CZ, w.store); err != nil {
		res.err = err
		return res
	}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}
	m := mesh.New(w.cat, job.strict)
	if err := m.Build(g); err != nil {
		res.err = err
		return res
	}
	res.grid, res.meshes = g, m
	return res
}

// startLoad makes k resident in the loading state and schedules its build
// according to the load mode.
func (w *World) startLoad(k ChunkKey) {
	w.nextToken++
	ch := &Chunk{
		Key:   k,
		Size:  w.cfg.ChunkSize,
		state: ChunkLoading,
		gen:   w.gen,
		token: w.nextToken,
	}
	w.chunks[k] = ch
	job := buildJob{key: k, token: ch.token, gen: ch.gen, size: ch.Size, strict: w.cfg.StrictMeshing}

	switch w.cfg.LoadMode {
	case LoadDeferred:
		w.queue = append(w.queue, job)
	case LoadBackground:
		ctx, cancel := context.WithCancel(context.Background())
		ch.cancel = cancel
		w.inflight.Add(1)
		w.backgroundPool().Submit(func() {
			defer w.inflight.Add(-1)
			res := w.buildChunk(ctx, job)
			select {
			case w.results <- res:
			case <-w.closed:
			}
		})
	default:
		w.install(w.buildChunk(context.Background(), job))
	}
}

// install publishes a finished build. Results for chunks that were evicted
// or rebuilt since the job was scheduled are dropped.
func (w *World) install(res buildResult) {
	ch := w.chunks[res.key]
	if ch == nil || ch.token != res.token || ch.state != ChunkLoading {
		w.counters.dropped++
		return
	}
	if ch.cancel != nil {
		ch.cancel()
		ch.cancel = nil
	}
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			w.counters.dropped++
			return
		}
		ch.state = ChunkFailed
		w.counters.failed++
		w.logger.Printf("chunk (%d,%d): build failed: %v", res.key.CX, res.key.CZ, res.err)
		return
	}
	ch.grid, ch.meshes = res.grid, res.meshes
	ch.state = ChunkLoaded
	w.counters.generated++
	w.counters.skipped += uint64(res.meshes.Skipped())
	w.upsert(ch)
}

// runQueue builds deferred chunks until budget is spent. At least one job
// runs per call so a small budget still makes progress.
func (w *World) runQueue(budget time.Duration) int {
	start := time.Now()
	built := 0
	for len(w.queue) > 0 {
		if built > 0 && time.Since(start) >= budget {
			break
		}
		job := w.queue[0]
		w.queue[0] = buildJob{}
		w.queue = w.queue[1:]
		ch := w.chunks[job.key]
		if ch == nil || ch.token != job.token {
			continue
		}
		w.install(w.buildChunk(context.Background(), job))
		built++
	}
	if len(w.queue) == 0 {
		w.queue = nil
	}
	return built
}

// drainResults installs every background build that has finished so far.
func (w *World) drainResults() {
	for {
		select {
		case res := <-w.results:
			w.install(res)
		default:
			return
		}
	}
}

func (w *World) upsert(ch *Chunk) {
	if err := w.sink.Upsert(ch.export()); err != nil {
		w.logger.Printf("chunk (%d,%d): render upsert: %v", ch.Key.CX, ch.Key.CZ, err)
	}
}
