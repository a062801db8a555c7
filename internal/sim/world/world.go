package world

import (
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/gen"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

// World streams chunks around one observer and applies block edits.
// All state must be accessed only from the world loop goroutine; other
// goroutines go through the Request* methods.
type World struct {
	cfg    WorldConfig
	cat    *catalogs.BlockCatalog
	logger *log.Logger

	params gen.Params
	gen    *gen.Generator
	// pendingSize is applied by the next Regenerate so resident chunks
	// always share one width.
	pendingSize *grid.Size

	store store.Store
	sink  RenderSink
	edits EditLogger

	tick atomic.Uint64

	chunks      map[ChunkKey]*Chunk
	center      ChunkKey
	observer    mgl32.Vec3
	hasObserver bool
	nextToken   uint64

	queue    []buildJob
	pool     pond.Pool
	results  chan buildResult
	inflight atomic.Int64

	counters worldCounters
	metrics  atomic.Value

	pendingObserver atomic.Pointer[mgl32.Vec3]

	blockReq chan blockReq
	editReq  chan editReq
	doReq    chan doReq
	stop     chan struct{}
	closed   chan struct{}

	stopOnce  sync.Once
	closeOnce sync.Once
}

type worldCounters struct {
	generated uint64
	evicted   uint64
	cancelled uint64
	dropped   uint64
	failed    uint64
	edits     uint64
	skipped   uint64
}

// New builds an empty world. No chunk exists until an observer position is
// set.
func New(cfg WorldConfig, cat *catalogs.BlockCatalog, params gen.Params) (*World, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	g, err := gen.New(params, cat)
	if err != nil {
		return nil, err
	}
	w := &World{
		cfg:      cfg,
		cat:      cat,
		logger:   log.New(io.Discard, "", 0),
		params:   params.Clone(),
		gen:      g,
		store:    store.NewMemory(),
		sink:     nopSink{},
		chunks:   map[ChunkKey]*Chunk{},
		results:  make(chan buildResult, 64),
		blockReq: make(chan blockReq, 64),
		editReq:  make(chan editReq, 64),
		doReq:    make(chan doReq, 16),
		stop:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	return w, nil
}

// SetStore, SetRenderSink, SetEditLogger and SetLogger must be called before
// any chunk is generated.
func (w *World) SetStore(s store.Store) {
	if s != nil {
		w.store = s
	}
}

func (w *World) SetRenderSink(s RenderSink) {
	if s == nil {
		s = nopSink{}
	}
	w.sink = s
}

func (w *World) SetEditLogger(l EditLogger) { w.edits = l }

func (w *World) SetLogger(l *log.Logger) {
	if l != nil {
		w.logger = l
	}
}

func (w *World) ID() string                      { return w.cfg.ID }
func (w *World) Config() WorldConfig             { return w.cfg }
func (w *World) Catalog() *catalogs.BlockCatalog { return w.cat }
func (w *World) Store() store.Store              { return w.store }
func (w *World) CurrentTick() uint64             { return w.tick.Load() }

// Params returns the parameters later chunks will be generated with.
func (w *World) Params() gen.Params { return w.params.Clone() }

// Observer returns the last applied observer position.
func (w *World) Observer() (mgl32.Vec3, bool) { return w.observer, w.hasObserver }

func (w *World) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Close stops the loop, cancels in-flight builds and waits for the
// background worker to exit.
func (w *World) Close() {
	w.Stop()
	w.closeOnce.Do(func() {
		close(w.closed)
		for _, ch := range w.chunks {
			if ch.cancel != nil {
				ch.cancel()
			}
		}
		if w.pool != nil {
			w.pool.StopAndWait()
		}
	})
}

func (w *World) backgroundPool() pond.Pool {
	if w.pool == nil {
		w.pool = pond.NewPool(1)
	}
	return w.pool
}

// chunkAt resolves a world column to its resident chunk and local x/z.
func (w *World) chunkAt(x, z int) (*Chunk, int, int) {
	width := w.cfg.ChunkSize.Width
	lx, lz := LocalOf(x, z, width)
	return w.chunks[ChunkOf(x, z, width)], lx, lz
}

// Chunk returns the resident chunk at k, in any state.
func (w *World) Chunk(k ChunkKey) (*Chunk, bool) {
	ch, ok := w.chunks[k]
	return ch, ok
}

var _ BlockSource = (*World)(nil)
