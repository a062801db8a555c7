package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl32"

	persistlog "voxelterrain.dev/internal/persistence/log"
	"voxelterrain.dev/internal/persistence/snapshot"
	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/tuning"
	"voxelterrain.dev/internal/sim/world"
	"voxelterrain.dev/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "", "world id (default: tuning world_id)")
		seed       = flag.Int64("seed", 0, "terrain seed (overrides tuning when set)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")

		snapPath      = flag.String("snapshot", "", "path to change snapshot to load (optional)")
		loadLatest    = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		snapshotEvery = flag.Duration("snapshot_every", 5*time.Minute, "periodic snapshot interval (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			tune.Seed = *seed
		}
	})
	if id := strings.TrimSpace(*worldID); id != "" {
		tune.WorldID = id
	}

	cat := catalogs.Default()
	if p := strings.TrimSpace(tune.CatalogPath); p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(*configDir, p)
		}
		if cat, err = catalogs.Load(p); err != nil {
			logger.Fatalf("load catalog: %v", err)
		}
	}
	params, err := tune.Params(cat)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", tune.WorldID)
	_ = os.MkdirAll(worldDir, 0o755)

	w, err := world.New(tune.WorldConfig(), cat, params)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	cs, err := openChangeStore(tune, worldDir)
	if err != nil {
		logger.Fatalf("open change store: %v", err)
	}
	w.SetStore(cs)
	logger.Printf("change store backend=%s edits=%s", storeBackend(tune), humanize.Comma(int64(cs.Len())))

	// A persistent store already holds every edit; snapshots only seed an
	// empty one.
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad != "" && cs.Len() == 0 {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}
	// Keeps snapshot names increasing when the store, not a snapshot, holds
	// the edits.
	w.ResumeTick(resumeTick(worldDir, cs))

	editLog := persistlog.NewEditLogger(worldDir)
	w.SetEditLogger(editLog)

	obsSrv := observer.NewServer(w, logger)

	size, _ := w.ChunkSize()
	w.UpdateObserver(mgl32.Vec3{0, float32(size.Height), 0})

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	takeSnapshot := func(ctx context.Context) (uint64, error) {
		var snap snapshot.ChangesV1
		if err := w.Do(ctx, func(w *world.World) error {
			snap = w.ExportSnapshot()
			return nil
		}); err != nil {
			return 0, err
		}
		_, err := saveSnapshot(worldDir, snap, cs, logger)
		return snap.Header.Tick, err
	}

	if *snapshotEvery > 0 {
		go func() {
			t := time.NewTicker(*snapshotEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if _, err := takeSnapshot(ctx); err != nil && ctx.Err() == nil {
						logger.Printf("snapshot: %v", err)
					}
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writePromMetrics(rw, tune.WorldID, w.Metrics(), obsSrv.Hub().Stats())
	})
	obsSrv.Routes(mux)

	enableAdminHTTP := envBool("VC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("VC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			var resp struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Digest  string             `json:"state_digest"`
				Metrics world.WorldMetrics `json:"metrics"`
			}
			if err := w.Do(ctx2, func(w *world.World) error {
				resp.WorldID = w.ID()
				resp.Tick = w.CurrentTick()
				resp.Digest = w.StateDigest()
				return nil
			}); err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			resp.Metrics = w.Metrics()
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := takeSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else {
		logger.Printf("admin endpoints disabled (VC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The loop has stopped; the world is safe to read directly.
	cancel()
	<-runDone
	if _, err := saveSnapshot(worldDir, w.ExportSnapshot(), cs, logger); err != nil {
		logger.Printf("final snapshot: %v", err)
	}
	ctx3, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
	if err := cs.Sync(ctx3); err != nil {
		logger.Printf("sync change store: %v", err)
	}
	cancel3()
	w.Close()
	_ = cs.Close()
	_ = editLog.Close()
	logger.Printf("shutdown: tick=%d edit log %s", w.CurrentTick(), humanize.Bytes(uint64(editLog.Written())))
}

func writePromMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics, v observer.HubStats) {
	gauge := func(name, help string, val any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %v\n", name, worldID, val)
	}
	counter := func(name, help string, val uint64) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s counter\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %d\n", name, worldID, val)
	}

	gauge("voxelterrain_world_tick", "Current world tick.", m.Tick)
	fmt.Fprintf(rw, "# HELP voxelterrain_world_chunks Chunks by state.\n")
	fmt.Fprintf(rw, "# TYPE voxelterrain_world_chunks gauge\n")
	fmt.Fprintf(rw, "voxelterrain_world_chunks{world=%q,state=%q} %d\n", worldID, "loaded", m.LoadedChunks)
	fmt.Fprintf(rw, "voxelterrain_world_chunks{world=%q,state=%q} %d\n", worldID, "loading", m.LoadingChunks)
	fmt.Fprintf(rw, "voxelterrain_world_chunks{world=%q,state=%q} %d\n", worldID, "failed", m.FailedChunks)
	gauge("voxelterrain_world_queue_depth", "Deferred build queue depth.", m.QueueDepth)
	gauge("voxelterrain_world_inflight", "Background builds in flight.", m.InFlight)
	gauge("voxelterrain_world_stored_changes", "Edits held by the change store.", m.StoredChanges)
	gauge("voxelterrain_world_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

	counter("voxelterrain_chunks_generated_total", "Chunks generated.", m.Generated)
	counter("voxelterrain_chunks_evicted_total", "Chunks evicted.", m.Evicted)
	counter("voxelterrain_chunks_cancelled_total", "Loading chunks cancelled by eviction.", m.Cancelled)
	counter("voxelterrain_chunks_dropped_total", "Stale build results dropped.", m.Dropped)
	counter("voxelterrain_chunks_failed_total", "Chunk builds that failed.", m.Failed)
	counter("voxelterrain_edits_total", "Block edits applied.", m.Edits)
	counter("voxelterrain_skipped_cells_total", "Cells skipped by lenient meshing.", m.Skipped)

	gauge("voxelterrain_viewer_sessions", "Connected viewer sessions.", v.Sessions)
	counter("voxelterrain_viewer_upserts_total", "Chunk meshes broadcast.", v.Upserts)
	counter("voxelterrain_viewer_disposes_total", "Chunk disposals broadcast.", v.Disposes)
	counter("voxelterrain_viewer_overruns_total", "Viewer sessions closed for falling behind.", v.Overruns)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
