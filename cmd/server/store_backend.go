package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxelterrain.dev/internal/persistence/indexdb"
	"voxelterrain.dev/internal/persistence/snapshot"
	"voxelterrain.dev/internal/sim/tuning"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

// changeStore is a store.Store the server owns and must close.
type changeStore interface {
	store.Store
	Close() error
	// Sync blocks until every recorded edit is durable.
	Sync(ctx context.Context) error
	RecordSnapshot(path string, snap snapshot.ChangesV1)
	// LastSnapshotTick is the tick of the newest snapshot the store has
	// indexed, or 0.
	LastSnapshotTick() uint64
}

type memoryStore struct{ *store.Memory }

func (memoryStore) Close() error                              { return nil }
func (memoryStore) Sync(context.Context) error                { return nil }
func (memoryStore) RecordSnapshot(string, snapshot.ChangesV1) {}
func (memoryStore) LastSnapshotTick() uint64                  { return 0 }

type sqliteStore struct{ *indexdb.SQLiteStore }

func (s sqliteStore) Sync(ctx context.Context) error { return s.Flush(ctx) }

func (s sqliteStore) LastSnapshotTick() uint64 {
	_, tick, ok, err := s.LatestSnapshot()
	if err != nil || !ok {
		return 0
	}
	return tick
}

// storeBackend resolves the backend name; VC_STORE_BACKEND overrides the
// tuning file.
func storeBackend(tune tuning.Tuning) string {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("VC_STORE_BACKEND"))); v != "" {
		return v
	}
	return tune.Store.Backend
}

func openChangeStore(tune tuning.Tuning, worldDir string) (changeStore, error) {
	switch backend := storeBackend(tune); backend {
	case tuning.StoreMemory, "":
		return memoryStore{store.NewMemory()}, nil
	case tuning.StoreSQLite:
		path := tune.Store.Path
		if path == "" {
			path = filepath.Join("index", "changes.sqlite")
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(worldDir, path)
		}
		db, err := indexdb.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := checkStoreLayout(db, tune); err != nil {
			_ = db.Close()
			return nil, err
		}
		return sqliteStore{db}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}

// checkStoreLayout refuses a database recorded with another seed or chunk
// layout, then stamps the current one.
func checkStoreLayout(db *indexdb.SQLiteStore, tune tuning.Tuning) error {
	want := map[string]string{
		"seed":         strconv.FormatInt(tune.Seed, 10),
		"chunk_width":  strconv.Itoa(tune.ChunkWidth),
		"chunk_height": strconv.Itoa(tune.ChunkHeight),
	}
	for _, k := range []string{"seed", "chunk_width", "chunk_height"} {
		got, ok, err := db.Meta(k)
		if err != nil {
			return err
		}
		if ok && db.Len() > 0 && got != want[k] {
			return fmt.Errorf("change store %s mismatch: db=%s cfg=%s", k, got, want[k])
		}
	}
	for k, v := range want {
		if err := db.SetMeta(k, v); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.Flush(ctx)
}
