package main

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"voxelterrain.dev/internal/persistence/snapshot"
)

func snapshotsDir(worldDir string) string { return filepath.Join(worldDir, "snapshots") }

func latestSnapshot(worldDir string) string {
	dir := snapshotsDir(worldDir)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "changes-") || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(strings.TrimPrefix(name, "changes-"), ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// resumeTick is the newest tick recorded either in the store's snapshot index
// or in the header of the latest snapshot file under worldDir.
func resumeTick(worldDir string, cs changeStore) uint64 {
	tick := cs.LastSnapshotTick()
	if p := latestSnapshot(worldDir); p != "" {
		if h, err := snapshot.ReadHeader(p); err == nil && h.Tick > tick {
			tick = h.Tick
		}
	}
	return tick
}

// saveSnapshot writes snap under worldDir and indexes it in cs.
func saveSnapshot(worldDir string, snap snapshot.ChangesV1, cs changeStore, logger *log.Logger) (string, error) {
	path := filepath.Join(snapshotsDir(worldDir), snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	cs.RecordSnapshot(path, snap)
	size := "?"
	if fi, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	logger.Printf("snapshot tick=%d changes=%s size=%s path=%s",
		snap.Header.Tick, humanize.Comma(int64(len(snap.Changes))), size, path)
	return path, nil
}
