package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	persistlog "voxelterrain.dev/internal/persistence/log"
	"voxelterrain.dev/internal/persistence/snapshot"
	"voxelterrain.dev/internal/sim/tuning"
	"voxelterrain.dev/internal/sim/world/terrain/store"
)

// replay folds edit logs, optionally on top of a change snapshot, into a new
// change snapshot.
func main() {
	var (
		snapPath   = flag.String("snapshot", "", "base change snapshot (optional)")
		editsDir   = flag.String("edits", "", "edits dir containing edits-*.jsonl.zst")
		tuningPath = flag.String("tuning", "", "tuning.yaml for seed and chunk size when there is no base snapshot")
		outPath    = flag.String("out", "", "write the folded snapshot here (optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *editsDir == "" && *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -edits or -snapshot")
		os.Exit(2)
	}

	var base snapshot.ChangesV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		base = s
		fmt.Printf("snapshot v%d world=%s tick=%d seed=%d chunk=%dx%d changes=%s\n",
			s.Header.Version, s.Header.WorldID, s.Header.Tick, s.Seed, s.ChunkWidth, s.ChunkHeight,
			humanize.Comma(int64(len(s.Changes))))
	} else {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		base = snapshot.ChangesV1{
			Header:      snapshot.Header{Version: snapshot.Version, WorldID: tune.WorldID},
			Seed:        tune.Seed,
			ChunkWidth:  tune.ChunkWidth,
			ChunkHeight: tune.ChunkHeight,
		}
	}

	folded, st, err := fold(base, *editsDir, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: files=%d entries=%s applied=%s skipped=%s ticks=%d..%d changes=%s\n",
		st.Files, humanize.Comma(int64(st.Entries)), humanize.Comma(int64(st.Applied)),
		humanize.Comma(int64(st.Skipped)), st.FirstTick, st.LastTick,
		humanize.Comma(int64(len(folded.Changes))))
	if st.FromMiss > 0 {
		fmt.Printf("warning: %d entries disagree with the folded state (missing or reordered logs?)\n", st.FromMiss)
	}

	if *outPath == "" {
		return
	}
	if err := snapshot.WriteSnapshot(*outPath, folded); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	if fi, err := os.Stat(*outPath); err == nil {
		fmt.Printf("wrote %s (%s)\n", filepath.Base(*outPath), humanize.Bytes(uint64(fi.Size())))
	}
}

// fold replays every edit log in editsDir that is not older than base.
func fold(base snapshot.ChangesV1, editsDir string, toTick uint64) (snapshot.ChangesV1, foldStats, error) {
	var st foldStats
	mem := store.NewMemory()
	if err := store.ImportChanges(mem, base.Changes); err != nil {
		return snapshot.ChangesV1{}, st, err
	}
	if editsDir != "" {
		files, err := persistlog.ListEditFiles(editsDir)
		if err != nil {
			return snapshot.ChangesV1{}, st, err
		}
		if err := foldEdits(mem, files, base.Header.Tick, toTick, &st); err != nil {
			return snapshot.ChangesV1{}, st, err
		}
	}

	out := base
	out.Header.Version = snapshot.Version
	if st.LastTick > out.Header.Tick {
		out.Header.Tick = st.LastTick
	}
	out.Changes = store.ExportChanges(mem)
	out.Header.Changes = len(out.Changes)
	return out, st, nil
}
