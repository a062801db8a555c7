package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", FileName(42))

	in := ChangesV1{
		Header:      Header{WorldID: "w1", Tick: 42},
		Seed:        7,
		ChunkWidth:  16,
		ChunkHeight: 32,
		Changes: []ChangeV1{
			{CX: -1, CZ: 0, X: 15, Y: 3, Z: 0, Block: 0},
			{CX: 2, CZ: -3, X: 1, Y: 31, Z: 9, Block: 4},
		},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Header.Version != Version || out.Header.Changes != 2 || out.Header.WorldID != "w1" {
		t.Fatalf("unexpected header: %+v", out.Header)
	}
	if out.Seed != 7 || out.ChunkWidth != 16 || out.ChunkHeight != 32 {
		t.Fatalf("unexpected params: %+v", out)
	}
	if len(out.Changes) != 2 || out.Changes[0] != in.Changes[0] || out.Changes[1] != in.Changes[1] {
		t.Fatalf("changes mismatch: %+v", out.Changes)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Tick != 42 || h.Changes != 2 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}
