package store

import (
	"testing"

	snapv1 "voxelterrain.dev/internal/persistence/snapshot"
	"voxelterrain.dev/internal/sim/catalogs"
)

func TestExportAndImportChangesRoundTrip(t *testing.T) {
	s := NewMemory()
	_ = s.Set(Key{CX: 1, CZ: -2, X: 0, Y: 5, Z: 3}, 3)
	_ = s.Set(Key{CX: -1, CZ: 0, X: 15, Y: 0, Z: 15}, catalogs.Empty)

	exported := ExportChanges(s)
	if len(exported) != 2 {
		t.Fatalf("expected 2 exported changes, got %d", len(exported))
	}
	if exported[0].CX != -1 || exported[1].CX != 1 {
		t.Fatalf("export not in key order: %+v", exported)
	}

	imported := NewMemory()
	if err := ImportChanges(imported, exported); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	got, ok := imported.Get(Key{CX: 1, CZ: -2, X: 0, Y: 5, Z: 3})
	if !ok || got != 3 {
		t.Fatalf("unexpected imported block: %d ok=%v", got, ok)
	}
	got, ok = imported.Get(Key{CX: -1, CZ: 0, X: 15, Y: 0, Z: 15})
	if !ok || got != catalogs.Empty {
		t.Fatalf("removal entry lost: %d ok=%v", got, ok)
	}
}

func TestImportChangesRejectsInvalidShape(t *testing.T) {
	err := ImportChanges(NewMemory(), []snapv1.ChangeV1{{CX: 0, CZ: 0, X: -1, Y: 0, Z: 0, Block: 1}})
	if err == nil {
		t.Fatalf("expected error for negative local coordinate")
	}
}
