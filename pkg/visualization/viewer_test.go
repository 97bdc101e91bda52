package visualization

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ptannotator3d/internal/models"
	"ptannotator3d/pkg/session"
	"ptannotator3d/pkg/volume"
)

func testView(t *testing.T, shape models.IVec3) *session.ChunkView {
	t.Helper()
	data := make([]float64, shape.Prod())
	for i := range data {
		data[i] = float64(i)
	}
	return &session.ChunkView{
		Desc:     models.ChunkDescriptor{Origin: models.IVec3{0, 0, 0}, Shape: shape},
		Chunk:    &volume.Chunk{Shape: shape, Data: data},
		Contrast: [2]float64{0, float64(len(data) - 1)},
	}
}

// TestWriteSnapshot verifies one JPEG per axis-0 slice is written
func TestWriteSnapshot(t *testing.T) {
	dir := t.TempDir()
	w := &SnapshotWriter{Dir: dir}

	view := testView(t, models.IVec3{4, 8, 8})
	view.StorePoints = []models.Record{{Pos: models.Vec3{1, 3, 3}}}

	if err := w.WriteSnapshot(view); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 slice files, got %d", len(entries))
	}
	if entries[0].Name() != "slice_z_000.jpg" {
		t.Errorf("First slice named %q", entries[0].Name())
	}
	info, err := entries[0].Info()
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("Slice file is empty")
	}
}

// TestPresentRecordsError verifies the bridge surface keeps the last error
func TestPresentRecordsError(t *testing.T) {
	w := &SnapshotWriter{Dir: filepath.Join(t.TempDir(), "out")}
	view := testView(t, models.IVec3{2, 4, 4})

	w.Present(view)
	if w.Err != nil {
		t.Fatalf("Present: %v", w.Err)
	}

	// A directory path that collides with a file must fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	w.Dir = blocked
	w.Present(view)
	if w.Err == nil {
		t.Error("Expected Present to record an error")
	}
}

// TestExportChunk verifies the numbered directory plus CSV layout
func TestExportChunk(t *testing.T) {
	dir := t.TempDir()
	view := testView(t, models.IVec3{2, 4, 4})
	points := []models.Vec3{{0.5, 1.5, 2.5}, {1, 2, 3}}

	base, err := ExportChunk(dir, "chunk", view, points)
	if err != nil {
		t.Fatalf("ExportChunk: %v", err)
	}
	if filepath.Base(base) != "chunk_0001" {
		t.Errorf("First export base = %q", filepath.Base(base))
	}

	slices, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if len(slices) != 2 {
		t.Errorf("Expected 2 slices in export, got %d", len(slices))
	}

	data, err := os.ReadFile(base + ".csv")
	if err != nil {
		t.Fatalf("Reading export CSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "axis-0,axis-1,axis-2" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if lines[1] != "0.5,1.5,2.5" {
		t.Errorf("Unexpected row %q", lines[1])
	}
}

// TestExportChunkNumbering verifies numbering continues across exports
func TestExportChunkNumbering(t *testing.T) {
	dir := t.TempDir()
	view := testView(t, models.IVec3{1, 2, 2})

	for i := 1; i <= 3; i++ {
		base, err := ExportChunk(dir, "chunk", view, nil)
		if err != nil {
			t.Fatalf("Export %d: %v", i, err)
		}
		want := fmt.Sprintf("chunk_%04d", i)
		if filepath.Base(base) != want {
			t.Errorf("Export %d base = %q, want %q", i, filepath.Base(base), want)
		}
	}

	// A gap left by hand still continues from the highest index.
	if err := os.MkdirAll(filepath.Join(dir, "chunk_0009"), 0755); err != nil {
		t.Fatal(err)
	}
	base, err := ExportChunk(dir, "chunk", view, nil)
	if err != nil {
		t.Fatalf("ExportChunk: %v", err)
	}
	if filepath.Base(base) != "chunk_0010" {
		t.Errorf("Export after gap = %q", filepath.Base(base))
	}
}
