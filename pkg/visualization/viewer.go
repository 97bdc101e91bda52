// Package visualization renders loaded chunks to disk: JPEG slice sequences
// with point markers for review outside the interactive session, and numbered
// chunk exports pairing the image stack with its freshly placed points.
package visualization

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ptannotator3d/internal/models"
	"ptannotator3d/pkg/session"
	"ptannotator3d/pkg/volume"
)

// markRadius is the arm length of the cross drawn at each stored point.
const markRadius = 2

// SnapshotWriter writes each presented chunk as a sequence of axis-0 slice
// JPEGs with the chunk's stored points marked. It implements session.Bridge;
// since Present cannot return an error, the last write error is kept in Err.
type SnapshotWriter struct {
	// Dir receives the slice files (slice_z_000.jpg, ...). Each snapshot
	// overwrites the previous one.
	Dir string

	// Quality is the JPEG quality; 90 when zero.
	Quality int

	// Err holds the error from the most recent Present, nil on success.
	Err error
}

// Present implements session.Bridge.
func (w *SnapshotWriter) Present(view *session.ChunkView) {
	w.Err = w.WriteSnapshot(view)
}

// WriteSnapshot renders the view's chunk into Dir, one JPEG per axis-0 slice.
func (w *SnapshotWriter) WriteSnapshot(view *session.ChunkView) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return err
	}
	return writeSlices(w.Dir, view, w.quality())
}

func (w *SnapshotWriter) quality() int {
	if w.Quality <= 0 {
		return 90
	}
	return w.Quality
}

// writeSlices renders every axis-0 slice of the chunk with point markers.
func writeSlices(dir string, view *session.ChunkView, quality int) error {
	for z := 0; z < view.Chunk.Shape[0]; z++ {
		img := sliceImage(view.Chunk, z, view.Contrast)
		markPoints(img, view.StorePoints, z)

		filename := filepath.Join(dir, fmt.Sprintf("slice_z_%03d.jpg", z))
		if err := saveJPEG(img, filename, quality); err != nil {
			return err
		}
	}
	return nil
}

// sliceImage renders one axis-0 slice as 16-bit grayscale, scaling voxel
// intensities into [0, 65535] by the contrast pair.
func sliceImage(chunk *volume.Chunk, z int, contrast [2]float64) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, chunk.Shape[2], chunk.Shape[1]))
	low, high := contrast[0], contrast[1]
	scale := 0.0
	if high > low {
		scale = 65535 / (high - low)
	}
	for y := 0; y < chunk.Shape[1]; y++ {
		for x := 0; x < chunk.Shape[2]; x++ {
			v := (chunk.At(z, y, x) - low) * scale
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Max(0, math.Min(65535, v)))})
		}
	}
	return img
}

// markPoints draws a cross at every stored point whose axis-0 coordinate
// rounds to this slice.
func markPoints(img *image.Gray16, points []models.Record, z int) {
	for _, rec := range points {
		if int(math.Round(rec.Pos[0])) != z {
			continue
		}
		py := int(math.Round(rec.Pos[1]))
		px := int(math.Round(rec.Pos[2]))
		for d := -markRadius; d <= markRadius; d++ {
			setIfInside(img, px+d, py)
			setIfInside(img, px, py+d)
		}
	}
}

func setIfInside(img *image.Gray16, x, y int) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetGray16(x, y, color.Gray16{Y: 65535})
	}
}

func saveJPEG(img image.Image, filename string, quality int) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
}

// ExportChunk saves the current chunk for offline use: a numbered directory
// name_NNNN/ of slice JPEGs plus a name_NNNN.csv of the working-set points
// (chunk-local, header axis-0,axis-1,axis-2). Numbering continues from the
// highest existing export under dir. Returns the export's base path.
func ExportChunk(dir, name string, view *session.ChunkView, newPoints []models.Vec3) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	n, err := nextExportIndex(dir, name)
	if err != nil {
		return "", err
	}

	base := filepath.Join(dir, fmt.Sprintf("%s_%04d", name, n))
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", err
	}
	if err := writeSlices(base, view, 90); err != nil {
		return "", err
	}

	f, err := os.Create(base + ".csv")
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"axis-0", "axis-1", "axis-2"}); err != nil {
		return "", err
	}
	for _, p := range newPoints {
		row := make([]string, 3)
		for i, v := range p {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return base, nil
}

// nextExportIndex finds the highest name_NNNN already present and returns
// its successor, starting at 1 for an empty directory.
func nextExportIndex(dir, name string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	maxIdx := 0
	prefix := name + "_"
	for _, e := range entries {
		suffix, ok := strings.CutPrefix(strings.TrimSuffix(e.Name(), ".csv"), prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > maxIdx {
			maxIdx = n
		}
	}
	return maxIdx + 1, nil
}
