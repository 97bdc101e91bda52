package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"ptannotator3d/internal/models"
)

// boxHeader is the header of the chunk-outline side log. The format matches
// a shapes table: one "path" shape per committed chunk, 17 vertices tracing
// the edges of the chunk's bounding box.
var boxHeader = []string{"index", "shape-type", "vertex-index", "axis-0", "axis-1", "axis-2"}

// boxPath walks every edge of a unit cube and returns to each face so the
// outline renders as a single connected path.
var boxPath = [17]models.IVec3{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}, {0, 0, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}, {0, 0, 1},
	{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {1, 1, 1}, {1, 1, 0},
	{0, 1, 0}, {0, 1, 1},
}

// BoxLog records the outline of every committed chunk in a CSV next to the
// annotation table, so reviewed regions can be overlaid later.
type BoxLog struct {
	path string
}

// NewBoxLog returns a handle on the outline log at path.
func NewBoxLog(path string) *BoxLog {
	return &BoxLog{path: path}
}

// BoxLogPathFor derives the conventional outline-log path from an annotation
// table path: table.csv -> table_bboxes.csv.
func BoxLogPathFor(storePath string) string {
	return strings.TrimSuffix(storePath, ".csv") + "_bboxes.csv"
}

// Path returns the log's file path.
func (b *BoxLog) Path() string { return b.path }

// Append records the outline of one chunk. Shape indices continue from the
// last recorded shape; the file is created with a header when absent. Like
// Store.Append, a failed write truncates back so no partial row remains.
func (b *BoxLog) Append(desc models.ChunkDescriptor) error {
	next, err := b.nextIndex()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(b.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return &WriteError{Path: b.path, Err: err}
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return &WriteError{Path: b.path, Err: err}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if offset == 0 {
		if err := w.Write(boxHeader); err != nil {
			return &WriteError{Path: b.path, Err: err}
		}
	}
	for e, unit := range boxPath {
		vertex := models.IVec3{
			desc.Origin[0] + unit[0]*desc.Shape[0],
			desc.Origin[1] + unit[1]*desc.Shape[1],
			desc.Origin[2] + unit[2]*desc.Shape[2],
		}
		row := []string{
			strconv.Itoa(next), "path", strconv.Itoa(e),
			strconv.Itoa(vertex[0]), strconv.Itoa(vertex[1]), strconv.Itoa(vertex[2]),
		}
		if err := w.Write(row); err != nil {
			return &WriteError{Path: b.path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &WriteError{Path: b.path, Err: err}
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		if terr := f.Truncate(offset); terr != nil {
			err = errors.Join(err, fmt.Errorf("rollback truncate failed: %w", terr))
		}
		return &WriteError{Path: b.path, Err: err}
	}
	return nil
}

// nextIndex reads the last recorded shape index and returns its successor,
// or zero for an empty or missing log.
func (b *BoxLog) nextIndex() (int, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &WriteError{Path: b.path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	last := -1
	first := true
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, &WriteError{Path: b.path, Err: err}
		}
		if first {
			first = false
			continue
		}
		if len(fields) > 0 {
			if n, err := strconv.Atoi(fields[0]); err == nil {
				last = n
			}
		}
	}
	return last + 1, nil
}
