// Package store reads and writes the point annotation table: a shared CSV
// file with one row per annotated location, columns
// index,axis-0,axis-1,axis-2 plus any passthrough columns.
//
// The file is an append-only log owned by the file itself: other tools may
// edit it between reads, so callers re-read rather than cache. Appends are
// all-or-nothing per call but deliberately not idempotent; appending the same
// records twice duplicates them, and deduplication is left to external tools.
package store

import (
	"bufio"
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

// header columns for a freshly created table.
var header = []string{"index", "axis-0", "axis-1", "axis-2"}

// Store is a handle on one annotation table file. It holds no cached rows;
// every ReadAll hits the file.
type Store struct {
	path string
}

// NewStore returns a handle for the table at path. The file need not exist
// yet; it is created with a header row on first append.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the table's file path.
func (s *Store) Path() string { return s.path }

// Dim returns the number of coordinate columns per row.
func (s *Store) Dim() int { return 3 }

// ReadError indicates the table file exists but is malformed: a wrong column
// count or a non-numeric coordinate value.
type ReadError struct {
	Path string
	Row  int
	Msg  string
	Err  error
}

func (e *ReadError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("store %s row %d: %s", e.Path, e.Row, e.Msg)
	}
	return fmt.Sprintf("store %s: %s", e.Path, e.Msg)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError indicates an append failed. The table is left exactly as it was
// before the call.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store %s: append failed: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadAll returns every record in file order. A file that does not exist yet
// yields an empty sequence and no error. Reads never mutate the file.
func (s *Store) ReadAll() ([]models.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &ReadError{Path: s.path, Msg: "cannot open", Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // column count validated per row below

	head, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, &ReadError{Path: s.path, Msg: "cannot read header", Err: err}
	}
	if len(head) < 1+s.Dim() {
		return nil, &ReadError{Path: s.path, Msg: fmt.Sprintf("header has %d columns, want at least %d", len(head), 1+s.Dim())}
	}

	var records []models.Record
	for row := 2; ; row++ {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ReadError{Path: s.path, Row: row, Msg: "cannot parse row", Err: err}
		}
		if len(fields) < 1+s.Dim() {
			return nil, &ReadError{Path: s.path, Row: row, Msg: fmt.Sprintf("row has %d columns, want at least %d", len(fields), 1+s.Dim())}
		}

		rec := models.Record{}
		if rec.Index, err = strconv.Atoi(strings.TrimSpace(fields[0])); err != nil {
			return nil, &ReadError{Path: s.path, Row: row, Msg: fmt.Sprintf("bad index %q", fields[0]), Err: err}
		}
		for i := 0; i < s.Dim(); i++ {
			if rec.Pos[i], err = strconv.ParseFloat(strings.TrimSpace(fields[1+i]), 64); err != nil {
				return nil, &ReadError{Path: s.path, Row: row, Msg: fmt.Sprintf("bad axis-%d value %q", i, fields[1+i]), Err: err}
			}
		}
		if len(fields) > 1+s.Dim() {
			rec.Extra = append([]string(nil), fields[1+s.Dim():]...)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Append writes the given records to the end of the table, creating the file
// with a header row if it does not exist. Row indices continue from the
// current row count; the Index field on the inputs is ignored.
//
// The append is all-or-nothing: the rows are staged into a single buffer and
// the file is truncated back to its pre-call size if the write fails, so no
// partial row is ever left behind.
func (s *Store) Append(records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	next, err := s.countRows()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if offset == 0 {
		if err := w.Write(header); err != nil {
			return &WriteError{Path: s.path, Err: err}
		}
	}
	for i, rec := range records {
		fields := make([]string, 0, 1+s.Dim()+len(rec.Extra))
		fields = append(fields, strconv.Itoa(next+i))
		for _, v := range rec.Pos {
			fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
		}
		fields = append(fields, rec.Extra...)
		if err := w.Write(fields); err != nil {
			return &WriteError{Path: s.path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		// Roll back so the table never holds a half-written row.
		if terr := f.Truncate(offset); terr != nil {
			err = errors.Join(err, fmt.Errorf("rollback truncate failed: %w", terr))
		}
		return &WriteError{Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	return nil
}

// countRows returns the number of data rows currently in the table. A missing
// file counts as zero.
func (s *Store) countRows() (int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &WriteError{Path: s.path, Err: err}
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, &WriteError{Path: s.path, Err: err}
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil // minus header
}
