package volume

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"ptannotator3d/internal/models"
)

// ZarrVolume reads a zarr v2 directory store: a `.zarray` JSON metadata
// document next to per-chunk binary files named by their chunk-grid indices.
// Supported arrays are C-order, 3-dimensional (Z/Y/X) or 4-dimensional with a
// leading channel/timepoint axis, with zlib, gzip, or no compression.
//
// Only the chunk files intersecting a requested region are opened, so reads
// stay proportional to the region size rather than the image size.
type ZarrVolume struct {
	path string
	meta arrayMeta
	dt   dtype
	sep  string
	ndim int
	fill float64
}

// arrayMeta mirrors the fields of the `.zarray` metadata document.
type arrayMeta struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	Dtype              string          `json:"dtype"`
	Compressor         *compressorMeta `json:"compressor"`
	FillValue          json.RawMessage `json:"fill_value"`
	Order              string          `json:"order"`
	DimensionSeparator string          `json:"dimension_separator"`
}

type compressorMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// OpenZarr opens a zarr directory store rooted at path.
func OpenZarr(path string) (*ZarrVolume, error) {
	raw, err := os.ReadFile(filepath.Join(path, ".zarray"))
	if err != nil {
		return nil, &AccessError{Path: path, Msg: "cannot read .zarray metadata", Err: err}
	}

	v := &ZarrVolume{path: path}
	if err := json.Unmarshal(raw, &v.meta); err != nil {
		return nil, &AccessError{Path: path, Msg: "malformed .zarray metadata", Err: err}
	}

	v.ndim = len(v.meta.Shape)
	if v.ndim != 3 && v.ndim != 4 {
		return nil, &AccessError{Path: path, Msg: fmt.Sprintf("unsupported dimensionality %d (want 3, or 4 with a leading channel axis)", v.ndim)}
	}
	if len(v.meta.Chunks) != v.ndim {
		return nil, &AccessError{Path: path, Msg: "chunk shape rank does not match array rank"}
	}
	for i, c := range v.meta.Chunks {
		if c <= 0 || v.meta.Shape[i] <= 0 {
			return nil, &AccessError{Path: path, Msg: fmt.Sprintf("non-positive extent on axis %d", i)}
		}
	}
	if v.meta.Order != "" && v.meta.Order != "C" {
		return nil, &AccessError{Path: path, Msg: fmt.Sprintf("unsupported array order %q (only C order)", v.meta.Order)}
	}
	if v.meta.Compressor != nil {
		switch v.meta.Compressor.ID {
		case "zlib", "gzip":
		default:
			return nil, &AccessError{Path: path, Msg: fmt.Sprintf("unsupported compressor %q", v.meta.Compressor.ID)}
		}
	}

	if v.dt, err = parseDtype(v.meta.Dtype); err != nil {
		return nil, &AccessError{Path: path, Msg: "unsupported dtype", Err: err}
	}
	if v.fill, err = parseFillValue(v.meta.FillValue); err != nil {
		return nil, &AccessError{Path: path, Msg: "bad fill_value", Err: err}
	}

	v.sep = v.meta.DimensionSeparator
	if v.sep == "" {
		v.sep = "."
	}
	return v, nil
}

// Shape returns the spatial extents, excluding any leading channel axis.
func (v *ZarrVolume) Shape() models.IVec3 {
	s := v.meta.Shape[v.ndim-3:]
	return models.IVec3{s[0], s[1], s[2]}
}

// Channels returns the channel axis extent (1 for 3D arrays).
func (v *ZarrVolume) Channels() int {
	if v.ndim == 4 {
		return v.meta.Shape[0]
	}
	return 1
}

// DtypeName returns the Go-facing name of the native dtype, e.g. "uint16".
func (v *ZarrVolume) DtypeName() string { return v.dt.name }

// ReadRegion reads the sub-volume at the given origin and shape for the given
// channel, clipped to the array extents. Chunk files absent from the store
// yield the array's fill value.
func (v *ZarrVolume) ReadRegion(channel int, origin, shape models.IVec3) (*Chunk, error) {
	if err := checkChannel(v.path, channel, v.Channels()); err != nil {
		return nil, err
	}
	clipped, err := clipRegion(v.Shape(), origin, shape)
	if err != nil {
		return nil, err
	}

	// Full-rank request: prepend the channel axis for 4D arrays.
	o := make([]int, v.ndim)
	s := make([]int, v.ndim)
	if v.ndim == 4 {
		o[0], s[0] = channel, 1
	}
	for i := 0; i < 3; i++ {
		o[v.ndim-3+i] = origin[i]
		s[v.ndim-3+i] = clipped[i]
	}

	out := make([]float64, clipped.Prod())
	if v.fill != 0 {
		for i := range out {
			out[i] = v.fill
		}
	}

	lo := make([]int, v.ndim)
	hi := make([]int, v.ndim)
	for i := 0; i < v.ndim; i++ {
		lo[i] = o[i] / v.meta.Chunks[i]
		hi[i] = (o[i] + s[i] - 1) / v.meta.Chunks[i]
	}

	idx := append([]int(nil), lo...)
	for {
		data, err := v.loadChunk(idx)
		if err != nil {
			return nil, err
		}
		if data != nil {
			v.copyOverlap(data, idx, o, s, out)
		}

		d := v.ndim - 1
		for d >= 0 {
			idx[d]++
			if idx[d] <= hi[d] {
				break
			}
			idx[d] = lo[d]
			d--
		}
		if d < 0 {
			break
		}
	}

	return &Chunk{Origin: origin, Shape: clipped, Dtype: v.dt.name, Data: out}, nil
}

// chunkFile maps chunk-grid indices to the chunk's path in the store,
// honoring the dimension separator ("." flat names or "/" nested dirs).
func (v *ZarrVolume) chunkFile(idx []int) string {
	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = strconv.Itoa(n)
	}
	if v.sep == "/" {
		return filepath.Join(append([]string{v.path}, parts...)...)
	}
	return filepath.Join(v.path, strings.Join(parts, v.sep))
}

// loadChunk reads and decodes one chunk file. A missing file is not an error:
// it returns nil, meaning the chunk holds only the fill value.
func (v *ZarrVolume) loadChunk(idx []int) ([]float64, error) {
	name := v.chunkFile(idx)
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &AccessError{Path: name, Msg: "cannot open chunk", Err: err}
	}
	defer f.Close()

	var r io.Reader = f
	if v.meta.Compressor != nil {
		switch v.meta.Compressor.ID {
		case "zlib":
			zr, err := zlib.NewReader(f)
			if err != nil {
				return nil, &AccessError{Path: name, Msg: "zlib chunk corrupt", Err: err}
			}
			defer zr.Close()
			r = zr
		case "gzip":
			gr, err := gzip.NewReader(f)
			if err != nil {
				return nil, &AccessError{Path: name, Msg: "gzip chunk corrupt", Err: err}
			}
			defer gr.Close()
			r = gr
		}
	}

	n := 1
	for _, c := range v.meta.Chunks {
		n *= c
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &AccessError{Path: name, Msg: "cannot read chunk", Err: err}
	}
	if len(raw) < n*v.dt.size {
		return nil, &AccessError{Path: name, Msg: fmt.Sprintf("chunk truncated: %d bytes, want %d", len(raw), n*v.dt.size)}
	}
	return v.dt.decode(raw, n), nil
}

// copyOverlap copies the voxels where chunk idx intersects the request
// [o, o+s) into out, row by row along the fastest axis.
func (v *ZarrVolume) copyOverlap(chunk []float64, idx, o, s []int, out []float64) {
	n := v.ndim
	beg := make([]int, n)
	end := make([]int, n)
	for i := 0; i < n; i++ {
		cs := idx[i] * v.meta.Chunks[i]
		beg[i] = max(o[i], cs)
		end[i] = min(o[i]+s[i], cs+v.meta.Chunks[i])
		if beg[i] >= end[i] {
			return
		}
	}

	chunkStride := rowMajorStrides(v.meta.Chunks)
	outStride := rowMajorStrides(s)
	rowLen := end[n-1] - beg[n-1]

	pos := append([]int(nil), beg...)
	for {
		srcOff, dstOff := 0, 0
		for i := 0; i < n; i++ {
			srcOff += (pos[i] - idx[i]*v.meta.Chunks[i]) * chunkStride[i]
			dstOff += (pos[i] - o[i]) * outStride[i]
		}
		copy(out[dstOff:dstOff+rowLen], chunk[srcOff:srcOff+rowLen])

		d := n - 2
		for d >= 0 {
			pos[d]++
			if pos[d] < end[d] {
				break
			}
			pos[d] = beg[d]
			d--
		}
		if d < 0 {
			break
		}
	}
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// dtype describes a parsed numpy-style dtype string from `.zarray`.
type dtype struct {
	name  string
	size  int
	kind  byte // 'u', 'i', or 'f'
	order binary.ByteOrder
}

// parseDtype parses the numeric subset of numpy dtype strings used by image
// stores, e.g. "|u1", "<u2", ">f4".
func parseDtype(s string) (dtype, error) {
	if len(s) != 3 {
		return dtype{}, fmt.Errorf("dtype %q: want 3 characters like \"<u2\"", s)
	}

	var dt dtype
	switch s[0] {
	case '<', '|':
		dt.order = binary.LittleEndian
	case '>':
		dt.order = binary.BigEndian
	default:
		return dtype{}, fmt.Errorf("dtype %q: unknown byte order %q", s, s[0])
	}

	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dtype{}, fmt.Errorf("dtype %q: bad byte size: %w", s, err)
	}
	dt.size = size
	dt.kind = s[1]

	switch s[1] {
	case 'u':
		switch size {
		case 1, 2, 4, 8:
			dt.name = fmt.Sprintf("uint%d", size*8)
		default:
			return dtype{}, fmt.Errorf("dtype %q: unsupported unsigned size %d", s, size)
		}
	case 'i':
		switch size {
		case 1, 2, 4, 8:
			dt.name = fmt.Sprintf("int%d", size*8)
		default:
			return dtype{}, fmt.Errorf("dtype %q: unsupported signed size %d", s, size)
		}
	case 'f':
		switch size {
		case 4, 8:
			dt.name = fmt.Sprintf("float%d", size*8)
		default:
			return dtype{}, fmt.Errorf("dtype %q: unsupported float size %d", s, size)
		}
	default:
		return dtype{}, fmt.Errorf("dtype %q: unsupported basic type %q", s, s[1])
	}
	return dt, nil
}

// decode widens n raw values to float64.
func (dt dtype) decode(raw []byte, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		b := raw[i*dt.size : (i+1)*dt.size]
		switch dt.kind {
		case 'u':
			switch dt.size {
			case 1:
				out[i] = float64(b[0])
			case 2:
				out[i] = float64(dt.order.Uint16(b))
			case 4:
				out[i] = float64(dt.order.Uint32(b))
			case 8:
				out[i] = float64(dt.order.Uint64(b))
			}
		case 'i':
			switch dt.size {
			case 1:
				out[i] = float64(int8(b[0]))
			case 2:
				out[i] = float64(int16(dt.order.Uint16(b)))
			case 4:
				out[i] = float64(int32(dt.order.Uint32(b)))
			case 8:
				out[i] = float64(int64(dt.order.Uint64(b)))
			}
		case 'f':
			switch dt.size {
			case 4:
				out[i] = float64(math.Float32frombits(dt.order.Uint32(b)))
			case 8:
				out[i] = math.Float64frombits(dt.order.Uint64(b))
			}
		}
	}
	return out
}

// parseFillValue interprets the `.zarray` fill_value field: absent or null
// means zero, numbers are taken as-is, and the JSON-unrepresentable floats
// arrive as the strings "NaN", "Infinity", and "-Infinity".
func parseFillValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("fill_value %s is neither number nor string", raw)
	}
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return 0, fmt.Errorf("unrecognized fill_value %q", s)
}
