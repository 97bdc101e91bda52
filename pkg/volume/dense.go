package volume

import (
	"fmt"

	"ptannotator3d/internal/models"
)

// Dense is an in-memory volume with an optional leading channel axis. It is
// the small-image path and the test double for out-of-core stores; region
// reads follow the same clipping policy as every other Volume.
type Dense struct {
	shape    models.IVec3
	channels int
	dtype    string
	data     []float64
}

// NewDense creates an in-memory volume. data is in C order with the channel
// axis slowest (len must equal channels * shape.Prod()); pass nil to allocate
// a zero-filled volume.
func NewDense(shape models.IVec3, channels int, data []float64) (*Dense, error) {
	if channels < 1 {
		channels = 1
	}
	for i := 0; i < 3; i++ {
		if shape[i] <= 0 {
			return nil, fmt.Errorf("dense volume shape axis %d must be positive, got %d", i, shape[i])
		}
	}
	n := channels * shape.Prod()
	if data == nil {
		data = make([]float64, n)
	} else if len(data) != n {
		return nil, fmt.Errorf("dense volume data length %d does not match %d channels x %v", len(data), channels, shape)
	}
	return &Dense{shape: shape, channels: channels, dtype: "float64", data: data}, nil
}

// Shape returns the spatial extents.
func (d *Dense) Shape() models.IVec3 { return d.shape }

// Channels returns the channel axis extent (1 when absent).
func (d *Dense) Channels() int { return d.channels }

// DtypeName returns the native dtype name.
func (d *Dense) DtypeName() string { return d.dtype }

// Set writes the voxel at (channel, z, y, x).
func (d *Dense) Set(channel, z, y, x int, v float64) {
	d.data[((channel*d.shape[0]+z)*d.shape[1]+y)*d.shape[2]+x] = v
}

// At reads the voxel at (channel, z, y, x).
func (d *Dense) At(channel, z, y, x int) float64 {
	return d.data[((channel*d.shape[0]+z)*d.shape[1]+y)*d.shape[2]+x]
}

// ReadRegion returns the sub-volume at the given origin and shape, clipped to
// the volume extents.
func (d *Dense) ReadRegion(channel int, origin, shape models.IVec3) (*Chunk, error) {
	if err := checkChannel("<memory>", channel, d.channels); err != nil {
		return nil, err
	}
	if d.channels == 1 {
		channel = 0
	}
	clipped, err := clipRegion(d.shape, origin, shape)
	if err != nil {
		return nil, err
	}

	out := make([]float64, clipped.Prod())
	for z := 0; z < clipped[0]; z++ {
		for y := 0; y < clipped[1]; y++ {
			src := ((channel*d.shape[0]+origin[0]+z)*d.shape[1]+origin[1]+y)*d.shape[2] + origin[2]
			dst := (z*clipped[1] + y) * clipped[2]
			copy(out[dst:dst+clipped[2]], d.data[src:src+clipped[2]])
		}
	}
	return &Chunk{Origin: origin, Shape: clipped, Dtype: d.dtype, Data: out}, nil
}
