// Package volume provides random-access chunked reads from large volumetric
// images. A Volume reports its extents and numeric dtype and serves arbitrary
// rectangular sub-regions; implementations cover an in-memory array (Dense)
// and an on-disk zarr directory store (ZarrVolume) for out-of-core images.
//
// Boundary policy: region reads CLIP. The returned sub-volume is the
// intersection of [origin, origin+shape) with the image extents, so chunks
// touching the image boundary are legitimately smaller than requested.
// Coordinate translation downstream relies on the returned Chunk.Origin,
// which is never moved by clipping.
package volume

import (
	"fmt"

	"ptannotator3d/internal/models"
)

// Volume is the read-only interface required of an image resource: report
// shape and dtype, and read an arbitrary rectangular sub-region. Reads are
// pure and perform no caching.
type Volume interface {
	// Shape returns the spatial extents in axis-0/axis-1/axis-2 order,
	// excluding any leading channel axis.
	Shape() models.IVec3

	// Channels returns the extent of the leading channel/timepoint axis,
	// or 1 when the image has none.
	Channels() int

	// DtypeName returns the native numeric dtype of the image, e.g. "uint16".
	DtypeName() string

	// ReadRegion reads the sub-volume at the given origin and shape for the
	// given channel. The channel argument is ignored when Channels() == 1.
	ReadRegion(channel int, origin, shape models.IVec3) (*Chunk, error)
}

// Chunk is a dense sub-volume read from an image. Data is in C order
// (axis-0 slowest) with len(Data) == Shape.Prod(). Voxel values are widened
// to float64 regardless of the image's native dtype; Dtype records the
// native type for round-tripping and display.
type Chunk struct {
	Origin models.IVec3
	Shape  models.IVec3
	Dtype  string
	Data   []float64
}

// At returns the voxel at chunk-local coordinates (z, y, x).
func (c *Chunk) At(z, y, x int) float64 {
	return c.Data[(z*c.Shape[1]+y)*c.Shape[2]+x]
}

// NumVoxels returns the number of voxels in the chunk.
func (c *Chunk) NumVoxels() int {
	return c.Shape.Prod()
}

// AccessError indicates the image resource could not be opened or read:
// unreadable path, unsupported format, or a channel index out of range.
type AccessError struct {
	Path string
	Msg  string
	Err  error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("volume %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("volume %s: %s", e.Path, e.Msg)
}

func (e *AccessError) Unwrap() error { return e.Err }

// BoundsError indicates a region request that is invalid even under the
// clipping policy: a negative origin component, an origin at or past the
// image extent, or a non-positive shape component.
type BoundsError struct {
	Origin models.IVec3
	Shape  models.IVec3
	Msg    string
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("region origin %v shape %v: %s", e.Origin, e.Shape, e.Msg)
}

// clipRegion validates a region request against the given extents and returns
// the clipped shape. The origin is kept as requested; only the shape shrinks.
func clipRegion(extent, origin, shape models.IVec3) (models.IVec3, error) {
	clipped := shape
	for i := 0; i < 3; i++ {
		if shape[i] <= 0 {
			return models.IVec3{}, &BoundsError{origin, shape, fmt.Sprintf("shape axis %d must be positive", i)}
		}
		if origin[i] < 0 {
			return models.IVec3{}, &BoundsError{origin, shape, fmt.Sprintf("origin axis %d is negative", i)}
		}
		if origin[i] >= extent[i] {
			return models.IVec3{}, &BoundsError{origin, shape, fmt.Sprintf("origin axis %d is outside extent %d", i, extent[i])}
		}
		if origin[i]+shape[i] > extent[i] {
			clipped[i] = extent[i] - origin[i]
		}
	}
	return clipped, nil
}

// checkChannel validates a channel index against the channel axis extent.
func checkChannel(path string, channel, channels int) error {
	if channels <= 1 {
		return nil
	}
	if channel < 0 || channel >= channels {
		return &AccessError{Path: path, Msg: fmt.Sprintf("channel %d out of range [0,%d)", channel, channels)}
	}
	return nil
}
