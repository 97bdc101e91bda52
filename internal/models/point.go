package models

import "fmt"

// Axis order follows the annotation table convention: axis-0, axis-1, axis-2
// correspond to Z, Y, X of the volume.

// Vec3 is a point coordinate in either the global (full image) or the
// chunk-local frame, depending on context.
type Vec3 [3]float64

// Add returns the component-wise sum of v and the integer offset o.
// Used to translate a chunk-local point to the global frame.
func (v Vec3) Add(o IVec3) Vec3 {
	return Vec3{v[0] + float64(o[0]), v[1] + float64(o[1]), v[2] + float64(o[2])}
}

// Sub returns the component-wise difference of v and the integer offset o.
// Used to translate a global point to the chunk-local frame.
func (v Vec3) Sub(o IVec3) Vec3 {
	return Vec3{v[0] - float64(o[0]), v[1] - float64(o[1]), v[2] - float64(o[2])}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g,%g,%g)", v[0], v[1], v[2])
}

// IVec3 is an integer triple used for chunk origins, shapes, and volume extents.
type IVec3 [3]int

// Prod returns the number of voxels spanned by an extent.
func (p IVec3) Prod() int {
	return p[0] * p[1] * p[2]
}

// Add returns the component-wise sum of two integer triples.
func (p IVec3) Add(q IVec3) IVec3 {
	return IVec3{p[0] + q[0], p[1] + q[1], p[2] + q[2]}
}

func (p IVec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}
