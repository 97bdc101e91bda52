package models

// Record represents one annotated point location as stored in the annotation
// table. Pos is in the global frame on disk; helpers in pkg/store translate it
// to the chunk-local frame for display.
type Record struct {
	// Index is the row index from the table's first column.
	Index int

	// Pos is the point coordinate in axis-0/axis-1/axis-2 order.
	Pos Vec3

	// Extra holds any passthrough columns beyond the coordinate columns,
	// preserved verbatim on read and written back as-is.
	Extra []string
}

// ChunkDescriptor describes the currently loaded viewing window into the
// full volume. It carries no identity beyond the current session: each
// navigation event supersedes the previous descriptor.
type ChunkDescriptor struct {
	// Origin is the offset of the chunk's first voxel in the full image.
	Origin IVec3

	// Shape is the requested chunk extent along each axis. The accessor may
	// return a smaller sub-volume when the chunk touches the image boundary.
	Shape IVec3

	// Channel selects the leading channel/timepoint axis when the image has
	// one; ignored otherwise.
	Channel int

	// CoChannel selects a second channel displayed for colocalisation.
	// Ignored when equal to Channel or when the image has no channel axis.
	CoChannel int
}
