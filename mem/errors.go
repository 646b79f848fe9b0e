package mem

import "errors"

var (
	// ErrOutOfRange is returned when an access does not fall entirely in one
	// region of the address space.
	ErrOutOfRange = errors.New("address out of range")

	// ErrRegionOverlap is returned when adding a region that overlaps an
	// existing one.
	ErrRegionOverlap = errors.New("region overlaps an existing region")

	// ErrMisalignedChunk is returned by a transport when a chunk does not
	// start on the alignment boundary.
	ErrMisalignedChunk = errors.New("chunk is not aligned")

	// ErrChunkTooLarge is returned by a transport when a chunk is longer than
	// the maximum chunk size.
	ErrChunkTooLarge = errors.New("chunk exceeds maximum size")

	// ErrInvalidGeometry is returned when a chunk geometry cannot be used.
	ErrInvalidGeometry = errors.New("invalid chunk geometry")
)
