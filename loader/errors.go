package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for payloads that cannot be parsed.
	ErrMalformed = errors.New("malformed payload")

	// ErrOutsideMemory is returned for segments that are not inside one
	// memory region.
	ErrOutsideMemory = errors.New("segment outside target memory")

	// ErrOverflow is returned when a segment extent does not fit in 64
	// bits.
	ErrOverflow = errors.New("segment extent overflows")

	// ErrSegmentOverlap is returned when two segments of one payload
	// overlap.
	ErrSegmentOverlap = errors.New("segments overlap")
)

// A LoadError reports why a payload was not loaded. No byte of the payload
// was written when it is returned.
type LoadError struct {
	Payload string

	// Segment is the index of the offending segment, or -1.
	Segment int

	Err error
}

func (e *LoadError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("load %s: %v", e.Payload, e.Err)
	}

	return fmt.Sprintf("load %s, segment %d: %v", e.Payload, e.Segment, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
