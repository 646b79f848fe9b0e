package mem

import (
	"fmt"
	"sort"
)

// ChunkGeometry describes the blocks that a transport can move. Every chunk
// starts at a multiple of Alignment and is at most MaxChunk bytes long.
type ChunkGeometry struct {
	Alignment uint64
	MaxChunk  uint64
}

// DefaultChunkGeometry is used when a transport does not say otherwise.
var DefaultChunkGeometry = ChunkGeometry{Alignment: 8, MaxChunk: 1024}

// Validate checks that the alignment is a power of two and that the maximum
// chunk size is a non-zero multiple of it.
func (g ChunkGeometry) Validate() error {
	if g.Alignment == 0 || g.Alignment&(g.Alignment-1) != 0 {
		return fmt.Errorf("%w: alignment %d is not a power of two",
			ErrInvalidGeometry, g.Alignment)
	}

	if g.MaxChunk < g.Alignment || g.MaxChunk%g.Alignment != 0 {
		return fmt.Errorf("%w: max chunk %d is not a multiple of alignment %d",
			ErrInvalidGeometry, g.MaxChunk, g.Alignment)
	}

	return nil
}

// AlignDown rounds addr down to the alignment.
func (g ChunkGeometry) AlignDown(addr uint64) uint64 {
	return addr &^ (g.Alignment - 1)
}

// AlignUp rounds addr up to the alignment. The second return value is false
// if the result does not fit in 64 bits.
func (g ChunkGeometry) AlignUp(addr uint64) (uint64, bool) {
	aligned := (addr + g.Alignment - 1) &^ (g.Alignment - 1)
	if aligned < addr {
		return 0, false
	}

	return aligned, true
}

// A ChunkTransport moves aligned, bounded chunks between the host and the
// target memory.
type ChunkTransport interface {
	// Geometry returns the chunk contract of the transport.
	Geometry() ChunkGeometry

	// ReadChunk fills dst with the chunk at addr.
	ReadChunk(addr uint64, dst []byte) error

	// WriteChunk stores src as the chunk at addr.
	WriteChunk(addr uint64, src []byte) error
}

// A RangeValidator can tell if a range of addresses is backed by memory.
// Transports that implement it let out-of-range requests be rejected before
// any chunk is moved.
type RangeValidator interface {
	Validate(addr, size uint64) error
}

// AddressSpaceTransport moves chunks in and out of an in-process address
// space while enforcing a chunk geometry.
type AddressSpaceTransport struct {
	space    *AddressSpace
	geometry ChunkGeometry
}

// NewAddressSpaceTransport creates a transport over the address space.
func NewAddressSpaceTransport(
	space *AddressSpace,
	geometry ChunkGeometry,
) (*AddressSpaceTransport, error) {
	if err := geometry.Validate(); err != nil {
		return nil, err
	}

	return &AddressSpaceTransport{space: space, geometry: geometry}, nil
}

// Geometry returns the chunk contract of the transport.
func (t *AddressSpaceTransport) Geometry() ChunkGeometry {
	return t.geometry
}

// Space returns the underlying address space.
func (t *AddressSpaceTransport) Space() *AddressSpace {
	return t.space
}

// Validate checks that the range is backed by one region.
func (t *AddressSpaceTransport) Validate(addr, size uint64) error {
	return t.space.Validate(addr, size)
}

// ReadChunk fills dst with the chunk at addr. Bytes of the chunk that no
// region backs read as zero, so regions need not be chunk aligned.
func (t *AddressSpaceTransport) ReadChunk(addr uint64, dst []byte) error {
	if err := t.mustBeChunk(addr, len(dst)); err != nil {
		return err
	}

	clear(dst)

	return t.eachBacked(addr, len(dst), func(r *Region, lo, hi uint64) error {
		return r.Read(lo, dst[lo-addr:hi-addr])
	})
}

// WriteChunk stores src as the chunk at addr. Bytes of the chunk that no
// region backs are dropped.
func (t *AddressSpaceTransport) WriteChunk(addr uint64, src []byte) error {
	if err := t.mustBeChunk(addr, len(src)); err != nil {
		return err
	}

	return t.eachBacked(addr, len(src), func(r *Region, lo, hi uint64) error {
		return r.Write(lo, src[lo-addr:hi-addr])
	})
}

// eachBacked calls f with every part of [addr, addr+size) that a region
// backs. A chunk that no region touches is out of range.
func (t *AddressSpaceTransport) eachBacked(
	addr uint64,
	size int,
	f func(r *Region, lo, hi uint64) error,
) error {
	end := addr + uint64(size)
	regions := t.space.Regions()
	i := sort.Search(len(regions), func(i int) bool {
		return regions[i].End() > addr
	})

	backed := false

	for ; i < len(regions) && regions[i].Base() < end; i++ {
		r := regions[i]
		if err := f(r, max(addr, r.Base()), min(end, r.End())); err != nil {
			return err
		}

		backed = true
	}

	if !backed {
		return fmt.Errorf("%w: chunk [0x%x, 0x%x) is not backed by any region",
			ErrOutOfRange, addr, end)
	}

	return nil
}

func (t *AddressSpaceTransport) mustBeChunk(addr uint64, size int) error {
	if addr%t.geometry.Alignment != 0 {
		return fmt.Errorf("%w: 0x%x is not a multiple of %d",
			ErrMisalignedChunk, addr, t.geometry.Alignment)
	}

	if uint64(size) > t.geometry.MaxChunk {
		return fmt.Errorf("%w: %d > %d",
			ErrChunkTooLarge, size, t.geometry.MaxChunk)
	}

	return nil
}
