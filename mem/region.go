package mem

import (
	"fmt"
)

// A Region keeps the data of one contiguous range of the target physical
// memory.
//
// The region manages its backing in units. The unit is similar to the concept
// of page in memory management. For the units that are not touched by Write,
// no memory is allocated, and reading them returns zeros.
type Region struct {
	base     uint64
	size     uint64
	unitSize uint64
	data     map[uint64][]byte
}

// NewRegion creates a region that covers [base, base+size).
func NewRegion(base, size uint64) *Region {
	r := new(Region)

	r.base = base
	r.size = size
	r.unitSize = PageSize
	r.data = make(map[uint64][]byte)

	return r
}

// Base returns the first address of the region.
func (r *Region) Base() uint64 {
	return r.base
}

// Size returns the number of bytes the region covers.
func (r *Region) Size() uint64 {
	return r.size
}

// End returns the address right after the last byte of the region.
func (r *Region) End() uint64 {
	return r.base + r.size
}

// Contains checks if [addr, addr+size) falls entirely in the region.
func (r *Region) Contains(addr, size uint64) bool {
	if addr < r.base {
		return false
	}

	offset := addr - r.base
	if offset > r.size {
		return false
	}

	return size <= r.size-offset
}

// NumAllocatedUnits returns how many backing units have been touched.
func (r *Region) NumAllocatedUnits() int {
	return len(r.data)
}

func (r *Region) getUnit(offset uint64, create bool) []byte {
	baseOffset, _ := r.parseOffset(offset)

	unit, ok := r.data[baseOffset]
	if !ok && create {
		unit = make([]byte, r.unitSize)
		r.data[baseOffset] = unit
	}

	return unit
}

func (r *Region) parseOffset(offset uint64) (baseOffset, inUnitOffset uint64) {
	inUnitOffset = offset % r.unitSize
	baseOffset = offset - inUnitOffset

	return
}

func (r *Region) mustContain(addr, size uint64) error {
	if !r.Contains(addr, size) {
		return fmt.Errorf("%w: [0x%x, +0x%x) is not in region [0x%x, 0x%x)",
			ErrOutOfRange, addr, size, r.base, r.End())
	}

	return nil
}

// Read fills dst with the bytes starting at addr.
func (r *Region) Read(addr uint64, dst []byte) error {
	lenLeft := uint64(len(dst))
	if err := r.mustContain(addr, lenLeft); err != nil {
		return err
	}

	currOffset := addr - r.base
	dataOffset := uint64(0)

	for lenLeft > 0 {
		baseOffset, inUnitOffset := r.parseOffset(currOffset)
		lenLeftInUnit := baseOffset + r.unitSize - currOffset
		lenToRead := min(lenLeft, lenLeftInUnit)

		unit := r.getUnit(currOffset, false)
		if unit == nil {
			clear(dst[dataOffset : dataOffset+lenToRead])
		} else {
			copy(dst[dataOffset:dataOffset+lenToRead],
				unit[inUnitOffset:inUnitOffset+lenToRead])
		}

		lenLeft -= lenToRead
		dataOffset += lenToRead
		currOffset += lenToRead
	}

	return nil
}

// Write stores data starting at addr.
func (r *Region) Write(addr uint64, data []byte) error {
	if err := r.mustContain(addr, uint64(len(data))); err != nil {
		return err
	}

	currOffset := addr - r.base
	dataOffset := uint64(0)

	for dataOffset < uint64(len(data)) {
		unit := r.getUnit(currOffset, true)

		baseOffset, inUnitOffset := r.parseOffset(currOffset)
		lenLeftInData := uint64(len(data)) - dataOffset
		lenLeftInUnit := baseOffset + r.unitSize - currOffset
		lenToWrite := min(lenLeftInData, lenLeftInUnit)

		copy(unit[inUnitOffset:inUnitOffset+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])
		dataOffset += lenToWrite
		currOffset += lenToWrite
	}

	return nil
}
