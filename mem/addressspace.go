package mem

import (
	"fmt"
	"sort"
)

// An AddressSpace is the target physical memory, made of disjoint regions.
// It moves raw bytes and makes no alignment assumption.
type AddressSpace struct {
	regions []*Region
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{}
}

// AddRegion creates a region of the given extent. Regions are kept sorted by
// base address.
func (s *AddressSpace) AddRegion(base, size uint64) (*Region, error) {
	if size == 0 {
		return nil, fmt.Errorf("region at 0x%x has zero size", base)
	}

	if base+size < base {
		return nil, fmt.Errorf("%w: region at 0x%x with size 0x%x wraps around",
			ErrOutOfRange, base, size)
	}

	for _, r := range s.regions {
		if base < r.End() && r.Base() < base+size {
			return nil, fmt.Errorf("%w: [0x%x, 0x%x) and [0x%x, 0x%x)",
				ErrRegionOverlap, base, base+size, r.Base(), r.End())
		}
	}

	region := NewRegion(base, size)
	s.regions = append(s.regions, region)
	sort.Slice(s.regions, func(i, j int) bool {
		return s.regions[i].Base() < s.regions[j].Base()
	})

	return region, nil
}

// Regions returns the regions ordered by base address.
func (s *AddressSpace) Regions() []*Region {
	return s.regions
}

// Find returns the region that holds the given address, or nil.
func (s *AddressSpace) Find(addr uint64) *Region {
	i := sort.Search(len(s.regions), func(i int) bool {
		return s.regions[i].End() > addr
	})

	if i == len(s.regions) || s.regions[i].Base() > addr {
		return nil
	}

	return s.regions[i]
}

// Contains checks if [addr, addr+size) falls entirely in one region.
func (s *AddressSpace) Contains(addr, size uint64) bool {
	r := s.Find(addr)
	if r == nil {
		return false
	}

	return r.Contains(addr, size)
}

// Validate returns an ErrOutOfRange error if [addr, addr+size) does not fall
// entirely in one region.
func (s *AddressSpace) Validate(addr, size uint64) error {
	if addr+size < addr {
		return fmt.Errorf("%w: [0x%x, +0x%x) wraps around",
			ErrOutOfRange, addr, size)
	}

	if !s.Contains(addr, size) {
		return fmt.Errorf("%w: [0x%x, 0x%x) is not backed by a single region",
			ErrOutOfRange, addr, addr+size)
	}

	return nil
}

// Read fills dst with the bytes starting at addr.
func (s *AddressSpace) Read(addr uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}

	if err := s.Validate(addr, uint64(len(dst))); err != nil {
		return err
	}

	return s.Find(addr).Read(addr, dst)
}

// Write stores src starting at addr.
func (s *AddressSpace) Write(addr uint64, src []byte) error {
	if len(src) == 0 {
		return nil
	}

	if err := s.Validate(addr, uint64(len(src))); err != nil {
		return err
	}

	return s.Find(addr).Write(addr, src)
}
