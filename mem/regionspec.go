package mem

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// A RegionSpec describes the extent of a region before it is created.
type RegionSpec struct {
	Base uint64
	Size uint64
}

// End returns the address right after the last byte of the region.
func (s RegionSpec) End() uint64 {
	return s.Base + s.Size
}

// ParseRegions parses a memory specification. The specification is either a
// single number, which is the size of one region at DRAMBase in MiB, or a
// comma-separated list of base:size pairs. Every region is grown to page
// boundaries; a warning is printed to stderr when that happens.
func ParseRegions(spec string) ([]RegionSpec, error) {
	return parseRegions(spec, os.Stderr)
}

func parseRegions(spec string, warn io.Writer) ([]RegionSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty memory specification")
	}

	if !strings.ContainsAny(spec, ":,") {
		mib, err := strconv.ParseUint(spec, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid memory size %q: %w", spec, err)
		}

		size := mib << 20
		if size>>20 != mib {
			return nil, fmt.Errorf("memory size %d MiB would overflow", mib)
		}

		return []RegionSpec{{Base: DRAMBase, Size: size}}, nil
	}

	var specs []RegionSpec

	for _, pair := range strings.Split(spec, ",") {
		s, err := parseRegionPair(pair, warn)
		if err != nil {
			return nil, err
		}

		for _, prev := range specs {
			if s.Base < prev.End() && prev.Base < s.End() {
				return nil, fmt.Errorf("%w: [0x%x, 0x%x) and [0x%x, 0x%x)",
					ErrRegionOverlap, s.Base, s.End(), prev.Base, prev.End())
			}
		}

		specs = append(specs, s)
	}

	return specs, nil
}

func parseRegionPair(pair string, warn io.Writer) (RegionSpec, error) {
	fields := strings.Split(strings.TrimSpace(pair), ":")
	if len(fields) != 2 {
		return RegionSpec{}, fmt.Errorf(
			"invalid memory region %q, expecting base:size", pair)
	}

	base, err := strconv.ParseUint(fields[0], 0, 64)
	if err != nil {
		return RegionSpec{}, fmt.Errorf("invalid region base %q: %w",
			fields[0], err)
	}

	size, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return RegionSpec{}, fmt.Errorf("invalid region size %q: %w",
			fields[1], err)
	}

	if size == 0 {
		return RegionSpec{}, fmt.Errorf("region at 0x%x has zero size", base)
	}

	if base+size < base {
		return RegionSpec{}, fmt.Errorf(
			"%w: region at 0x%x with size 0x%x wraps around",
			ErrOutOfRange, base, size)
	}

	alignedBase := base - base%PageSize
	alignedSize := size + base%PageSize

	if alignedSize%PageSize != 0 {
		alignedSize += PageSize - alignedSize%PageSize
	}

	if alignedSize < size || alignedBase+alignedSize < alignedBase {
		return RegionSpec{}, fmt.Errorf(
			"%w: region at 0x%x with size 0x%x wraps around after alignment",
			ErrOutOfRange, base, size)
	}

	if alignedSize != size {
		fmt.Fprintf(warn,
			"Warning: the memory at [0x%X, 0x%X] has been realigned\n"+
				"to the %d KiB page size: [0x%X, 0x%X]\n",
			base, base+size-1, PageSize/KB,
			alignedBase, alignedBase+alignedSize-1)
	}

	return RegionSpec{Base: alignedBase, Size: alignedSize}, nil
}

// BuildAddressSpace creates an address space that has one region per spec.
func BuildAddressSpace(specs []RegionSpec) (*AddressSpace, error) {
	s := NewAddressSpace()

	for _, spec := range specs {
		if _, err := s.AddRegion(spec.Base, spec.Size); err != nil {
			return nil, err
		}
	}

	return s, nil
}
