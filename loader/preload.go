package loader

// A PreloadChecker tells whether a range already holds its final content,
// for example because the boot image installer placed it there.
type PreloadChecker interface {
	IsPreloaded(addr, size uint64) bool
}

// A Range is a half-open address range.
type Range struct {
	Addr uint64
	Size uint64
}

// End returns the first address past the range.
func (r Range) End() uint64 {
	return r.Addr + r.Size
}

// Contains tells whether [addr, addr+size) lies inside the range.
func (r Range) Contains(addr, size uint64) bool {
	end := addr + size
	if end < addr {
		return false
	}

	return addr >= r.Addr && end <= r.End()
}

// PreloadedRanges is a PreloadChecker over a list of ranges. A range counts
// as preloaded only when one entry covers all of it.
type PreloadedRanges []Range

// IsPreloaded implements PreloadChecker.
func (rs PreloadedRanges) IsPreloaded(addr, size uint64) bool {
	if size == 0 {
		return false
	}

	for _, r := range rs {
		if r.Contains(addr, size) {
			return true
		}
	}

	return false
}

// nothingPreloaded is used when no checker is configured.
type nothingPreloaded struct{}

func (nothingPreloaded) IsPreloaded(uint64, uint64) bool {
	return false
}
