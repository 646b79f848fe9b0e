package loader

import (
	"fmt"
	"log"
	"sort"

	"github.com/sarchlab/htif/mem"
)

// ZeroFill decides whether the bytes of a segment past its file data are
// cleared explicitly.
type ZeroFill int

const (
	// ZeroFillAlways clears the tail of every segment. It is correct for
	// memory whose initial content is unknown.
	ZeroFillAlways ZeroFill = iota

	// ZeroFillNever skips clearing. Use it only with memory that starts
	// zeroed.
	ZeroFillNever
)

func (z ZeroFill) String() string {
	switch z {
	case ZeroFillAlways:
		return "always"
	case ZeroFillNever:
		return "never"
	}

	return fmt.Sprintf("zerofill(%d)", int(z))
}

// ParseZeroFill parses "always" or "never".
func ParseZeroFill(s string) (ZeroFill, error) {
	switch s {
	case "always", "":
		return ZeroFillAlways, nil
	case "never":
		return ZeroFillNever, nil
	}

	return ZeroFillAlways, fmt.Errorf("unknown zero-fill policy %q", s)
}

// Stats counts what the loader did.
type Stats struct {
	BytesWritten uint64
	BytesCleared uint64
	BytesSkipped uint64
}

// A Loader writes payloads into target memory.
type Loader struct {
	memory   *mem.ChunkedMemory
	preload  PreloadChecker
	zeroFill ZeroFill
	stats    Stats
}

// Stats returns the counters.
func (l *Loader) Stats() Stats {
	return l.stats
}

// ZeroFill returns the zero-fill policy.
func (l *Loader) ZeroFill() ZeroFill {
	return l.zeroFill
}

// Load checks every segment of a payload and then writes them. Nothing is
// written when a check fails.
func (l *Loader) Load(p *Payload) error {
	if err := l.Validate(p); err != nil {
		return err
	}

	for i, seg := range p.Segments {
		if err := l.loadSegment(seg); err != nil {
			return &LoadError{Payload: p.Name, Segment: i, Err: err}
		}
	}

	return nil
}

// LoadAll loads the primary payload and then the secondary payloads in the
// given order. Later payloads may overlay earlier ones. The entry point of
// the primary payload is returned unless entry overrides it.
func (l *Loader) LoadAll(
	primary *Payload,
	secondary []*Payload,
	entry *uint64,
) (uint64, error) {
	if err := l.Load(primary); err != nil {
		return 0, err
	}

	for _, p := range secondary {
		if err := l.Load(p); err != nil {
			return 0, err
		}
	}

	if entry != nil {
		return *entry, nil
	}

	return primary.Entry, nil
}

// Validate checks that the segments of a payload fit in memory and do not
// overlap each other.
func (l *Loader) Validate(p *Payload) error {
	validator, canValidate := l.memory.Transport().(mem.RangeValidator)

	type extent struct {
		index      int
		start, end uint64
	}

	extents := make([]extent, 0, len(p.Segments))

	for i, seg := range p.Segments {
		if seg.FileSize() > seg.MemSize {
			return &LoadError{Payload: p.Name, Segment: i, Err: fmt.Errorf(
				"%w: file size 0x%x exceeds memory size 0x%x",
				ErrMalformed, seg.FileSize(), seg.MemSize)}
		}

		end := seg.Addr + seg.MemSize
		if end < seg.Addr {
			return &LoadError{Payload: p.Name, Segment: i, Err: fmt.Errorf(
				"%w: 0x%x + 0x%x", ErrOverflow, seg.Addr, seg.MemSize)}
		}

		if canValidate && seg.MemSize > 0 {
			if err := validator.Validate(seg.Addr, seg.MemSize); err != nil {
				return &LoadError{Payload: p.Name, Segment: i, Err: fmt.Errorf(
					"%w: [0x%x, 0x%x): %v", ErrOutsideMemory, seg.Addr, end, err)}
			}
		}

		if seg.MemSize > 0 {
			extents = append(extents, extent{index: i, start: seg.Addr, end: end})
		}
	}

	sort.Slice(extents, func(a, b int) bool {
		return extents[a].start < extents[b].start
	})

	for i := 1; i < len(extents); i++ {
		prev, cur := extents[i-1], extents[i]
		if cur.start < prev.end {
			return &LoadError{Payload: p.Name, Segment: cur.index, Err: fmt.Errorf(
				"%w: segment %d [0x%x, 0x%x) and segment %d [0x%x, 0x%x)",
				ErrSegmentOverlap, prev.index, prev.start, prev.end,
				cur.index, cur.start, cur.end)}
		}
	}

	return nil
}

func (l *Loader) loadSegment(seg Segment) error {
	fileSize := seg.FileSize()

	if l.preload.IsPreloaded(seg.Addr, fileSize) {
		l.stats.BytesSkipped += fileSize
	} else if fileSize > 0 {
		if err := l.memory.Write(seg.Addr, seg.Data); err != nil {
			return err
		}

		l.stats.BytesWritten += fileSize
	}

	if l.zeroFill == ZeroFillNever || seg.MemSize == fileSize {
		return nil
	}

	tailAddr, tailSize := seg.Addr+fileSize, seg.MemSize-fileSize
	if l.preload.IsPreloaded(tailAddr, tailSize) {
		l.stats.BytesSkipped += tailSize
		return nil
	}

	if err := l.memory.Clear(tailAddr, tailSize); err != nil {
		return err
	}

	l.stats.BytesCleared += tailSize

	return nil
}

// A Builder creates loaders.
type Builder struct {
	memory   *mem.ChunkedMemory
	preload  PreloadChecker
	zeroFill ZeroFill
}

// MakeBuilder returns a builder that clears segment tails.
func MakeBuilder() Builder {
	return Builder{zeroFill: ZeroFillAlways}
}

// WithMemory sets the memory the payloads go to.
func (b Builder) WithMemory(m *mem.ChunkedMemory) Builder {
	b.memory = m
	return b
}

// WithPreloadChecker sets what the loader asks before writing a range.
func (b Builder) WithPreloadChecker(c PreloadChecker) Builder {
	b.preload = c
	return b
}

// WithZeroFill sets the zero-fill policy.
func (b Builder) WithZeroFill(z ZeroFill) Builder {
	b.zeroFill = z
	return b
}

// Build creates a loader.
func (b Builder) Build() *Loader {
	if b.memory == nil {
		log.Panic("loader needs a memory")
	}

	preload := b.preload
	if preload == nil {
		preload = nothingPreloaded{}
	}

	return &Loader{
		memory:   b.memory,
		preload:  preload,
		zeroFill: b.zeroFill,
	}
}
