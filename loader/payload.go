// Package loader installs payloads, executables or raw images, into target
// memory before the target runs.
package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// A Kind tells how a payload is laid out.
type Kind int

// The payload kinds.
const (
	KindRaw Kind = iota
	KindELF
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindELF:
		return "elf"
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

var elfMagic = []byte(elf.ELFMAG)

// DetectKind inspects the first bytes of a payload.
func DetectKind(header []byte) Kind {
	if bytes.HasPrefix(header, elfMagic) {
		return KindELF
	}

	return KindRaw
}

// SegmentFlags are the access rights of a segment.
type SegmentFlags uint32

// The segment flags.
const (
	SegmentFlagExecute SegmentFlags = 1 << iota
	SegmentFlagWrite
	SegmentFlagRead
)

// String prints the flags the way readelf does, for example "RW ".
func (f SegmentFlags) String() string {
	b := []byte("   ")

	if f&SegmentFlagRead != 0 {
		b[0] = 'R'
	}

	if f&SegmentFlagWrite != 0 {
		b[1] = 'W'
	}

	if f&SegmentFlagExecute != 0 {
		b[2] = 'E'
	}

	return string(b)
}

// A Segment is a contiguous piece of a payload.
type Segment struct {
	// Addr is where the segment goes in target memory.
	Addr uint64

	// Data holds the bytes backed by the file.
	Data []byte

	// MemSize is the size in memory. Bytes past Data are zero.
	MemSize uint64

	Flags SegmentFlags
}

// FileSize returns the number of bytes backed by the file.
func (s Segment) FileSize() uint64 {
	return uint64(len(s.Data))
}

// A Payload is a parsed program or image.
type Payload struct {
	Name     string
	Kind     Kind
	Entry    uint64
	Segments []Segment

	// WordSize and ByteOrder come from the ELF header. Raw images leave
	// them unset.
	WordSize  int
	ByteOrder binary.ByteOrder

	symbols map[string]uint64
}

// Symbol returns the value of a symbol.
func (p *Payload) Symbol(name string) (uint64, bool) {
	v, ok := p.symbols[name]
	return v, ok
}

// SymbolNames lists the symbols in name order.
func (p *Payload) SymbolNames() []string {
	names := make([]string, 0, len(p.symbols))
	for name := range p.symbols {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// NewRawPayload makes an image that is placed at addr as one segment. The
// entry is the load address.
func NewRawPayload(name string, data []byte, addr uint64) *Payload {
	return &Payload{
		Name:  name,
		Kind:  KindRaw,
		Entry: addr,
		Segments: []Segment{{
			Addr:    addr,
			Data:    data,
			MemSize: uint64(len(data)),
			Flags:   SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}
}

// ParseELF reads the loadable segments, the entry point and the symbols of
// an ELF file. Segments are placed at their physical addresses.
func ParseELF(name string, r io.ReaderAt) (*Payload, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, &LoadError{Payload: name, Segment: -1,
			Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	defer func() { _ = f.Close() }()

	p := &Payload{
		Name:      name,
		Kind:      KindELF,
		Entry:     f.Entry,
		ByteOrder: f.ByteOrder,
		symbols:   make(map[string]uint64),
	}

	switch f.Class {
	case elf.ELFCLASS32:
		p.WordSize = 4
	case elf.ELFCLASS64:
		p.WordSize = 8
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		seg, err := readSegment(prog)
		if err != nil {
			return nil, &LoadError{Payload: name, Segment: len(p.Segments), Err: err}
		}

		p.Segments = append(p.Segments, seg)
	}

	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, &LoadError{Payload: name, Segment: -1,
			Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	for _, sym := range syms {
		if sym.Name != "" {
			p.symbols[sym.Name] = sym.Value
		}
	}

	return p, nil
}

func readSegment(prog *elf.Prog) (Segment, error) {
	if prog.Filesz > prog.Memsz {
		return Segment{}, fmt.Errorf(
			"%w: file size 0x%x exceeds memory size 0x%x",
			ErrMalformed, prog.Filesz, prog.Memsz)
	}

	data := make([]byte, prog.Filesz)
	if prog.Filesz > 0 {
		n, err := prog.ReadAt(data, 0)
		if err != nil && err != io.EOF {
			return Segment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		if uint64(n) != prog.Filesz {
			return Segment{}, fmt.Errorf("%w: short segment, got %d of %d bytes",
				ErrMalformed, n, prog.Filesz)
		}
	}

	var flags SegmentFlags
	if prog.Flags&elf.PF_X != 0 {
		flags |= SegmentFlagExecute
	}

	if prog.Flags&elf.PF_W != 0 {
		flags |= SegmentFlagWrite
	}

	if prog.Flags&elf.PF_R != 0 {
		flags |= SegmentFlagRead
	}

	return Segment{
		Addr:    prog.Paddr,
		Data:    data,
		MemSize: prog.Memsz,
		Flags:   flags,
	}, nil
}

// Open reads a payload file. Files that are not ELF are raw images placed at
// rawAddr.
func Open(path string, rawAddr uint64) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Payload: path, Segment: -1, Err: err}
	}

	if DetectKind(data) == KindELF {
		return ParseELF(path, bytes.NewReader(data))
	}

	return NewRawPayload(path, data, rawAddr), nil
}
