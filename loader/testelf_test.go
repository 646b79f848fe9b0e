package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

type testSegment struct {
	paddr   uint64
	data    []byte
	memSize uint64
	flags   elf.ProgFlag
}

type testSymbol struct {
	name  string
	value uint64
}

// buildELF writes a little-endian ELF64 RISC-V executable with the given
// loadable segments and, optionally, a symbol table.
func buildELF(entry uint64, segs []testSegment, syms []testSymbol) []byte {
	le := binary.LittleEndian
	const (
		ehSize = 64
		phSize = 56
		shSize = 64
		symSz  = 24
	)

	var body bytes.Buffer

	dataStart := uint64(ehSize + phSize*len(segs))
	offsets := make([]uint64, len(segs))

	for i, s := range segs {
		offsets[i] = dataStart + uint64(body.Len())
		body.Write(s.data)
	}

	var shdrs []byte

	shnum, shstrndx := 0, 0

	if len(syms) > 0 {
		strtab := []byte{0}
		symtab := make([]byte, symSz)

		for _, sym := range syms {
			entryBuf := make([]byte, symSz)
			le.PutUint32(entryBuf[0:], uint32(len(strtab)))
			entryBuf[4] = byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_OBJECT)
			le.PutUint16(entryBuf[6:], uint16(elf.SHN_ABS))
			le.PutUint64(entryBuf[8:], sym.value)
			symtab = append(symtab, entryBuf...)
			strtab = append(strtab, sym.name...)
			strtab = append(strtab, 0)
		}

		shstrtab := []byte("\x00.strtab\x00.symtab\x00.shstrtab\x00")

		strOff := dataStart + uint64(body.Len())
		body.Write(strtab)
		symOff := dataStart + uint64(body.Len())
		body.Write(symtab)
		shstrOff := dataStart + uint64(body.Len())
		body.Write(shstrtab)

		section := func(name uint32, typ elf.SectionType, off, size uint64,
			link uint32, entSize uint64) []byte {
			b := make([]byte, shSize)
			le.PutUint32(b[0:], name)
			le.PutUint32(b[4:], uint32(typ))
			le.PutUint64(b[24:], off)
			le.PutUint64(b[32:], size)
			le.PutUint32(b[40:], link)
			le.PutUint64(b[48:], 1)
			le.PutUint64(b[56:], entSize)

			return b
		}

		shdrs = append(shdrs, make([]byte, shSize)...)
		shdrs = append(shdrs, section(1, elf.SHT_STRTAB, strOff,
			uint64(len(strtab)), 0, 0)...)
		shdrs = append(shdrs, section(9, elf.SHT_SYMTAB, symOff,
			uint64(len(symtab)), 1, symSz)...)
		shdrs = append(shdrs, section(17, elf.SHT_STRTAB, shstrOff,
			uint64(len(shstrtab)), 0, 0)...)
		shnum, shstrndx = 4, 3
	}

	shoff := uint64(0)
	if shnum > 0 {
		for (dataStart+uint64(body.Len()))%8 != 0 {
			body.WriteByte(0)
		}

		shoff = dataStart + uint64(body.Len())
	}

	hdr := make([]byte, ehSize)
	copy(hdr, elf.ELFMAG)
	hdr[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(hdr[16:], uint16(elf.ET_EXEC))
	le.PutUint16(hdr[18:], uint16(elf.EM_RISCV))
	le.PutUint32(hdr[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(hdr[24:], entry)
	le.PutUint64(hdr[32:], ehSize)
	le.PutUint64(hdr[40:], shoff)
	le.PutUint16(hdr[52:], ehSize)
	le.PutUint16(hdr[54:], phSize)
	le.PutUint16(hdr[56:], uint16(len(segs)))
	le.PutUint16(hdr[58:], shSize)
	le.PutUint16(hdr[60:], uint16(shnum))
	le.PutUint16(hdr[62:], uint16(shstrndx))

	var out bytes.Buffer
	out.Write(hdr)

	for i, s := range segs {
		ph := make([]byte, phSize)
		le.PutUint32(ph[0:], uint32(elf.PT_LOAD))
		le.PutUint32(ph[4:], uint32(s.flags))
		le.PutUint64(ph[8:], offsets[i])
		le.PutUint64(ph[16:], s.paddr)
		le.PutUint64(ph[24:], s.paddr)
		le.PutUint64(ph[32:], uint64(len(s.data)))
		le.PutUint64(ph[40:], s.memSize)
		le.PutUint64(ph[48:], 8)
		out.Write(ph)
	}

	out.Write(body.Bytes())
	out.Write(shdrs)

	return out.Bytes()
}
