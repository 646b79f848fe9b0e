package mem

import (
	"encoding/binary"
	"fmt"
)

// Memif gives typed access to the target memory through a ChunkedMemory,
// using the byte order of the target.
type Memif struct {
	*ChunkedMemory

	order binary.ByteOrder
}

// NewMemif creates a typed memory interface. A nil order means little endian.
func NewMemif(m *ChunkedMemory, order binary.ByteOrder) *Memif {
	if order == nil {
		order = binary.LittleEndian
	}

	return &Memif{ChunkedMemory: m, order: order}
}

// ByteOrder returns the byte order of the target.
func (m *Memif) ByteOrder() binary.ByteOrder {
	return m.order
}

// ReadUint8 reads one byte.
func (m *Memif) ReadUint8(addr uint64) (uint8, error) {
	var buf [1]byte
	err := m.Read(addr, buf[:])

	return buf[0], err
}

// ReadUint16 reads a 16-bit word.
func (m *Memif) ReadUint16(addr uint64) (uint16, error) {
	var buf [2]byte
	err := m.Read(addr, buf[:])

	return m.order.Uint16(buf[:]), err
}

// ReadUint32 reads a 32-bit word.
func (m *Memif) ReadUint32(addr uint64) (uint32, error) {
	var buf [4]byte
	err := m.Read(addr, buf[:])

	return m.order.Uint32(buf[:]), err
}

// ReadUint64 reads a 64-bit word.
func (m *Memif) ReadUint64(addr uint64) (uint64, error) {
	var buf [8]byte
	err := m.Read(addr, buf[:])

	return m.order.Uint64(buf[:]), err
}

// WriteUint8 writes one byte.
func (m *Memif) WriteUint8(addr uint64, v uint8) error {
	return m.Write(addr, []byte{v})
}

// WriteUint16 writes a 16-bit word.
func (m *Memif) WriteUint16(addr uint64, v uint16) error {
	var buf [2]byte
	m.order.PutUint16(buf[:], v)

	return m.Write(addr, buf[:])
}

// WriteUint32 writes a 32-bit word.
func (m *Memif) WriteUint32(addr uint64, v uint32) error {
	var buf [4]byte
	m.order.PutUint32(buf[:], v)

	return m.Write(addr, buf[:])
}

// WriteUint64 writes a 64-bit word.
func (m *Memif) WriteUint64(addr uint64, v uint64) error {
	var buf [8]byte
	m.order.PutUint64(buf[:], v)

	return m.Write(addr, buf[:])
}

// ReadWord reads a word of the given size in bytes, which must be 4 or 8.
func (m *Memif) ReadWord(addr uint64, size int) (uint64, error) {
	switch size {
	case 4:
		v, err := m.ReadUint32(addr)
		return uint64(v), err
	case 8:
		return m.ReadUint64(addr)
	default:
		return 0, fmt.Errorf("unsupported word size %d", size)
	}
}

// WriteWord writes a word of the given size in bytes, which must be 4 or 8.
// Bits that do not fit are dropped.
func (m *Memif) WriteWord(addr uint64, size int, v uint64) error {
	switch size {
	case 4:
		return m.WriteUint32(addr, uint32(v))
	case 8:
		return m.WriteUint64(addr, v)
	default:
		return fmt.Errorf("unsupported word size %d", size)
	}
}

// ReadCString reads a NUL-terminated string of at most maxLen bytes,
// excluding the terminator. It never reads past the page that holds the
// terminator.
func (m *Memif) ReadCString(addr uint64, maxLen int) (string, error) {
	var out []byte

	for len(out) <= maxLen {
		curr := addr + uint64(len(out))
		n := min(PageSize-curr%PageSize, uint64(maxLen+1-len(out)))
		buf := make([]byte, n)

		if err := m.Read(curr, buf); err != nil {
			return "", err
		}

		for i, b := range buf {
			if b == 0 {
				return string(append(out, buf[:i]...)), nil
			}
		}

		out = append(out, buf...)
	}

	return "", fmt.Errorf("string at 0x%x is longer than %d bytes",
		addr, maxLen)
}
