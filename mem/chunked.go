package mem

import (
	"fmt"
)

// ChunkedMemory provides byte-granular access to the target memory on top of
// a transport that can only move aligned, bounded chunks. Partial chunks at
// either end of a write are read first so that the bytes outside the written
// range are preserved.
type ChunkedMemory struct {
	transport ChunkTransport
	geometry  ChunkGeometry
	zeros     []byte
}

// NewChunkedMemory creates a chunked memory interface over the transport.
func NewChunkedMemory(transport ChunkTransport) (*ChunkedMemory, error) {
	geometry := transport.Geometry()
	if err := geometry.Validate(); err != nil {
		return nil, err
	}

	m := &ChunkedMemory{
		transport: transport,
		geometry:  geometry,
		zeros:     make([]byte, geometry.MaxChunk),
	}

	return m, nil
}

// Geometry returns the chunk contract of the underlying transport.
func (m *ChunkedMemory) Geometry() ChunkGeometry {
	return m.geometry
}

// Transport returns the underlying transport.
func (m *ChunkedMemory) Transport() ChunkTransport {
	return m.transport
}

type chunkSpan struct {
	start, end uint64
}

// span splits the aligned cover of [addr, addr+size) into chunks.
func (m *ChunkedMemory) span(addr, size uint64) ([]chunkSpan, error) {
	end := addr + size
	if end < addr {
		return nil, fmt.Errorf("%w: [0x%x, +0x%x) wraps around",
			ErrOutOfRange, addr, size)
	}

	if v, ok := m.transport.(RangeValidator); ok {
		if err := v.Validate(addr, size); err != nil {
			return nil, err
		}
	}

	alignedStart := m.geometry.AlignDown(addr)
	alignedEnd, ok := m.geometry.AlignUp(end)
	if !ok {
		return nil, fmt.Errorf("%w: [0x%x, +0x%x) cannot be aligned",
			ErrOutOfRange, addr, size)
	}

	spans := make([]chunkSpan, 0,
		(alignedEnd-alignedStart+m.geometry.MaxChunk-1)/m.geometry.MaxChunk)
	for s := alignedStart; s < alignedEnd; {
		e := alignedEnd
		if e-s > m.geometry.MaxChunk {
			e = s + m.geometry.MaxChunk
		}

		spans = append(spans, chunkSpan{start: s, end: e})
		s = e
	}

	return spans, nil
}

// Read fills dst with the bytes starting at addr. Zero-length reads do not
// touch the transport.
func (m *ChunkedMemory) Read(addr uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}

	size := uint64(len(dst))

	spans, err := m.span(addr, size)
	if err != nil {
		return err
	}

	var buf []byte

	for _, c := range spans {
		if c.start >= addr && c.end <= addr+size {
			err = m.transport.ReadChunk(c.start,
				dst[c.start-addr:c.end-addr])
			if err != nil {
				return err
			}

			continue
		}

		buf = m.chunkBuf(buf, c)
		if err = m.transport.ReadChunk(c.start, buf); err != nil {
			return err
		}

		lo, hi := overlap(c, addr, size)
		copy(dst[lo-addr:hi-addr], buf[lo-c.start:hi-c.start])
	}

	return nil
}

// Write stores src starting at addr. Zero-length writes do not touch the
// transport.
func (m *ChunkedMemory) Write(addr uint64, src []byte) error {
	if len(src) == 0 {
		return nil
	}

	return m.write(addr, uint64(len(src)), func(lo, hi uint64) []byte {
		return src[lo-addr : hi-addr]
	})
}

// Clear sets [addr, addr+size) to zero. Chunks that are fully covered are
// written without being read.
func (m *ChunkedMemory) Clear(addr, size uint64) error {
	if size == 0 {
		return nil
	}

	return m.write(addr, size, func(lo, hi uint64) []byte {
		return m.zeros[:hi-lo]
	})
}

func (m *ChunkedMemory) write(
	addr, size uint64,
	bytesOf func(lo, hi uint64) []byte,
) error {
	spans, err := m.span(addr, size)
	if err != nil {
		return err
	}

	var buf []byte

	for _, c := range spans {
		if c.start >= addr && c.end <= addr+size {
			err = m.transport.WriteChunk(c.start, bytesOf(c.start, c.end))
			if err != nil {
				return err
			}

			continue
		}

		buf = m.chunkBuf(buf, c)
		if err = m.transport.ReadChunk(c.start, buf); err != nil {
			return err
		}

		lo, hi := overlap(c, addr, size)
		copy(buf[lo-c.start:hi-c.start], bytesOf(lo, hi))

		if err = m.transport.WriteChunk(c.start, buf); err != nil {
			return err
		}
	}

	return nil
}

func (m *ChunkedMemory) chunkBuf(buf []byte, c chunkSpan) []byte {
	n := c.end - c.start
	if uint64(cap(buf)) < n {
		return make([]byte, n)
	}

	return buf[:n]
}

func overlap(c chunkSpan, addr, size uint64) (lo, hi uint64) {
	lo = max(c.start, addr)
	hi = min(c.end, addr+size)

	return lo, hi
}
