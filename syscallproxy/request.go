package syscallproxy

import (
	"fmt"

	"github.com/sarchlab/htif/mem"
)

// RequestWords is the number of 64-bit words in a request: the call number
// followed by the arguments. The result overwrites the first word.
const RequestWords = 8

// NumArgs is the number of arguments of a request.
const NumArgs = RequestWords - 1

// A Request is a syscall request read from target memory.
type Request struct {
	// Addr is the magic value of the request: the target address of the
	// request block, carried in the to-host payload. The result is written
	// back there.
	Addr   uint64
	Number uint64
	Args   [NumArgs]uint64

	wordSize int
}

// ReadRequest reads a request at addr. Arguments are narrowed to the target
// word size.
func ReadRequest(memif *mem.Memif, addr uint64, wordSize int) (Request, error) {
	buf := make([]byte, RequestWords*8)
	if err := memif.Read(addr, buf); err != nil {
		return Request{}, fmt.Errorf("syscall request at 0x%x: %w", addr, err)
	}

	req := Request{Addr: addr, wordSize: wordSize}
	order := memif.ByteOrder()

	req.Number = narrow(order.Uint64(buf), wordSize)
	for i := range req.Args {
		req.Args[i] = narrow(order.Uint64(buf[(i+1)*8:]), wordSize)
	}

	return req, nil
}

// Uint returns an argument as an unsigned target word.
func (r Request) Uint(i int) uint64 {
	return r.Args[i]
}

// Int returns an argument as a signed target word.
func (r Request) Int(i int) int64 {
	if r.wordSize == 4 {
		return int64(int32(uint32(r.Args[i])))
	}

	return int64(r.Args[i])
}

// Pointer returns an argument as a target address.
func (r Request) Pointer(i int) uint64 {
	return r.Args[i]
}

func narrow(v uint64, wordSize int) uint64 {
	if wordSize == 4 {
		return v & 0xffffffff
	}

	return v
}

// widen turns a result into the 64-bit word written back to the target.
// Negative results are sign-extended from the target word size.
func widen(result int64, wordSize int) uint64 {
	if wordSize == 4 {
		return uint64(int64(int32(result)))
	}

	return uint64(result)
}
