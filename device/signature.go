package device

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sarchlab/htif/mem"
)

// SignatureCmdSetRange reads a {begin, end} pair of 64-bit words at the
// payload address and makes it the signature range.
const SignatureCmdSetRange = 0

// DefaultSignatureGranularity is the number of bytes per signature line.
const DefaultSignatureGranularity = 16

// SignatureDevice lets the target announce the memory range that holds its
// test signature. The bridge dumps the range when the run ends.
type SignatureDevice struct {
	name       string
	memif      *mem.Memif
	begin, end uint64
	valid      bool
}

// NewSignatureDevice creates a signature device.
func NewSignatureDevice(name string, memif *mem.Memif) *SignatureDevice {
	return &SignatureDevice{name: name, memif: memif}
}

// Name returns the identity of the device.
func (d *SignatureDevice) Name() string {
	return d.name
}

// Handle services a signature command.
func (d *SignatureDevice) Handle(cmd Command) (Response, error) {
	if cmd.Cmd != SignatureCmdSetRange {
		return NoResponse, nil
	}

	begin, err := d.memif.ReadUint64(cmd.Payload)
	if err != nil {
		return NoResponse, fmt.Errorf("signature %s: %w", d.name, err)
	}

	end, err := d.memif.ReadUint64(cmd.Payload + 8)
	if err != nil {
		return NoResponse, fmt.Errorf("signature %s: %w", d.name, err)
	}

	if end < begin {
		return Respond(0), nil
	}

	d.SetRange(begin, end)

	return Respond(1), nil
}

// SetRange sets the signature range.
func (d *SignatureDevice) SetRange(begin, end uint64) {
	d.begin, d.end, d.valid = begin, end, true
}

// Range returns the signature range, if one was set.
func (d *SignatureDevice) Range() (begin, end uint64, ok bool) {
	return d.begin, d.end, d.valid
}

// WriteSignature dumps [begin, end) of target memory as hex lines of
// granularity bytes each, the most significant byte first. The last line is
// padded with zeros.
func WriteSignature(
	w io.Writer,
	memif *mem.Memif,
	begin, end uint64,
	granularity int,
) error {
	if end < begin {
		return fmt.Errorf("invalid signature range [0x%x, 0x%x)", begin, end)
	}

	if granularity <= 0 {
		granularity = DefaultSignatureGranularity
	}

	buf := make([]byte, end-begin)
	if err := memif.Read(begin, buf); err != nil {
		return fmt.Errorf("reading signature: %w", err)
	}

	bw := bufio.NewWriter(w)
	for i := 0; i < len(buf); i += granularity {
		for j := granularity; j > 0; j-- {
			var b byte
			if i+j-1 < len(buf) {
				b = buf[i+j-1]
			}

			fmt.Fprintf(bw, "%02x", b)
		}

		bw.WriteByte('\n')
	}

	return bw.Flush()
}
