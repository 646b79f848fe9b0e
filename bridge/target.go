package bridge

// A Target is the processor model the bridge drives.
type Target interface {
	// Reset puts the target into its reset state.
	Reset() error

	// Arm makes the target start at entry on the next quantum.
	Arm(entry uint64) error

	// Idle lets the target run one quantum.
	Idle() error
}

// A BootImage is a blob, such as a boot ROM with a device tree, that is
// installed before the payloads. The loader does not write over it again.
type BootImage interface {
	Base() uint64
	Bytes() []byte
}

// StaticBootImage is a BootImage held in memory.
type StaticBootImage struct {
	Addr uint64
	Data []byte
}

// Base returns the install address.
func (b StaticBootImage) Base() uint64 {
	return b.Addr
}

// Bytes returns the blob.
func (b StaticBootImage) Bytes() []byte {
	return b.Data
}
