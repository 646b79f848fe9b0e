package device

import "github.com/sarchlab/htif/mem"

// A RegistryBuilder creates registries.
type RegistryBuilder struct {
	encoding Encoding
	memif    *mem.Memif
}

// MakeRegistryBuilder returns a builder with the packed encoding.
func MakeRegistryBuilder() RegistryBuilder {
	return RegistryBuilder{
		encoding: DefaultPackedEncoding,
	}
}

// WithEncoding sets the word layout the registry routes by.
func (b RegistryBuilder) WithEncoding(e Encoding) RegistryBuilder {
	b.encoding = e
	return b
}

// WithMemif enables the identify command, which writes the device name into
// target memory.
func (b RegistryBuilder) WithMemif(m *mem.Memif) RegistryBuilder {
	b.memif = m
	return b
}

// Build creates a new Registry.
func (b RegistryBuilder) Build() *Registry {
	return &Registry{
		encoding:      b.encoding,
		memif:         b.memif,
		devices:       make(map[uint64]Device),
		reportedSlots: make(map[uint64]bool),
	}
}
