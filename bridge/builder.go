package bridge

import (
	"log"

	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/idgen"
	"github.com/sarchlab/htif/loader"
	"github.com/sarchlab/htif/mem"
)

// A Builder creates controllers.
type Builder struct {
	target          Target
	memif           *mem.Memif
	registry        *device.Registry
	primary         *loader.Payload
	secondary       []*loader.Payload
	entry           *uint64
	bootImage       BootImage
	preloaded       loader.PreloadedRanges
	zeroFill        loader.ZeroFill
	mailbox         *Mailbox
	wordSize        int
	signature       SignatureConfig
	idGen           idgen.Generator
	acknowledgeExit bool
}

// MakeBuilder returns a builder with 8-byte mailbox words that clears
// segment tails.
func MakeBuilder() Builder {
	return Builder{
		wordSize: 8,
		zeroFill: loader.ZeroFillAlways,
	}
}

// WithTarget sets the processor model.
func (b Builder) WithTarget(t Target) Builder {
	b.target = t
	return b
}

// WithMemif sets the interface to target memory.
func (b Builder) WithMemif(m *mem.Memif) Builder {
	b.memif = m
	return b
}

// WithRegistry sets the devices.
func (b Builder) WithRegistry(r *device.Registry) Builder {
	b.registry = r
	return b
}

// WithPayload sets the primary payload. Its entry point and symbols are used
// unless overridden.
func (b Builder) WithPayload(p *loader.Payload) Builder {
	b.primary = p
	return b
}

// WithSecondaryPayloads sets payloads that are loaded after the primary one,
// in order.
func (b Builder) WithSecondaryPayloads(ps ...*loader.Payload) Builder {
	b.secondary = append([]*loader.Payload(nil), ps...)
	return b
}

// WithEntry overrides the entry point of the primary payload.
func (b Builder) WithEntry(addr uint64) Builder {
	b.entry = &addr
	return b
}

// WithBootImage sets a blob that is installed before the payloads.
func (b Builder) WithBootImage(img BootImage) Builder {
	b.bootImage = img
	return b
}

// WithPreloaded marks a range as already holding its final content.
func (b Builder) WithPreloaded(r loader.Range) Builder {
	b.preloaded = append(append(loader.PreloadedRanges(nil), b.preloaded...), r)
	return b
}

// WithZeroFill sets the zero-fill policy of the loader.
func (b Builder) WithZeroFill(z loader.ZeroFill) Builder {
	b.zeroFill = z
	return b
}

// WithMailbox sets the to-host and from-host addresses instead of looking
// them up in the primary payload.
func (b Builder) WithMailbox(toHost, fromHost uint64) Builder {
	b.mailbox = &Mailbox{ToHost: toHost, FromHost: fromHost}
	return b
}

// WithWordSize sets the size of the mailbox words, 4 or 8 bytes.
func (b Builder) WithWordSize(n int) Builder {
	b.wordSize = n
	return b
}

// WithSignature asks for a signature dump to path when the run ends.
func (b Builder) WithSignature(path string, granularity int) Builder {
	b.signature = SignatureConfig{Path: path, Granularity: granularity}
	return b
}

// WithIDGenerator sets how dispatch tasks are named in traces.
func (b Builder) WithIDGenerator(g idgen.Generator) Builder {
	b.idGen = g
	return b
}

// WithExitAcknowledge makes the bridge write 1 to the from-host word when
// the target posts an exit code.
func (b Builder) WithExitAcknowledge() Builder {
	b.acknowledgeExit = true
	return b
}

// Build creates a controller in the created state.
func (b Builder) Build(name string) *Controller {
	b.mustBeComplete()

	preloaded := append(loader.PreloadedRanges(nil), b.preloaded...)
	if b.bootImage != nil && len(b.bootImage.Bytes()) > 0 {
		preloaded = append(preloaded, loader.Range{
			Addr: b.bootImage.Base(),
			Size: uint64(len(b.bootImage.Bytes())),
		})
	}

	ld := loader.MakeBuilder().
		WithMemory(b.memif.ChunkedMemory).
		WithPreloadChecker(preloaded).
		WithZeroFill(b.zeroFill).
		Build()

	idGen := b.idGen
	if idGen == nil {
		idGen = idgen.NewSequential(name)
	}

	c := &Controller{
		name:            name,
		state:           StateCreated,
		target:          b.target,
		memif:           b.memif,
		registry:        b.registry,
		loader:          ld,
		bootImage:       b.bootImage,
		primary:         b.primary,
		secondary:       b.secondary,
		entryOverride:   b.entry,
		mailbox:         Mailbox{WordSize: b.wordSize},
		acknowledgeExit: b.acknowledgeExit,
		signature:       b.signature,
		idGen:           idGen,
	}

	if b.mailbox != nil {
		c.mailbox.ToHost = b.mailbox.ToHost
		c.mailbox.FromHost = b.mailbox.FromHost
		c.mailboxSet = true
	}

	return c
}

func (b Builder) mustBeComplete() {
	switch {
	case b.target == nil:
		log.Panic("bridge needs a target")
	case b.memif == nil:
		log.Panic("bridge needs a memory interface")
	case b.registry == nil:
		log.Panic("bridge needs a device registry")
	case b.primary == nil:
		log.Panic("bridge needs a primary payload")
	case b.wordSize != 4 && b.wordSize != 8:
		log.Panicf("bridge word size must be 4 or 8, not %d", b.wordSize)
	}
}
