// Package config holds the settings of a bridge run.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/loader"
	"github.com/sarchlab/htif/mem"
	"github.com/sarchlab/htif/syscallproxy"
)

// An Error is a setting that cannot be used. A run does not start with one.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config is everything needed to build and run a bridge.
type Config struct {
	// Memory is a size in MiB or a list of base:size regions.
	Memory string

	// Payloads lists the programs to load. The first one is the primary
	// payload.
	Payloads []string

	// RawAddr is where payloads without a known format are loaded.
	RawAddr uint64

	// Entry overrides the entry point of the primary payload when set.
	Entry    *uint64
	ZeroFill string

	// BootImage is a blob installed at BootAddr before the payloads.
	BootImage string
	BootAddr  uint64

	// ToHost and FromHost locate the mailbox. Zero means that the symbols
	// of the primary payload are used.
	ToHost   uint64
	FromHost uint64

	// WordSize is 4 or 8. Zero takes the class of the primary payload.
	WordSize int
	Encoding string

	ABI    string
	Chroot string

	// Args is the argument vector seen by the target.
	Args []string

	// Devices lists extra devices as kind:args.
	Devices []string

	Signature            string
	SignatureGranularity int

	// Replay is the script that drives the replay target.
	Replay string

	// Record is the SQLite file that receives the trace. Empty disables
	// recording.
	Record string

	Monitor     bool
	MonitorPort int
	OpenMonitor bool

	// Directives holds the ++key=value settings by key.
	Directives map[string]string
}

// Default returns the settings of a plain run.
func Default() Config {
	return Config{
		Memory:               "2048",
		RawAddr:              mem.DRAMBase,
		ZeroFill:             loader.ZeroFillAlways.String(),
		BootAddr:             0x1000,
		Encoding:             device.DefaultPackedEncoding.Name(),
		ABI:                  syscallproxy.RiscvPK.Name,
		Chroot:               ".",
		SignatureGranularity: device.DefaultSignatureGranularity,
		Directives:           map[string]string{},
	}
}

// Validate checks the settings and returns the first problem as an *Error.
func (c *Config) Validate() error {
	if len(c.Payloads) == 0 {
		return &Error{Field: "payloads", Reason: "no payload given"}
	}

	if _, err := mem.ParseRegions(c.Memory); err != nil {
		return &Error{Field: "memory", Reason: err.Error()}
	}

	if _, err := loader.ParseZeroFill(c.ZeroFill); err != nil {
		return &Error{Field: "zero-fill", Reason: err.Error()}
	}

	if c.WordSize != 0 && c.WordSize != 4 && c.WordSize != 8 {
		return &Error{
			Field:  "word-size",
			Reason: fmt.Sprintf("%d is neither 4 nor 8", c.WordSize),
		}
	}

	if _, err := device.EncodingByName(c.Encoding); err != nil {
		return &Error{Field: "encoding", Reason: err.Error()}
	}

	if _, err := syscallproxy.ABIByName(c.ABI); err != nil {
		return &Error{Field: "abi", Reason: err.Error()}
	}

	if (c.ToHost == 0) != (c.FromHost == 0) {
		return &Error{
			Field:  "tohost",
			Reason: "tohost and fromhost must be given together",
		}
	}

	if c.ToHost != 0 && c.ToHost == c.FromHost {
		return &Error{
			Field:  "tohost",
			Reason: "tohost and fromhost must differ",
		}
	}

	if c.SignatureGranularity <= 0 {
		return &Error{
			Field:  "signature-granularity",
			Reason: "must be positive",
		}
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return &Error{
			Field:  "monitor-port",
			Reason: fmt.Sprintf("%d is not a port", c.MonitorPort),
		}
	}

	return nil
}

// ParseAddress reads an address in any Go integer literal form.
func ParseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}

	return v, nil
}

// DirectiveKeys returns the keys of the directives that are set, sorted.
func (c *Config) DirectiveKeys() []string {
	keys := make([]string, 0, len(c.Directives))
	for k := range c.Directives {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
