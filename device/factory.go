package device

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sarchlab/htif/mem"
)

// A Factory creates a device from the arguments of a dynamic device spec.
type Factory func(name string, memif *mem.Memif, args []string) (Device, error)

// A FactorySet maps device kinds to the factories that create them.
type FactorySet struct {
	factories map[string]Factory
}

// NewFactorySet creates a set that knows the built-in device kinds.
func NewFactorySet() *FactorySet {
	s := &FactorySet{factories: make(map[string]Factory)}

	s.MustRegister("console", newConsoleFromArgs)
	s.MustRegister("signature",
		func(name string, memif *mem.Memif, _ []string) (Device, error) {
			return NewSignatureDevice(name, memif), nil
		})

	return s
}

// Register adds a factory for a device kind.
func (s *FactorySet) Register(kind string, f Factory) error {
	if _, ok := s.factories[kind]; ok {
		return fmt.Errorf("device kind %q already registered", kind)
	}

	s.factories[kind] = f

	return nil
}

// MustRegister adds a factory and panics if the kind is taken.
func (s *FactorySet) MustRegister(kind string, f Factory) {
	if err := s.Register(kind, f); err != nil {
		panic(err)
	}
}

// Kinds lists the known device kinds.
func (s *FactorySet) Kinds() []string {
	kinds := make([]string, 0, len(s.factories))
	for k := range s.factories {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}

// Create builds a device from a spec of the form "kind[:arg,arg...]".
func (s *FactorySet) Create(spec string, memif *mem.Memif) (Device, error) {
	kind, rest, _ := strings.Cut(spec, ":")

	f, ok := s.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q, known: %v", ErrUnknownFactory, kind, s.Kinds())
	}

	var args []string
	if rest != "" {
		args = strings.Split(rest, ",")
	}

	return f(kind, memif, args)
}

// newConsoleFromArgs creates a console. The optional argument is a host file
// the console writes to instead of stdout.
func newConsoleFromArgs(
	name string,
	_ *mem.Memif,
	args []string,
) (Device, error) {
	var out io.Writer = os.Stdout

	if len(args) > 0 && args[0] != "" {
		f, err := os.Create(args[0])
		if err != nil {
			return nil, fmt.Errorf("console output: %w", err)
		}

		out = f
	}

	return NewConsole(name, nil, out), nil
}
