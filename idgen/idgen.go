// Package idgen generates identifiers for traced tasks.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// A Generator generates IDs.
type Generator interface {
	Generate() string
}

// NewSequential returns a generator of increasing numbers, starting at 1,
// after a prefix. The IDs are the same in every run.
func NewSequential(prefix string) Generator {
	return &sequential{prefix: prefix}
}

// NewUnique returns a generator of globally unique IDs. They differ from run
// to run, which keeps records of several runs apart.
func NewUnique() Generator {
	return unique{}
}

type sequential struct {
	prefix string
	nextID atomic.Uint64
}

func (g *sequential) Generate() string {
	return g.prefix + strconv.FormatUint(g.nextID.Add(1), 10)
}

type unique struct{}

func (unique) Generate() string {
	return xid.New().String()
}
