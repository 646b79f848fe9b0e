package syscallproxy

import (
	"fmt"
	"sort"
)

// A Call is a host operation that a target can request.
type Call int

// The calls that the proxy serves.
const (
	CallExit Call = iota
	CallExitGroup
	CallGetMainVars
	CallOpen
	CallOpenAt
	CallClose
	CallRead
	CallWrite
	CallPread
	CallPwrite
	CallLseek
	CallFstat
	CallFstatAt
	CallLstat
	CallFaccessAt
	CallFtruncate
	CallLinkAt
	CallUnlinkAt
	CallMkdirAt
	CallRenameAt
	CallGetcwd
	CallChdir
	CallDup
)

var callNames = map[Call]string{
	CallExit:        "exit",
	CallExitGroup:   "exit_group",
	CallGetMainVars: "getmainvars",
	CallOpen:        "open",
	CallOpenAt:      "openat",
	CallClose:       "close",
	CallRead:        "read",
	CallWrite:       "write",
	CallPread:       "pread",
	CallPwrite:      "pwrite",
	CallLseek:       "lseek",
	CallFstat:       "fstat",
	CallFstatAt:     "fstatat",
	CallLstat:       "lstat",
	CallFaccessAt:   "faccessat",
	CallFtruncate:   "ftruncate",
	CallLinkAt:      "linkat",
	CallUnlinkAt:    "unlinkat",
	CallMkdirAt:     "mkdirat",
	CallRenameAt:    "renameat",
	CallGetcwd:      "getcwd",
	CallChdir:       "chdir",
	CallDup:         "dup",
}

func (c Call) String() string {
	if name, ok := callNames[c]; ok {
		return name
	}

	return fmt.Sprintf("call(%d)", int(c))
}

// An ABI maps the call numbers of one target ABI version to calls. The
// numbers of a published ABI never change.
type ABI struct {
	Name  string
	calls map[uint64]Call
}

// NewABI creates an ABI from a number table. A call may have several
// numbers.
func NewABI(name string, numbers map[uint64]Call) ABI {
	calls := make(map[uint64]Call, len(numbers))
	for n, c := range numbers {
		calls[n] = c
	}

	return ABI{Name: name, calls: calls}
}

// Lookup finds the call of a number.
func (a ABI) Lookup(number uint64) (Call, bool) {
	c, ok := a.calls[number]
	return c, ok
}

// Number returns the lowest number of a call.
func (a ABI) Number(c Call) (uint64, bool) {
	found := false
	lowest := uint64(0)

	for n, call := range a.calls {
		if call == c && (!found || n < lowest) {
			lowest = n
			found = true
		}
	}

	return lowest, found
}

// RiscvPK is the numbering used by the RISC-V proxy kernel. It follows the
// generic Linux numbers, plus the legacy open and lstat calls and
// getmainvars.
var RiscvPK = NewABI("riscv-pk", map[uint64]Call{
	17:   CallGetcwd,
	23:   CallDup,
	34:   CallMkdirAt,
	35:   CallUnlinkAt,
	37:   CallLinkAt,
	38:   CallRenameAt,
	46:   CallFtruncate,
	48:   CallFaccessAt,
	49:   CallChdir,
	56:   CallOpenAt,
	57:   CallClose,
	62:   CallLseek,
	63:   CallRead,
	64:   CallWrite,
	67:   CallPread,
	68:   CallPwrite,
	79:   CallFstatAt,
	80:   CallFstat,
	93:   CallExit,
	94:   CallExitGroup,
	1024: CallOpen,
	1039: CallLstat,
	2011: CallGetMainVars,
})

var abis = map[string]ABI{
	RiscvPK.Name: RiscvPK,
}

// ABIByName returns a published ABI.
func ABIByName(name string) (ABI, error) {
	a, ok := abis[name]
	if !ok {
		return ABI{}, fmt.Errorf("unknown syscall ABI %q, known: %v",
			name, ABINames())
	}

	return a, nil
}

// ABINames lists the published ABIs.
func ABINames() []string {
	names := make([]string, 0, len(abis))
	for name := range abis {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
