// Package syscallproxy provides the device that performs system calls on
// behalf of the target. Files are confined to a sandbox on the host.
package syscallproxy

import (
	"fmt"
	"io"
	"log"

	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/hooking"
	"github.com/sarchlab/htif/hostfs"
	"github.com/sarchlab/htif/mem"
	"golang.org/x/sys/unix"
)

// CmdSyscall is the only command of the proxy. Its payload is the address of
// a request.
const CmdSyscall = 0

// maxPathLen limits the path strings read from the target.
const maxPathLen = 4096

// HookPosSyscall marks a completed system call. The item is the Request and
// the detail is a Result.
var HookPosSyscall = &hooking.HookPos{Name: "Syscall"}

// A Result is the outcome of one system call.
type Result struct {
	Call  Call
	Known bool
	Value int64
}

// Proxy is the syscall device.
type Proxy struct {
	hooking.HookableBase

	name     string
	memif    *mem.Memif
	sandbox  *hostfs.Sandbox
	abi      ABI
	wordSize int
	argv     []string
	files    *fdTable

	exitCode int
	exited   bool

	numCalls       uint64
	unknownNumbers map[uint64]uint64
}

// Name returns the identity of the device.
func (p *Proxy) Name() string {
	return p.name
}

// ABI returns the call numbering the proxy serves.
func (p *Proxy) ABI() ABI {
	return p.abi
}

// WordSize returns the target word size in bytes.
func (p *Proxy) WordSize() int {
	return p.wordSize
}

// Sandbox returns the file sandbox.
func (p *Proxy) Sandbox() *hostfs.Sandbox {
	return p.sandbox
}

// ExitCode returns the exit code posted through the exit calls.
func (p *Proxy) ExitCode() (int, bool) {
	return p.exitCode, p.exited
}

// NumCalls returns the number of requests served.
func (p *Proxy) NumCalls() uint64 {
	return p.numCalls
}

// UnknownNumbers returns how often each unknown call number was requested.
func (p *Proxy) UnknownNumbers() map[uint64]uint64 {
	counts := make(map[uint64]uint64, len(p.unknownNumbers))
	for n, c := range p.unknownNumbers {
		counts[n] = c
	}

	return counts
}

// NumOpenFiles returns the size of the file descriptor table.
func (p *Proxy) NumOpenFiles() int {
	return p.files.len()
}

// Close closes all host files.
func (p *Proxy) Close() {
	p.files.closeAll()
}

// Handle services a request. Host failures become negative errno results.
// A request that cannot be read is a protocol error.
func (p *Proxy) Handle(cmd device.Command) (device.Response, error) {
	if cmd.Cmd != CmdSyscall {
		return device.NoResponse, &device.ProtocolError{
			Word:   cmd.Payload,
			Reason: fmt.Sprintf("syscall proxy has no command %d", cmd.Cmd),
		}
	}

	req, err := ReadRequest(p.memif, cmd.Payload, p.wordSize)
	if err != nil {
		return device.NoResponse, &device.ProtocolError{
			Word:   cmd.Payload,
			Reason: err.Error(),
		}
	}

	result := p.Serve(req)

	if err := p.memif.WriteUint64(req.Addr, widen(result.Value, p.wordSize)); err != nil {
		return device.NoResponse, &device.ProtocolError{
			Word:   cmd.Payload,
			Reason: fmt.Sprintf("syscall result: %v", err),
		}
	}

	return device.Respond(1), nil
}

// Serve performs a request and returns its result without writing it back.
func (p *Proxy) Serve(req Request) Result {
	p.numCalls++

	call, known := p.abi.Lookup(req.Number)
	result := Result{Call: call, Known: known}

	if !known {
		if p.unknownNumbers[req.Number] == 0 {
			log.Printf("htif: %s: unknown syscall number %d", p.name, req.Number)
		}

		p.unknownNumbers[req.Number]++
		result.Value = fail(unix.ENOSYS)
	} else {
		result.Value = p.perform(call, req)
	}

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosSyscall,
		Item:   req,
		Detail: result,
	})

	return result
}

func (p *Proxy) perform(call Call, req Request) int64 {
	switch call {
	case CallExit, CallExitGroup:
		return p.exit(req)
	case CallGetMainVars:
		return p.getMainVars(req)
	case CallOpen:
		return p.open(req)
	case CallOpenAt:
		return p.openAt(req)
	case CallClose:
		return p.close(req)
	case CallRead:
		return p.read(req)
	case CallWrite:
		return p.write(req)
	case CallPread:
		return p.pread(req)
	case CallPwrite:
		return p.pwrite(req)
	case CallLseek:
		return p.lseek(req)
	case CallFstat:
		return p.fstat(req)
	case CallFstatAt:
		return p.fstatAt(req)
	case CallLstat:
		return p.lstat(req)
	case CallFaccessAt:
		return p.faccessAt(req)
	case CallFtruncate:
		return p.ftruncate(req)
	case CallLinkAt:
		return p.linkAt(req)
	case CallUnlinkAt:
		return p.unlinkAt(req)
	case CallMkdirAt:
		return p.mkdirAt(req)
	case CallRenameAt:
		return p.renameAt(req)
	case CallGetcwd:
		return p.getcwd(req)
	case CallChdir:
		return p.chdir(req)
	case CallDup:
		return p.dup(req)
	}

	return fail(unix.ENOSYS)
}

// A Builder creates syscall proxies.
type Builder struct {
	memif    *mem.Memif
	sandbox  *hostfs.Sandbox
	abi      ABI
	wordSize int
	argv     []string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

// MakeBuilder returns a builder for 64-bit targets with the riscv-pk ABI.
func MakeBuilder() Builder {
	return Builder{
		abi:      RiscvPK,
		wordSize: 8,
		stdin:    eofReader{},
		stdout:   io.Discard,
		stderr:   io.Discard,
	}
}

// WithMemif sets the memory interface requests are read through.
func (b Builder) WithMemif(m *mem.Memif) Builder {
	b.memif = m
	return b
}

// WithSandbox sets the file sandbox.
func (b Builder) WithSandbox(s *hostfs.Sandbox) Builder {
	b.sandbox = s
	return b
}

// WithABI sets the call numbering.
func (b Builder) WithABI(abi ABI) Builder {
	b.abi = abi
	return b
}

// WithWordSize sets the target word size, 4 or 8 bytes.
func (b Builder) WithWordSize(n int) Builder {
	b.wordSize = n
	return b
}

// WithArgs sets the argv that getmainvars reports.
func (b Builder) WithArgs(argv []string) Builder {
	b.argv = argv
	return b
}

// WithStdio connects the standard streams of the target.
func (b Builder) WithStdio(stdin io.Reader, stdout, stderr io.Writer) Builder {
	b.stdin = stdin
	b.stdout = stdout
	b.stderr = stderr

	return b
}

// Build creates a proxy.
func (b Builder) Build(name string) *Proxy {
	if b.memif == nil {
		log.Panicf("syscall proxy %s needs a memory interface", name)
	}

	if b.sandbox == nil {
		log.Panicf("syscall proxy %s needs a sandbox", name)
	}

	if b.wordSize != 4 && b.wordSize != 8 {
		log.Panicf("syscall proxy %s: word size %d is not 4 or 8",
			name, b.wordSize)
	}

	return &Proxy{
		name:           name,
		memif:          b.memif,
		sandbox:        b.sandbox,
		abi:            b.abi,
		wordSize:       b.wordSize,
		argv:           append([]string(nil), b.argv...),
		files:          newFDTable(b.stdin, b.stdout, b.stderr),
		unknownNumbers: make(map[uint64]uint64),
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) {
	return 0, io.EOF
}
