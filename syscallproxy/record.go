package syscallproxy

import (
	"fmt"

	"github.com/sarchlab/htif/datarecording"
	"github.com/sarchlab/htif/hooking"
)

// SyscallTable is the table that a SyscallRecorder writes.
const SyscallTable = "syscall"

// A SyscallRecord is one served request. Arguments are kept as hex text
// because SQLite integers are signed.
type SyscallRecord struct {
	Seq    uint64
	Device string
	Number int64
	Call   string
	Args   string
	Result int64
}

// A SyscallRecorder is a hook that stores every system call of a proxy.
type SyscallRecorder struct {
	recorder datarecording.DataRecorder
	seq      uint64
}

// NewSyscallRecorder creates the syscall table and returns the hook that
// fills it.
func NewSyscallRecorder(recorder datarecording.DataRecorder) *SyscallRecorder {
	recorder.CreateTable(SyscallTable, SyscallRecord{})

	return &SyscallRecorder{recorder: recorder}
}

// Func implements hooking.Hook.
func (r *SyscallRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosSyscall {
		return
	}

	req := ctx.Item.(Request)
	result := ctx.Detail.(Result)

	name := fmt.Sprintf("syscall_%d", req.Number)
	if result.Known {
		name = result.Call.String()
	}

	deviceName := ""
	if d, ok := ctx.Domain.(interface{ Name() string }); ok {
		deviceName = d.Name()
	}

	r.seq++
	r.recorder.InsertData(SyscallTable, SyscallRecord{
		Seq:    r.seq,
		Device: deviceName,
		Number: int64(req.Number),
		Call:   name,
		Args:   fmt.Sprintf("%#x", req.Args),
		Result: result.Value,
	})
}
