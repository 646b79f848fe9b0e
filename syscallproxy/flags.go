package syscallproxy

import "os"

// Open flags and other constants as the target encodes them. They follow
// the generic Linux numbering.
const (
	targetWronly    = 0x1
	targetRdwr      = 0x2
	targetAccmode   = 0x3
	targetCreat     = 0x40
	targetExcl      = 0x80
	targetTrunc     = 0x200
	targetAppend    = 0x400
	targetSync      = 0x101000
	targetDirectory = 0x10000

	// AtFDCWD makes a directory file descriptor refer to the working
	// directory.
	AtFDCWD = -100

	atRemoveDir = 0x200

	seekSet = 0
	seekCur = 1
	seekEnd = 2

	accessExec  = 1
	accessWrite = 2
	accessRead  = 4
)

// hostOpenFlags converts target open flags into flags for os.OpenFile.
func hostOpenFlags(flags uint64) int {
	var host int

	switch flags & targetAccmode {
	case targetWronly:
		host = os.O_WRONLY
	case targetRdwr:
		host = os.O_RDWR
	default:
		host = os.O_RDONLY
	}

	if flags&targetCreat != 0 {
		host |= os.O_CREATE
	}

	if flags&targetExcl != 0 {
		host |= os.O_EXCL
	}

	if flags&targetTrunc != 0 {
		host |= os.O_TRUNC
	}

	if flags&targetAppend != 0 {
		host |= os.O_APPEND
	}

	if flags&targetSync == targetSync {
		host |= os.O_SYNC
	}

	return host
}
