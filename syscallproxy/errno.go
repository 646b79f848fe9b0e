package syscallproxy

import (
	"errors"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// errnoOf translates a host error into the errno returned to the target.
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return unix.ENOENT
	case errors.Is(err, fs.ErrPermission):
		return unix.EACCES
	case errors.Is(err, fs.ErrExist):
		return unix.EEXIST
	case errors.Is(err, fs.ErrClosed):
		return unix.EBADF
	case errors.Is(err, os.ErrDeadlineExceeded):
		return unix.ETIMEDOUT
	}

	return unix.EIO
}

// failure is the result word for a host error.
func failure(err error) int64 {
	return -int64(errnoOf(err))
}

func fail(errno unix.Errno) int64 {
	return -int64(errno)
}
