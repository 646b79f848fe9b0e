package syscallproxy

import (
	"io"
	"sort"

	"github.com/sarchlab/htif/hostfs"
)

// An openFile is an entry of the file descriptor table.
type openFile struct {
	// file is nil for the standard streams.
	file hostfs.File

	r io.Reader
	w io.Writer

	// path is the target path the file was opened with.
	path  string
	isDir bool

	// refs counts the descriptors that share the file.
	refs *int
}

// fdTable maps target file descriptors to host files. Descriptors are
// allocated lowest first, like on a POSIX host.
type fdTable struct {
	files map[int]*openFile
}

func newFDTable(stdin io.Reader, stdout, stderr io.Writer) *fdTable {
	t := &fdTable{files: make(map[int]*openFile)}
	t.files[0] = &openFile{r: stdin, path: "/dev/stdin", refs: new(int)}
	t.files[1] = &openFile{w: stdout, path: "/dev/stdout", refs: new(int)}
	t.files[2] = &openFile{w: stderr, path: "/dev/stderr", refs: new(int)}

	for _, f := range t.files {
		*f.refs = 1
	}

	return t
}

func (t *fdTable) get(fd int64) (*openFile, bool) {
	if fd < 0 || fd > int64(^uint32(0)>>1) {
		return nil, false
	}

	f, ok := t.files[int(fd)]

	return f, ok
}

func (t *fdTable) add(f *openFile) int {
	if f.refs == nil {
		f.refs = new(int)
	}

	*f.refs++

	fd := 0
	for {
		if _, taken := t.files[fd]; !taken {
			break
		}
		fd++
	}

	t.files[fd] = f

	return fd
}

// remove drops a descriptor. It returns the file when no descriptor refers
// to it anymore.
func (t *fdTable) remove(fd int64) (*openFile, bool, bool) {
	f, ok := t.get(fd)
	if !ok {
		return nil, false, false
	}

	delete(t.files, int(fd))
	*f.refs--

	return f, *f.refs == 0, true
}

// closeAll closes every host file.
func (t *fdTable) closeAll() {
	fds := make([]int, 0, len(t.files))
	for fd := range t.files {
		fds = append(fds, fd)
	}

	sort.Ints(fds)

	for _, fd := range fds {
		f, last, _ := t.remove(int64(fd))
		if last && f.file != nil {
			_ = f.file.Close()
		}
	}
}

func (t *fdTable) len() int {
	return len(t.files)
}
