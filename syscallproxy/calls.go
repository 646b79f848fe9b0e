package syscallproxy

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/sarchlab/htif/hostfs"
	"golang.org/x/sys/unix"
)

// maxTransfer limits the bytes moved by one read or write. Targets handle
// short transfers.
const maxTransfer = 1 << 20

// mainVarsWordSize is the width of the words getmainvars writes. The proxy
// kernel reads them as 64-bit values on every target.
const mainVarsWordSize = 8

const (
	atSymlinkNoFollow = 0x100
	atEmptyPath       = 0x1000
)

// exit keeps the low byte of the status, as a Linux wait status does.
func (p *Proxy) exit(req Request) int64 {
	p.exitCode = int(uint8(req.Uint(0)))
	p.exited = true

	return 0
}

func (p *Proxy) getMainVars(req Request) int64 {
	buf, limit := req.Pointer(0), req.Uint(1)
	argc := len(p.argv)
	order := p.memif.ByteOrder()

	header := uint64(argc+3) * mainVarsWordSize
	image := make([]byte, header)
	order.PutUint64(image, uint64(argc))

	for i, arg := range p.argv {
		order.PutUint64(image[(i+1)*mainVarsWordSize:], buf+uint64(len(image)))
		image = append(image, arg...)
		image = append(image, 0)
	}

	if uint64(len(image)) > limit {
		return fail(unix.ENOMEM)
	}

	if err := p.memif.Write(buf, image); err != nil {
		return fail(unix.EFAULT)
	}

	return 0
}

func (p *Proxy) open(req Request) int64 {
	return p.openPath(AtFDCWD, req.Pointer(0), req.Uint(1), req.Uint(2), req.Uint(3))
}

func (p *Proxy) openAt(req Request) int64 {
	return p.openPath(req.Int(0), req.Pointer(1), req.Uint(2), req.Uint(3), req.Uint(4))
}

func (p *Proxy) openPath(dirFD int64, pathAddr, pathLen, flags, mode uint64) int64 {
	targetPath, errno := p.pathAt(dirFD, pathAddr, pathLen)
	if errno != 0 {
		return fail(errno)
	}

	f, err := p.sandbox.OpenFile(targetPath, hostOpenFlags(flags),
		fs.FileMode(mode&0o777))
	if err != nil {
		return failure(err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return failure(err)
	}

	if flags&targetDirectory != 0 && !info.IsDir() {
		_ = f.Close()
		return fail(unix.ENOTDIR)
	}

	rel, _ := p.sandbox.Resolve(targetPath)
	fd := p.files.add(&openFile{
		file:  f,
		r:     f,
		w:     f,
		path:  hostfs.ToTarget(rel),
		isDir: info.IsDir(),
	})

	return int64(fd)
}

func (p *Proxy) close(req Request) int64 {
	f, last, ok := p.files.remove(req.Int(0))
	if !ok {
		return fail(unix.EBADF)
	}

	if last && f.file != nil {
		if err := f.file.Close(); err != nil {
			return failure(err)
		}
	}

	return 0
}

func (p *Proxy) read(req Request) int64 {
	f, ok := p.files.get(req.Int(0))
	if !ok || f.r == nil {
		return fail(unix.EBADF)
	}

	if f.isDir {
		return fail(unix.EISDIR)
	}

	buf := make([]byte, transferSize(req.Uint(2)))

	n, err := f.r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return failure(err)
	}

	return p.copyOut(req.Pointer(1), buf[:n])
}

func (p *Proxy) pread(req Request) int64 {
	f, ok := p.files.get(req.Int(0))
	if !ok {
		return fail(unix.EBADF)
	}

	if f.file == nil {
		return fail(unix.ESPIPE)
	}

	if req.Int(3) < 0 {
		return fail(unix.EINVAL)
	}

	buf := make([]byte, transferSize(req.Uint(2)))

	n, err := f.file.ReadAt(buf, req.Int(3))
	if err != nil && !errors.Is(err, io.EOF) {
		return failure(err)
	}

	return p.copyOut(req.Pointer(1), buf[:n])
}

func (p *Proxy) write(req Request) int64 {
	f, ok := p.files.get(req.Int(0))
	if !ok || f.w == nil {
		return fail(unix.EBADF)
	}

	buf, errno := p.copyIn(req.Pointer(1), req.Uint(2))
	if errno != 0 {
		return fail(errno)
	}

	n, err := f.w.Write(buf)
	if err != nil && n == 0 {
		return failure(err)
	}

	return int64(n)
}

func (p *Proxy) pwrite(req Request) int64 {
	f, ok := p.files.get(req.Int(0))
	if !ok {
		return fail(unix.EBADF)
	}

	if f.file == nil {
		return fail(unix.ESPIPE)
	}

	if req.Int(3) < 0 {
		return fail(unix.EINVAL)
	}

	buf, errno := p.copyIn(req.Pointer(1), req.Uint(2))
	if errno != 0 {
		return fail(errno)
	}

	n, err := f.file.WriteAt(buf, req.Int(3))
	if err != nil && n == 0 {
		return failure(err)
	}

	return int64(n)
}

func (p *Proxy) lseek(req Request) int64 {
	f, ok := p.files.get(req.Int(0))
	if !ok {
		return fail(unix.EBADF)
	}

	if f.file == nil {
		return fail(unix.ESPIPE)
	}

	var whence int

	switch req.Uint(2) {
	case seekSet:
		whence = io.SeekStart
	case seekCur:
		whence = io.SeekCurrent
	case seekEnd:
		whence = io.SeekEnd
	default:
		return fail(unix.EINVAL)
	}

	pos, err := f.file.Seek(req.Int(1), whence)
	if err != nil {
		return failure(err)
	}

	return pos
}

func (p *Proxy) fstat(req Request) int64 {
	return p.fstatFD(req.Int(0), req.Pointer(1))
}

func (p *Proxy) fstatFD(fd int64, buf uint64) int64 {
	f, ok := p.files.get(fd)
	if !ok {
		return fail(unix.EBADF)
	}

	if f.file == nil {
		return p.putStat(buf, consoleStat())
	}

	info, err := f.file.Stat()
	if err != nil {
		return failure(err)
	}

	return p.putStat(buf, statOf(info))
}

func (p *Proxy) fstatAt(req Request) int64 {
	dirFD, flags := req.Int(0), req.Uint(4)

	if req.Uint(2) <= 1 && flags&atEmptyPath != 0 {
		return p.fstatFD(dirFD, req.Pointer(3))
	}

	targetPath, errno := p.pathAt(dirFD, req.Pointer(1), req.Uint(2))
	if errno != 0 {
		return fail(errno)
	}

	stat := p.sandbox.Stat
	if flags&atSymlinkNoFollow != 0 {
		stat = p.sandbox.Lstat
	}

	info, err := stat(targetPath)
	if err != nil {
		return failure(err)
	}

	return p.putStat(req.Pointer(3), statOf(info))
}

func (p *Proxy) lstat(req Request) int64 {
	targetPath, errno := p.pathAt(AtFDCWD, req.Pointer(0), req.Uint(1))
	if errno != 0 {
		return fail(errno)
	}

	info, err := p.sandbox.Lstat(targetPath)
	if err != nil {
		return failure(err)
	}

	return p.putStat(req.Pointer(2), statOf(info))
}

func (p *Proxy) faccessAt(req Request) int64 {
	targetPath, errno := p.pathAt(req.Int(0), req.Pointer(1), req.Uint(2))
	if errno != 0 {
		return fail(errno)
	}

	info, err := p.sandbox.Stat(targetPath)
	if err != nil {
		return failure(err)
	}

	mode := req.Uint(3)
	perm := info.Mode().Perm()

	if mode&accessRead != 0 && perm&0o444 == 0 ||
		mode&accessWrite != 0 && perm&0o222 == 0 ||
		mode&accessExec != 0 && perm&0o111 == 0 {
		return fail(unix.EACCES)
	}

	return 0
}

func (p *Proxy) ftruncate(req Request) int64 {
	f, ok := p.files.get(req.Int(0))
	if !ok {
		return fail(unix.EBADF)
	}

	if f.file == nil || f.isDir {
		return fail(unix.EINVAL)
	}

	if err := f.file.Truncate(req.Int(1)); err != nil {
		return failure(err)
	}

	return 0
}

func (p *Proxy) linkAt(req Request) int64 {
	oldPath, errno := p.pathAt(req.Int(0), req.Pointer(1), req.Uint(2))
	if errno != 0 {
		return fail(errno)
	}

	newPath, errno := p.pathAt(req.Int(3), req.Pointer(4), req.Uint(5))
	if errno != 0 {
		return fail(errno)
	}

	if err := p.sandbox.Link(oldPath, newPath); err != nil {
		return failure(err)
	}

	return 0
}

func (p *Proxy) unlinkAt(req Request) int64 {
	targetPath, errno := p.pathAt(req.Int(0), req.Pointer(1), req.Uint(2))
	if errno != 0 {
		return fail(errno)
	}

	info, err := p.sandbox.Lstat(targetPath)
	if err != nil {
		return failure(err)
	}

	removeDir := req.Uint(3)&atRemoveDir != 0

	switch {
	case removeDir && !info.IsDir():
		return fail(unix.ENOTDIR)
	case !removeDir && info.IsDir():
		return fail(unix.EISDIR)
	}

	if err := p.sandbox.Remove(targetPath); err != nil {
		return failure(err)
	}

	return 0
}

func (p *Proxy) mkdirAt(req Request) int64 {
	targetPath, errno := p.pathAt(req.Int(0), req.Pointer(1), req.Uint(2))
	if errno != 0 {
		return fail(errno)
	}

	if err := p.sandbox.Mkdir(targetPath, fs.FileMode(req.Uint(3)&0o777)); err != nil {
		return failure(err)
	}

	return 0
}

func (p *Proxy) renameAt(req Request) int64 {
	oldPath, errno := p.pathAt(req.Int(0), req.Pointer(1), req.Uint(2))
	if errno != 0 {
		return fail(errno)
	}

	newPath, errno := p.pathAt(req.Int(3), req.Pointer(4), req.Uint(5))
	if errno != 0 {
		return fail(errno)
	}

	if err := p.sandbox.Rename(oldPath, newPath); err != nil {
		return failure(err)
	}

	return 0
}

func (p *Proxy) getcwd(req Request) int64 {
	cwd := append([]byte(p.sandbox.Getwd()), 0)
	if uint64(len(cwd)) > req.Uint(1) {
		return fail(unix.ERANGE)
	}

	return p.copyOut(req.Pointer(0), cwd)
}

func (p *Proxy) chdir(req Request) int64 {
	dir, err := p.memif.ReadCString(req.Pointer(0), maxPathLen)
	if err != nil {
		return fail(unix.EFAULT)
	}

	if err := p.sandbox.Chdir(dir); err != nil {
		return failure(err)
	}

	return 0
}

func (p *Proxy) dup(req Request) int64 {
	f, ok := p.files.get(req.Int(0))
	if !ok {
		return fail(unix.EBADF)
	}

	return int64(p.files.add(f))
}

// pathAt reads a path argument and makes it absolute, taking relative paths
// from the directory of dirFD.
func (p *Proxy) pathAt(dirFD int64, addr, length uint64) (string, unix.Errno) {
	name, errno := p.readPath(addr, length)
	if errno != 0 {
		return "", errno
	}

	if strings.HasPrefix(name, "/") || dirFD == AtFDCWD {
		return name, 0
	}

	dir, ok := p.files.get(dirFD)
	if !ok {
		return "", unix.EBADF
	}

	if !dir.isDir {
		return "", unix.ENOTDIR
	}

	return dir.path + "/" + name, 0
}

// readPath reads a path. A length of zero means the path is NUL-terminated.
func (p *Proxy) readPath(addr, length uint64) (string, unix.Errno) {
	if length == 0 {
		name, err := p.memif.ReadCString(addr, maxPathLen)
		if err != nil {
			return "", unix.EFAULT
		}

		return name, 0
	}

	if length > maxPathLen {
		return "", unix.ENAMETOOLONG
	}

	buf := make([]byte, length)
	if err := p.memif.Read(addr, buf); err != nil {
		return "", unix.EFAULT
	}

	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}

	if len(buf) == 0 {
		return "", unix.ENOENT
	}

	return string(buf), 0
}

func (p *Proxy) copyIn(addr, length uint64) ([]byte, unix.Errno) {
	buf := make([]byte, transferSize(length))
	if err := p.memif.Read(addr, buf); err != nil {
		return nil, unix.EFAULT
	}

	return buf, 0
}

func (p *Proxy) copyOut(addr uint64, data []byte) int64 {
	if err := p.memif.Write(addr, data); err != nil {
		return fail(unix.EFAULT)
	}

	return int64(len(data))
}

func (p *Proxy) putStat(addr uint64, st targetStat) int64 {
	if err := p.memif.Write(addr, st.encode(p.memif.ByteOrder())); err != nil {
		return fail(unix.EFAULT)
	}

	return 0
}

func transferSize(n uint64) uint64 {
	if n > maxTransfer {
		return maxTransfer
	}

	return n
}
