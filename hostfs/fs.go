// Package hostfs provides the host file system that target programs see. All
// paths are confined to a root directory.
package hostfs

import (
	"io"
	"io/fs"
	"os"
)

// A File is an open host file.
type File interface {
	io.Reader
	io.Writer
	io.ReaderAt
	io.WriterAt
	io.Seeker
	io.Closer

	Stat() (fs.FileInfo, error)
	Truncate(size int64) error
	Sync() error
}

// A FileSystem operates on slash-separated paths relative to its root. The
// paths it receives have already been resolved by a Jail and never contain
// "..".
type FileSystem interface {
	OpenFile(name string, flag int, perm fs.FileMode) (File, error)
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	Mkdir(name string, perm fs.FileMode) error
	Remove(name string) error
	Rename(oldName, newName string) error
	Link(oldName, newName string) error
	Readlink(name string) (string, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

var _ File = (*os.File)(nil)
