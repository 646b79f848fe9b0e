package hostfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DirFS is a FileSystem backed by a host directory. Symbolic links that
// lead outside the directory are refused.
type DirFS struct {
	root string
}

// NewDirFS creates a file system rooted at dir.
func NewDirFS(dir string) (*DirFS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return nil, &fs.PathError{Op: "chroot", Path: dir, Err: unix.ENOTDIR}
	}

	return &DirFS{root: resolved}, nil
}

// Root returns the host directory.
func (d *DirFS) Root() string {
	return d.root
}

// hostPath maps name to a host path. When follow is set, a symbolic link in
// the last element is also checked.
func (d *DirFS) hostPath(op, name string, follow bool) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: unix.EACCES}
	}

	p := filepath.Join(d.root, filepath.FromSlash(name))

	parent := filepath.Dir(p)
	if name == "." {
		parent = p
	}

	if err := d.mustStayInside(op, name, parent); err != nil {
		return "", err
	}

	if follow && name != "." {
		if err := d.mustStayInside(op, name, p); err != nil {
			return "", err
		}
	}

	return p, nil
}

func (d *DirFS) mustStayInside(op, name, p string) error {
	resolved, err := resolveLinks(p, maxLinkHops)
	if err != nil {
		// Loops and other lookup failures are reported by the operation.
		return nil
	}

	if resolved == d.root || strings.HasPrefix(resolved, d.root+string(filepath.Separator)) {
		return nil
	}

	return &fs.PathError{Op: op, Path: name, Err: unix.EACCES}
}

// maxLinkHops matches the symbolic link limit of Linux.
const maxLinkHops = 40

// resolveLinks resolves the symbolic links of p like filepath.EvalSymlinks,
// but also follows links whose destination does not exist yet, so that
// creating a file through a dangling link can be checked.
func resolveLinks(p string, hops int) (string, error) {
	for ; hops > 0; hops-- {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return resolved, nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		target, err := os.Readlink(p)
		if err != nil {
			parent := filepath.Dir(p)
			if parent == p {
				return p, nil
			}

			resolvedParent, err := resolveLinks(parent, hops)
			if err != nil {
				return "", err
			}

			return filepath.Join(resolvedParent, filepath.Base(p)), nil
		}

		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(p), target)
		}

		p = target
	}

	return "", unix.ELOOP
}

// OpenFile opens a file like os.OpenFile.
func (d *DirFS) OpenFile(name string, flag int, perm fs.FileMode) (File, error) {
	p, err := d.hostPath("open", name, true)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(p, flag, perm)
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Stat returns the file info, following links.
func (d *DirFS) Stat(name string) (fs.FileInfo, error) {
	p, err := d.hostPath("stat", name, true)
	if err != nil {
		return nil, err
	}

	return os.Stat(p)
}

// Lstat returns the file info without following a final link.
func (d *DirFS) Lstat(name string) (fs.FileInfo, error) {
	p, err := d.hostPath("lstat", name, false)
	if err != nil {
		return nil, err
	}

	return os.Lstat(p)
}

// Mkdir creates a directory.
func (d *DirFS) Mkdir(name string, perm fs.FileMode) error {
	p, err := d.hostPath("mkdir", name, false)
	if err != nil {
		return err
	}

	return os.Mkdir(p, perm)
}

// Remove removes a file or an empty directory.
func (d *DirFS) Remove(name string) error {
	p, err := d.hostPath("remove", name, false)
	if err != nil {
		return err
	}

	return os.Remove(p)
}

// Rename renames a file.
func (d *DirFS) Rename(oldName, newName string) error {
	oldPath, err := d.hostPath("rename", oldName, false)
	if err != nil {
		return err
	}

	newPath, err := d.hostPath("rename", newName, false)
	if err != nil {
		return err
	}

	return os.Rename(oldPath, newPath)
}

// Link creates a hard link.
func (d *DirFS) Link(oldName, newName string) error {
	oldPath, err := d.hostPath("link", oldName, true)
	if err != nil {
		return err
	}

	newPath, err := d.hostPath("link", newName, false)
	if err != nil {
		return err
	}

	return os.Link(oldPath, newPath)
}

// Readlink returns the destination of a symbolic link.
func (d *DirFS) Readlink(name string) (string, error) {
	p, err := d.hostPath("readlink", name, false)
	if err != nil {
		return "", err
	}

	return os.Readlink(p)
}

// ReadDir lists a directory.
func (d *DirFS) ReadDir(name string) ([]fs.DirEntry, error) {
	p, err := d.hostPath("readdir", name, true)
	if err != nil {
		return nil, err
	}

	return os.ReadDir(p)
}
