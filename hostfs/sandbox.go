package hostfs

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// A Sandbox answers file requests that carry target paths. Every path goes
// through the jail before the file system sees it.
type Sandbox struct {
	jail *Jail
	fs   FileSystem
}

// NewSandbox creates a sandbox over fsys with the working directory at the
// root.
func NewSandbox(fsys FileSystem) *Sandbox {
	return &Sandbox{jail: NewJail(), fs: fsys}
}

// FileSystem returns the underlying file system.
func (s *Sandbox) FileSystem() FileSystem {
	return s.fs
}

// Getwd returns the working directory of the target.
func (s *Sandbox) Getwd() string {
	return s.jail.Getwd()
}

// Chdir changes the working directory to an existing directory.
func (s *Sandbox) Chdir(dir string) error {
	rel, err := s.jail.Resolve(dir)
	if err != nil {
		return err
	}

	info, err := s.fs.Stat(rel)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return &fs.PathError{Op: "chdir", Path: dir, Err: unix.ENOTDIR}
	}

	return s.jail.Chdir(dir)
}

// Resolve maps a target path to a path under the root.
func (s *Sandbox) Resolve(targetPath string) (string, error) {
	return s.jail.Resolve(targetPath)
}

// OpenFile opens a file.
func (s *Sandbox) OpenFile(
	targetPath string,
	flag int,
	perm fs.FileMode,
) (File, error) {
	rel, err := s.jail.Resolve(targetPath)
	if err != nil {
		return nil, err
	}

	return s.fs.OpenFile(rel, flag, perm)
}

// Stat returns file info, following links.
func (s *Sandbox) Stat(targetPath string) (fs.FileInfo, error) {
	rel, err := s.jail.Resolve(targetPath)
	if err != nil {
		return nil, err
	}

	return s.fs.Stat(rel)
}

// Lstat returns file info without following a final link.
func (s *Sandbox) Lstat(targetPath string) (fs.FileInfo, error) {
	rel, err := s.jail.Resolve(targetPath)
	if err != nil {
		return nil, err
	}

	return s.fs.Lstat(rel)
}

// Mkdir creates a directory.
func (s *Sandbox) Mkdir(targetPath string, perm fs.FileMode) error {
	rel, err := s.jail.Resolve(targetPath)
	if err != nil {
		return err
	}

	return s.fs.Mkdir(rel, perm)
}

// Remove removes a file or an empty directory.
func (s *Sandbox) Remove(targetPath string) error {
	rel, err := s.jail.Resolve(targetPath)
	if err != nil {
		return err
	}

	if rel == "." {
		return &fs.PathError{Op: "remove", Path: targetPath, Err: unix.EBUSY}
	}

	return s.fs.Remove(rel)
}

// Rename renames a file.
func (s *Sandbox) Rename(oldPath, newPath string) error {
	oldRel, err := s.jail.Resolve(oldPath)
	if err != nil {
		return err
	}

	newRel, err := s.jail.Resolve(newPath)
	if err != nil {
		return err
	}

	return s.fs.Rename(oldRel, newRel)
}

// Link creates a hard link.
func (s *Sandbox) Link(oldPath, newPath string) error {
	oldRel, err := s.jail.Resolve(oldPath)
	if err != nil {
		return err
	}

	newRel, err := s.jail.Resolve(newPath)
	if err != nil {
		return err
	}

	return s.fs.Link(oldRel, newRel)
}
