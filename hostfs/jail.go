package hostfs

import (
	"io/fs"
	"path"
	"strings"

	"golang.org/x/sys/unix"
)

// A Jail turns target paths into paths relative to the root of a FileSystem.
// It keeps the current working directory of the target.
type Jail struct {
	cwd string
}

// NewJail creates a jail whose working directory is the root.
func NewJail() *Jail {
	return &Jail{cwd: "/"}
}

// Getwd returns the working directory as the target sees it.
func (j *Jail) Getwd() string {
	return j.cwd
}

// Chdir changes the working directory. The caller checks that the directory
// exists.
func (j *Jail) Chdir(dir string) error {
	rel, err := j.Resolve(dir)
	if err != nil {
		return err
	}

	j.cwd = ToTarget(rel)

	return nil
}

// Resolve turns a target path into a path relative to the root. Relative
// paths start from the working directory. Paths that climb above the root
// fail with a permission error.
func (j *Jail) Resolve(targetPath string) (string, error) {
	if targetPath == "" {
		return "", &fs.PathError{Op: "resolve", Path: targetPath, Err: unix.ENOENT}
	}

	full := targetPath
	if !strings.HasPrefix(targetPath, "/") {
		full = j.cwd + "/" + targetPath
	}

	var parts []string

	for _, elem := range strings.Split(full, "/") {
		switch elem {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", &fs.PathError{
					Op:   "resolve",
					Path: targetPath,
					Err:  unix.EACCES,
				}
			}

			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, elem)
		}
	}

	if len(parts) == 0 {
		return ".", nil
	}

	return path.Join(parts...), nil
}

// ToTarget turns a root-relative path into the absolute path the target sees.
func ToTarget(rel string) string {
	if rel == "." || rel == "" {
		return "/"
	}

	return "/" + rel
}
