// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

//go:generate mockgen -destination=mock_target_test.go -package=archiver_test github.com/hashicorp/go-archiver Target

// Target specifies all functions that are needed to write the contents of an archive.
type Target interface {
	// CreateFile creates a file at the specified path with src as content. An existing
	// file is replaced. The mode parameter is the file mode that should be set on the
	// file. The size of the file should not exceed maxSize. The number of bytes written
	// is returned, also along with an error. If maxSize < 0, the file size is not limited.
	CreateFile(path string, src io.Reader, mode fs.FileMode, maxSize int64) (int64, error)

	// CreateDir creates a directory and all missing parents at the specified path with
	// the specified mode. If the directory already exists, nothing is done.
	CreateDir(path string, mode fs.FileMode) error

	// Lstat see docs for os.Lstat. Main purpose is to check for symlinks in the
	// extraction path and for zip-slip attacks.
	Lstat(path string) (fs.FileInfo, error)

	// Chmod see docs for os.Chmod. Main purpose is to apply unix permission bits.
	Chmod(path string, mode fs.FileMode) error

	// Chtimes see docs for os.Chtimes. Main purpose is to restore modification times.
	Chtimes(path string, atime, mtime time.Time) error
}

// errUnsafePath is returned by securityCheck, if the path leaves the destination.
// It matches [ErrUnsafeEntryPath].
var errUnsafePath = newError(KindUnsafeEntryPath, "", errors.New("path leaves the destination"))

// entryPath converts the slash separated name of an archive entry into a
// cleaned, platform specific path that is relative to the destination.
func entryPath(name string) string {
	parts := strings.Split(name, "/")
	return filepath.Clean(filepath.Join(parts...))
}

// securityCheck checks if name contains path traversal, is an absolute path
// or if the path below dst contains a symlink.
//
// The function returns an error wrapping errUnsafePath if the entry would
// be written outside of dst.
func securityCheck(t Target, dst string, name string) error {
	// absolute paths are never enclosed in dst
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) || len(filepath.VolumeName(name)) > 0 {
		return errors.Wrap(errUnsafePath, "absolute path")
	}

	// check if the relative path is local
	path := entryPath(name)
	if !filepath.IsLocal(path) {
		return errors.Wrap(errUnsafePath, "path traversal")
	}

	// check each element for symlinks that point elsewhere
	elements := strings.Split(path, string(os.PathSeparator))
	for i := range elements {
		checkPath := filepath.Join(dst, filepath.Join(elements[:i+1]...))
		stat, err := t.Lstat(checkPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// nothing below can exist either
				return nil
			}
			return errors.Wrap(err, "invalid path")
		}
		if stat.Mode()&fs.ModeSymlink != 0 {
			return errors.Wrap(errUnsafePath, "symlink in path")
		}
	}

	return nil
}

// createDir creates the directory name below dst after a security check.
func createDir(t Target, dst string, name string, mode fs.FileMode) error {
	if err := securityCheck(t, dst, name); err != nil {
		return err
	}

	path := entryPath(name)
	if path == "." {
		return nil
	}
	if err := t.CreateDir(filepath.Join(dst, path), mode); err != nil {
		return ioError(KindCreateDirFailed, filepath.Join(dst, path), err)
	}
	if err := makeDirWritable(t, filepath.Join(dst, path), mode); err != nil {
		return ioError(KindCreateDirFailed, filepath.Join(dst, path), err)
	}
	return nil
}

// makeDirWritable sets mode on an existing directory that a previous extraction
// left without owner write or search permission. The archive mode of the
// directory is applied again after the last entry.
func makeDirWritable(t Target, path string, mode fs.FileMode) error {
	stat, err := t.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "invalid path")
	}
	if !stat.IsDir() || stat.Mode().Perm()&0300 == 0300 {
		return nil
	}
	if err := t.Chmod(path, mode.Perm()|0300); err != nil {
		return errors.Wrap(err, "failed to make directory writable")
	}
	return nil
}

// createFile creates the file name below dst with src as content after a
// security check. Missing parent directories are created with the
// [Config.CustomCreateDirMode].
func createFile(t Target, dst string, name string, src io.Reader, mode fs.FileMode, maxSize int64, cfg *Config) (int64, error) {
	if err := securityCheck(t, dst, name); err != nil {
		return 0, err
	}

	path := entryPath(name)
	if path == "." {
		return 0, errors.Wrap(errUnsafePath, "file without name")
	}

	// ensure the parent exists
	if parent := filepath.Dir(path); parent != "." {
		if err := t.CreateDir(filepath.Join(dst, parent), cfg.CustomCreateDirMode()); err != nil {
			return 0, ioError(KindCreateDirFailed, filepath.Join(dst, parent), err)
		}
	}

	return t.CreateFile(filepath.Join(dst, path), src, mode, maxSize)
}
