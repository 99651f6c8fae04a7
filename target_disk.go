// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/pkg/errors"
)

// TargetDisk is the struct type that holds all information for interacting with the filesystem
type TargetDisk struct{}

// NewTargetDisk creates a new disk target
func NewTargetDisk() *TargetDisk {
	return &TargetDisk{}
}

// CreateDir creates a directory and all missing parents at the specified path with the
// specified mode. If the directory already exists, nothing is done.
func (d *TargetDisk) CreateDir(path string, mode fs.FileMode) error {
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}
	return nil
}

// CreateFile creates a file at the specified path with src as content. An existing file is
// removed first, so that read-only files from a previous extraction are replaced as well.
// If maxSize < 0, the file size is not limited.
func (d *TargetDisk) CreateFile(path string, src io.Reader, mode fs.FileMode, maxSize int64) (int64, error) {
	// replace existing regular files
	if stat, err := os.Lstat(path); err == nil {
		if stat.IsDir() {
			return 0, newError(KindWriteFailed, path, errors.New("a directory with the same name exists"))
		}
		if err := os.Remove(path); err != nil {
			return 0, ioError(KindWriteFailed, path, errors.Wrap(err, "failed to replace file"))
		}
	}

	// create dst file
	dstFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return 0, ioError(KindWriteFailed, path, errors.Wrap(err, "failed to create file"))
	}
	defer dstFile.Close()

	// write data to file
	n, err := io.Copy(limitWriter(dstFile, maxSize), src)
	if err != nil {
		return n, err
	}

	if err := dstFile.Close(); err != nil {
		return n, ioError(KindWriteFailed, path, errors.Wrap(err, "failed to close file"))
	}
	return n, nil
}

// Lstat returns the FileInfo structure describing the named file.
// If there is an error, it will be of type *PathError.
func (d *TargetDisk) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// Chmod changes the mode of the named file to mode.
func (d *TargetDisk) Chmod(path string, mode fs.FileMode) error {
	return os.Chmod(path, mode.Perm())
}

// Chtimes changes the access and modification times of the named file.
func (d *TargetDisk) Chtimes(path string, atime, mtime time.Time) error {
	return chtimes(path, atime, mtime)
}
