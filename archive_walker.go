// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"io"
	"io/fs"
	"time"
)

// archiveWalker walks the entries of an archive in the order the container
// presents them. Next returns io.EOF after the last entry.
type archiveWalker interface {
	Type() string
	Next() (archiveEntry, error)
}

// archiveEntry is an interface that represents a file or directory in an archive
type archiveEntry interface {
	// Name returns the slash separated path of the entry in the archive
	Name() string

	// Size returns the uncompressed size of the entry
	Size() int64

	// Mode returns the mode of the entry
	Mode() fs.FileMode

	// HasUnixMode returns true if the permission bits of Mode were stored
	// by a unix host
	HasUnixMode() bool

	// ModTime returns the modification time of the entry
	ModTime() time.Time

	// IsDir returns true if the entry is a directory
	IsDir() bool

	// IsRegular returns true if the entry is a regular file
	IsRegular() bool

	// Open returns a reader for the content of the entry
	Open() (io.ReadCloser, error)
}
