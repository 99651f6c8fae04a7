// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/nwaples/rardecode"
	"github.com/pkg/errors"
)

// unpackRar extracts all entries of the rar archive to the destination. The
// headers are processed as stream: every call of Next advances the archive
// past the current entry, whether its content was read or not.
func unpackRar(ctx context.Context, t Target, p unpackParams, cfg *Config, td *TelemetryData) error {
	cfg.Logger().Info("extracting rar")

	a, err := rardecode.OpenReader(p.archivePath, p.password)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return ioError(KindOpenFailed, p.archivePath, err)
		}
		return newError(KindCorruptArchive, p.archivePath, errors.Wrap(err, "cannot create rar decoder"))
	}
	defer a.Close()

	return extract(ctx, t, p.destination, &rarWalker{&a.Reader}, cfg, td)
}

// rarWalker is an archiveWalker for Rar files.
type rarWalker struct {
	r *rardecode.Reader
}

// Type returns the file extension for rar files.
func (rw *rarWalker) Type() string {
	return string(ExtensionRar)
}

// Next returns the next entry in the rar file.
func (rw *rarWalker) Next() (archiveEntry, error) {
	fh, err := rw.r.Next()
	if err != nil {
		return nil, err
	}
	return &rarEntry{fh, rw.r}, nil
}

// rarEntry is an archiveEntry for Rar files.
type rarEntry struct {
	f *rardecode.FileHeader
	r io.Reader
}

// Name returns the name of the file.
func (r *rarEntry) Name() string {
	return r.f.Name
}

// Size returns the size of the file.
func (r *rarEntry) Size() int64 {
	return r.f.UnPackedSize
}

// Mode returns the mode of the file.
func (r *rarEntry) Mode() fs.FileMode {
	return r.f.Mode()
}

// HasUnixMode returns true if the archive was created on a unix host.
func (r *rarEntry) HasUnixMode() bool {
	return r.f.HostOS == rardecode.HostOSUnix
}

// ModTime returns the modification time of the file.
func (r *rarEntry) ModTime() time.Time {
	return r.f.ModificationTime
}

// IsRegular returns true if the file is a regular file.
func (r *rarEntry) IsRegular() bool {
	return !r.f.IsDir && r.f.Mode().IsRegular()
}

// IsDir returns true if the file is a directory.
func (r *rarEntry) IsDir() bool {
	return r.f.IsDir
}

// Open returns a reader for the file. The reader is only valid until the
// walker advances.
func (r *rarEntry) Open() (io.ReadCloser, error) {
	return io.NopCloser(r.r), nil
}
