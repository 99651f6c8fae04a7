// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// zipEntryMode is the unix mode stamped on packed zip entries.
const zipEntryMode fs.FileMode = 0755

// zip host systems that store unix permission bits in the external attributes
// reference: https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT 4.4.2
const (
	zipCreatorUnix   = 3
	zipCreatorMacOSX = 19
)

// createZip packs the source file as single entry into a new zip archive.
func createZip(ctx context.Context, p packParams, cfg *Config, td *TelemetryData) (err error) {
	// open the file to pack
	src, err := os.Open(p.sourcePath)
	if err != nil {
		return ioError(KindOpenFailed, p.sourcePath, err)
	}
	defer src.Close()

	stat, err := src.Stat()
	if err != nil {
		return ioError(KindReadFailed, p.sourcePath, err)
	}
	td.InputSize = stat.Size()

	// create archive, truncate existing file
	out, err := createArchiveFile(p.archivePath)
	if err != nil {
		return err
	}
	defer finishArchiveFile(out, &err, cfg, td)

	zw := zip.NewWriter(out)
	registerZipCompressors(zw, p.content)

	fh := &zip.FileHeader{
		Name:     filepath.Base(p.sourcePath),
		Modified: stat.ModTime(),
	}
	fh.SetMode(zipEntryMode)
	if err := setZipMethod(fh, p.method); err != nil {
		return err
	}

	cfg.Logger().Debug("packing file", "name", fh.Name, "method", p.method, "size", stat.Size())
	w, err := zw.CreateHeader(fh)
	if err != nil {
		return ioError(KindWriteFailed, p.archivePath, errors.Wrap(err, "cannot create zip entry"))
	}
	if _, err := copyContext(ctx, w, src, p.sourcePath, p.archivePath); err != nil {
		return err
	}

	// finalize central directory before the file is released
	if err := zw.Close(); err != nil {
		return ioError(KindWriteFailed, p.archivePath, errors.Wrap(err, "cannot finalize zip archive"))
	}
	return nil
}

// unpackZip extracts all entries of the zip archive to the destination.
func unpackZip(ctx context.Context, t Target, p unpackParams, cfg *Config, td *TelemetryData) error {
	cfg.Logger().Info("extracting zip")

	zr, err := zip.OpenReader(p.archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return ioError(KindOpenFailed, p.archivePath, err)
		}
		return newError(KindCorruptArchive, p.archivePath, errors.Wrap(err, "cannot create zip reader"))
	}
	defer zr.Close()
	registerZipDecompressors(&zr.Reader)

	return extract(ctx, t, p.destination, &zipWalker{zr: &zr.Reader}, cfg, td)
}

// zipWalker is a walker for zip files
type zipWalker struct {
	zr *zip.Reader
	fp int
}

// Type returns the file extension for zip files
func (z *zipWalker) Type() string {
	return string(ExtensionZip)
}

// Next returns the next entry of the central directory
func (z *zipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.zr.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	return &zipEntry{z.zr.File[z.fp]}, nil
}

// zipEntry is an entry in a zip archive
type zipEntry struct {
	zf *zip.File
}

// Name returns the name of the entry
func (z *zipEntry) Name() string {
	return z.zf.Name
}

// Size returns the uncompressed size of the entry
func (z *zipEntry) Size() int64 {
	return int64(z.zf.UncompressedSize64)
}

// Mode returns the mode of the entry
func (z *zipEntry) Mode() fs.FileMode {
	return z.zf.Mode()
}

// HasUnixMode returns true if the entry was created on a unix host and
// carries permission bits.
func (z *zipEntry) HasUnixMode() bool {
	switch z.zf.CreatorVersion >> 8 {
	case zipCreatorUnix, zipCreatorMacOSX:
		return z.zf.ExternalAttrs>>16 != 0
	}
	return false
}

// ModTime returns the modification time of the entry
func (z *zipEntry) ModTime() time.Time {
	return z.zf.Modified
}

// IsDir returns true if the entry is a directory
func (z *zipEntry) IsDir() bool {
	return z.zf.Mode().IsDir()
}

// IsRegular returns true if the entry is a regular file
func (z *zipEntry) IsRegular() bool {
	return z.zf.Mode().IsRegular()
}

// Open returns a reader for the entry
func (z *zipEntry) Open() (io.ReadCloser, error) {
	return z.zf.Open()
}
