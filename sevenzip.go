// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"bufio"
	"context"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/pkg/errors"
)

// sevenZipEntryMode is the unix mode stamped on packed 7z entries.
const sevenZipEntryMode fs.FileMode = 0755

// create7z packs the source file as single entry into a new 7z archive. The
// packed stream is written behind a placeholder for the signature header, which
// is filled in after the header is appended.
func create7z(ctx context.Context, p packParams, cfg *Config, td *TelemetryData) (err error) {
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

	coder, err := newSevenZipCoder(p.method, p.content, stat.Size())
	if err != nil {
		return err
	}

	// create archive, truncate existing file
	out, err := createArchiveFile(p.archivePath)
	if err != nil {
		return err
	}
	defer finishArchiveFile(out, &err, cfg, td)

	fi := &sevenZipFileInfo{
		name:    filepath.Base(p.sourcePath),
		mode:    sevenZipEntryMode,
		modTime: stat.ModTime(),
		coder:   coder,
	}

	bw := bufio.NewWriter(out)
	if _, err := bw.Write(make([]byte, sevenZipSignatureHeaderSize)); err != nil {
		return ioError(KindWriteFailed, p.archivePath, err)
	}

	if stat.Size() > 0 {
		cfg.Logger().Debug("packing file", "name", fi.name, "method", p.method, "size", stat.Size())
		if err := writeSevenZipStream(ctx, bw, src, fi, p); err != nil {
			return err
		}
	}

	header := encodeSevenZipHeader(fi)
	if _, err := bw.Write(header); err != nil {
		return ioError(KindWriteFailed, p.archivePath, err)
	}
	if err := bw.Flush(); err != nil {
		return ioError(KindWriteFailed, p.archivePath, err)
	}

	// point the signature header to the header
	if _, err := out.WriteAt(encodeSevenZipSignatureHeader(fi.packSize, header), 0); err != nil {
		return ioError(KindWriteFailed, p.archivePath, errors.Wrap(err, "cannot write signature header"))
	}
	return nil
}

// writeSevenZipStream encodes src with the coder of fi into w and records the
// sizes and the checksum in fi.
func writeSevenZipStream(ctx context.Context, w io.Writer, src io.Reader, fi *sevenZipFileInfo, p packParams) error {
	cw := &countWriter{w: w}
	enc, err := fi.coder.newWriter(cw)
	if err != nil {
		return newError(KindWriteFailed, p.archivePath, errors.Wrapf(err, "cannot create %s encoder", p.method))
	}

	crc := crc32.NewIEEE()
	n, err := copyContext(ctx, io.MultiWriter(enc, crc), src, p.sourcePath, p.archivePath)
	if err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return ioError(KindWriteFailed, p.archivePath, errors.Wrapf(err, "cannot finish %s stream", p.method))
	}

	fi.packSize = uint64(cw.n)
	fi.unpackSize = uint64(n)
	fi.crc = crc.Sum32()
	return nil
}

// countWriter counts the bytes written to w.
type countWriter struct {
	w io.Writer
	n int64
}

// Write writes p to the underlying writer.
func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// unpack7z extracts all entries of the 7z archive to the destination. A password
// is used for encrypted archives.
func unpack7z(ctx context.Context, t Target, p unpackParams, cfg *Config, td *TelemetryData) error {
	cfg.Logger().Info("extracting 7zip")

	var (
		r   *sevenzip.ReadCloser
		err error
	)
	if len(p.password) > 0 {
		r, err = sevenzip.OpenReaderWithPassword(p.archivePath, p.password)
	} else {
		r, err = sevenzip.OpenReader(p.archivePath)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return ioError(KindOpenFailed, p.archivePath, err)
		}
		return newError(KindCorruptArchive, p.archivePath, errors.Wrap(err, "cannot create 7zip reader"))
	}
	defer r.Close()

	return extract(ctx, t, p.destination, &sevenZipWalker{r: &r.Reader}, cfg, td)
}

// sevenZipWalker is a walker for 7zip files
type sevenZipWalker struct {
	r  *sevenzip.Reader
	fp int
}

// Type returns the file extension for 7zip files
func (z *sevenZipWalker) Type() string {
	return string(Extension7z)
}

// Next returns the next entry in the 7zip file
func (z *sevenZipWalker) Next() (archiveEntry, error) {
	if z.fp >= len(z.r.File) {
		return nil, io.EOF
	}
	defer func() { z.fp++ }()
	return &sevenZipEntry{z.r.File[z.fp]}, nil
}

// sevenZipEntry is an entry in a 7zip file
type sevenZipEntry struct {
	f *sevenzip.File
}

// Name returns the name of the 7zip entry
func (z *sevenZipEntry) Name() string {
	return z.f.Name
}

// Size returns the size of the 7zip entry
func (z *sevenZipEntry) Size() int64 {
	return z.f.FileInfo().Size()
}

// Mode returns the mode of the 7zip entry
func (z *sevenZipEntry) Mode() fs.FileMode {
	return z.f.FileInfo().Mode()
}

// HasUnixMode returns true if the high 16 bits of the attributes carry a unix mode
func (z *sevenZipEntry) HasUnixMode() bool {
	return z.f.Attributes&sevenZipAttributeUnixMode != 0 && z.f.Attributes>>16 != 0
}

// ModTime returns the modification time of the 7zip entry
func (z *sevenZipEntry) ModTime() time.Time {
	return z.f.Modified
}

// IsRegular returns true if the 7zip entry is a regular file
func (z *sevenZipEntry) IsRegular() bool {
	return z.f.FileInfo().Mode().IsRegular()
}

// IsDir returns true if the 7zip entry is a directory
func (z *sevenZipEntry) IsDir() bool {
	return z.f.FileInfo().IsDir()
}

// Open returns a reader for the 7zip entry
func (z *sevenZipEntry) Open() (io.ReadCloser, error) {
	return z.f.Open()
}
