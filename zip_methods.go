// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"archive/zip"
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// zip method ids beside Store and Deflate
// reference: https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT 4.4.5
const (
	zipMethodBzip2 uint16 = 12
	zipMethodLzma  uint16 = 14
	zipMethodZstd  uint16 = 93
	zipMethodXz    uint16 = 95
)

// zipFlagLzmaEOS marks an lzma entry that is terminated by an end of stream marker.
const zipFlagLzmaEOS = 0x2

// zipLzmaVersion is the lzma sdk version and the size of the lzma properties
// that prefix an lzma entry.
var zipLzmaVersion = []byte{0x09, 0x14, 0x05, 0x00}

// setZipMethod sets the zip method id of m on fh.
func setZipMethod(fh *zip.FileHeader, m CompressionMethod) error {
	switch m {
	case Stored:
		fh.Method = zip.Store
	case Deflated:
		fh.Method = zip.Deflate
	case Bzip2:
		fh.Method = zipMethodBzip2
	case Lzma:
		fh.Method = zipMethodLzma
		fh.Flags |= zipFlagLzmaEOS
	case Zstd:
		fh.Method = zipMethodZstd
	case Xz:
		fh.Method = zipMethodXz
	default:
		return newError(KindUnsupportedCompression, "", errors.Errorf("zip archives cannot be compressed with %s", m))
	}
	return nil
}

// registerZipCompressors registers the compressors of all supported methods
// on zw. The compression effort is selected by c.
//
// The zip writer creates the compressor before it writes the local file
// header, so encoders that emit a stream header on construction are created
// on the first write.
func registerZipCompressors(zw *zip.Writer, c ContentType) {
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, c.flateLevel())
	})
	zw.RegisterCompressor(zipMethodBzip2, lazyCompressor(func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: c.bzip2Level()})
	}))
	zw.RegisterCompressor(zipMethodLzma, lazyCompressor(func(w io.Writer) (io.WriteCloser, error) {
		return newZipLzmaWriter(w, c)
	}))
	zw.RegisterCompressor(zipMethodZstd, lazyCompressor(func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(c.zstdLevel()))
	}))
	zw.RegisterCompressor(zipMethodXz, lazyCompressor(func(w io.Writer) (io.WriteCloser, error) {
		return xz.WriterConfig{DictCap: c.dictCap()}.NewWriter(w)
	}))
}

// lazyCompressor returns a compressor that calls newWriter on the first
// Write or on Close.
func lazyCompressor(newWriter func(io.Writer) (io.WriteCloser, error)) zip.Compressor {
	return func(w io.Writer) (io.WriteCloser, error) {
		return &lazyWriteCloser{w: w, newWriter: newWriter}, nil
	}
}

// lazyWriteCloser defers the creation of an encoder until data is written
// or the stream is closed.
type lazyWriteCloser struct {
	w         io.Writer
	newWriter func(io.Writer) (io.WriteCloser, error)
	wc        io.WriteCloser
}

// init creates the encoder once.
func (l *lazyWriteCloser) init() error {
	if l.wc != nil {
		return nil
	}
	wc, err := l.newWriter(l.w)
	if err != nil {
		return errors.Wrap(err, "cannot create encoder")
	}
	l.wc = wc
	return nil
}

// Write compresses p.
func (l *lazyWriteCloser) Write(p []byte) (int, error) {
	if err := l.init(); err != nil {
		return 0, err
	}
	return l.wc.Write(p)
}

// Close finishes the stream. An empty stream is still written completely.
func (l *lazyWriteCloser) Close() error {
	if err := l.init(); err != nil {
		return err
	}
	return l.wc.Close()
}

// registerZipDecompressors registers the decompressors of all supported methods on zr.
func registerZipDecompressors(zr *zip.Reader) {
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)
	zr.RegisterDecompressor(zipMethodBzip2, func(r io.Reader) io.ReadCloser {
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return errorReadCloser{err}
		}
		return br
	})
	zr.RegisterDecompressor(zipMethodLzma, newZipLzmaReader)
	zr.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		zd, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return errorReadCloser{err}
		}
		return zd.IOReadCloser()
	})
	zr.RegisterDecompressor(zipMethodXz, func(r io.Reader) io.ReadCloser {
		xr, err := xz.NewReader(r)
		if err != nil {
			return errorReadCloser{err}
		}
		return io.NopCloser(xr)
	})
}

// errorReadCloser fails every read with err. Decompressor constructors cannot
// return an error.
type errorReadCloser struct {
	err error
}

// Read returns the error.
func (e errorReadCloser) Read([]byte) (int, error) {
	return 0, e.err
}

// Close does nothing.
func (e errorReadCloser) Close() error {
	return nil
}

// zipLzmaWriter converts the classic lzma header into the header of an lzma
// zip entry: the sdk version and the properties, but no size.
type zipLzmaWriter struct {
	lw *lzma.Writer
}

// newZipLzmaWriter creates an lzma writer that writes an end of stream marker.
func newZipLzmaWriter(w io.Writer, c ContentType) (*zipLzmaWriter, error) {
	if _, err := w.Write(zipLzmaVersion); err != nil {
		return nil, err
	}
	lw, err := lzma.WriterConfig{DictCap: c.dictCap(), EOSMarker: true}.NewWriter(&headerStripWriter{w: w, from: 5, to: lzma.HeaderLen})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create lzma writer")
	}
	return &zipLzmaWriter{lw: lw}, nil
}

// Write compresses p.
func (z *zipLzmaWriter) Write(p []byte) (int, error) {
	return z.lw.Write(p)
}

// Close writes the end of stream marker and flushes the data.
func (z *zipLzmaWriter) Close() error {
	return z.lw.Close()
}

// newZipLzmaReader restores the classic lzma header with an unknown size in
// front of the compressed data of an lzma zip entry.
func newZipLzmaReader(r io.Reader) io.ReadCloser {
	prefix := make([]byte, len(zipLzmaVersion))
	if _, err := io.ReadFull(r, prefix); err != nil {
		return errorReadCloser{errors.Wrap(err, "cannot read lzma entry header")}
	}
	propsSize := int(prefix[2]) | int(prefix[3])<<8
	if propsSize != 5 {
		return errorReadCloser{errors.Errorf("invalid lzma properties size %d", propsSize)}
	}

	header := make([]byte, lzma.HeaderLen)
	if _, err := io.ReadFull(r, header[:propsSize]); err != nil {
		return errorReadCloser{errors.Wrap(err, "cannot read lzma properties")}
	}
	for i := propsSize; i < len(header); i++ {
		header[i] = 0xFF
	}

	lr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), r))
	if err != nil {
		return errorReadCloser{errors.Wrap(err, "cannot create lzma reader")}
	}
	return io.NopCloser(lr)
}

// headerStripWriter drops the bytes at the stream offsets [from, to).
type headerStripWriter struct {
	w        io.Writer
	from, to int64
	off      int64
}

// Write writes p without the dropped range.
func (h *headerStripWriter) Write(p []byte) (int, error) {
	n := len(p)
	start, end := h.off, h.off+int64(n)
	h.off = end

	// nothing to drop in this chunk
	if end <= h.from || start >= h.to {
		if _, err := h.w.Write(p); err != nil {
			return 0, err
		}
		return n, nil
	}

	if start < h.from {
		if _, err := h.w.Write(p[:h.from-start]); err != nil {
			return 0, err
		}
	}
	if end > h.to {
		if _, err := h.w.Write(p[h.to-start:]); err != nil {
			return 0, err
		}
	}
	return n, nil
}
