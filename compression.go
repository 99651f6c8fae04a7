// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// CompressionMethod selects the algorithm used to compress the packed file.
type CompressionMethod int

const (
	// Deflated is the DEFLATE algorithm, the default for zip archives.
	Deflated CompressionMethod = iota

	// Stored keeps the data uncompressed.
	Stored

	// Zstd is the Zstandard algorithm.
	Zstd

	// Lzma is the LZMA algorithm.
	Lzma

	// Xz is the xz container format (zip only).
	Xz

	// Bzip2 is the bzip2 algorithm.
	Bzip2

	// Lzma2 is the LZMA2 algorithm, the default for 7z archives (7z only).
	Lzma2

	// Lz4 is the LZ4 frame format (7z only).
	Lz4
)

// compressionMethodNames maps the methods to their names used on the command line.
var compressionMethodNames = map[CompressionMethod]string{
	Deflated: "deflated",
	Stored:   "stored",
	Zstd:     "zstd",
	Lzma:     "lzma",
	Xz:       "xz",
	Bzip2:    "bzip2",
	Lzma2:    "lzma2",
	Lz4:      "lz4",
}

// String returns the name of the compression method.
func (m CompressionMethod) String() string {
	if name, ok := compressionMethodNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseCompressionMethod returns the [CompressionMethod] for name. The
// comparison is case insensitive.
func ParseCompressionMethod(name string) (CompressionMethod, error) {
	name = strings.ToLower(name)
	for m, n := range compressionMethodNames {
		if n == name {
			return m, nil
		}
	}
	return 0, newError(KindUnsupportedCompression, "", errors.Errorf("unknown compression method %q", name))
}

// ContentType is a hint about the data that is packed. It selects the
// compression effort of the chosen [CompressionMethod].
type ContentType int

const (
	// Mixed uses the default effort of the compression library.
	Mixed ContentType = iota

	// Doc is for well compressible data and uses the best compression.
	Doc

	// Media is for already compressed data and uses the fastest compression.
	Media
)

// contentTypeNames maps the content types to their names used on the command line.
var contentTypeNames = map[ContentType]string{
	Mixed: "mixed",
	Doc:   "doc",
	Media: "media",
}

// String returns the name of the content type.
func (c ContentType) String() string {
	if name, ok := contentTypeNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseContentType returns the [ContentType] for name. The comparison is
// case insensitive.
func ParseContentType(name string) (ContentType, error) {
	name = strings.ToLower(name)
	for c, n := range contentTypeNames {
		if n == name {
			return c, nil
		}
	}
	return 0, errors.Errorf("unknown content type %q", name)
}

// flateLevel returns the deflate compression level for the content type.
func (c ContentType) flateLevel() int {
	switch c {
	case Doc:
		return flate.BestCompression
	case Media:
		return flate.BestSpeed
	default:
		return flate.DefaultCompression
	}
}

// zstdLevel returns the zstandard encoder level for the content type.
func (c ContentType) zstdLevel() zstd.EncoderLevel {
	switch c {
	case Doc:
		return zstd.SpeedBestCompression
	case Media:
		return zstd.SpeedFastest
	default:
		return zstd.SpeedDefault
	}
}

// bzip2Level returns the bzip2 block size level for the content type.
func (c ContentType) bzip2Level() int {
	switch c {
	case Doc:
		return bzip2.BestCompression
	case Media:
		return bzip2.BestSpeed
	default:
		return bzip2.DefaultCompression
	}
}

// lz4Level returns the lz4 compression level for the content type.
func (c ContentType) lz4Level() lz4.CompressionLevel {
	switch c {
	case Doc:
		return lz4.Level9
	case Media:
		return lz4.Fast
	default:
		return lz4.Level5
	}
}

// dictCap returns the dictionary capacity for the LZMA family for the content type.
func (c ContentType) dictCap() int {
	switch c {
	case Doc:
		return 32 << 20
	case Media:
		return 1 << 20
	default:
		return 8 << 20
	}
}
