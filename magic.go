// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"bytes"
	"io"
	"os"
)

// magicBytes contains the magic bytes of the supported formats.
var magicBytes = map[Extension][][]byte{
	// reference: https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT
	ExtensionZip: {
		{0x50, 0x4B, 0x03, 0x04}, // local file header
		{0x50, 0x4B, 0x05, 0x06}, // end of central directory (empty archive)
		{0x50, 0x4B, 0x07, 0x08}, // spanned archive
	},
	Extension7z: {
		{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C},
	},
	ExtensionRar: {
		{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00},       // Rar 1.5
		{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, // Rar 5.0
	},
}

// maxHeaderLength is the maximum length of all magic bytes
var maxHeaderLength int

// init calculates the maximum header length
func init() {
	for _, mbs := range magicBytes {
		for _, mb := range mbs {
			if len(mb) > maxHeaderLength {
				maxHeaderLength = len(mb)
			}
		}
	}
}

// matchesMagicBytes checks if data starts with one of the magic bytes of ext.
func matchesMagicBytes(data []byte, ext Extension) bool {
	for _, mb := range magicBytes[ext] {
		if len(mb) > len(data) {
			continue
		}
		if bytes.Equal(mb, data[:len(mb)]) {
			return true
		}
	}
	return false
}

// checkHeader logs a warning if the header of the archive at path does not match
// the format tag ext. The format is always determined by the extension; the check
// only helps to explain a following decoding error. Self-extracting archives with
// a prefix are valid and also trigger the warning.
func checkHeader(path string, ext Extension, cfg *Config) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	header := make([]byte, maxHeaderLength)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return
	}
	if !matchesMagicBytes(header[:n], ext) {
		cfg.Logger().Warn("archive header does not match the file extension", "path", path, "extension", ext)
	}
}
