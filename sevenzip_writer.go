// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io/fs"
	"time"
	"unicode/utf16"
)

// 7z container layout
// reference: DOC/7zFormat.txt of the 7-Zip source distribution
const (
	sevenZipSignatureHeaderSize = 32

	sevenZipEnd              = 0x00
	sevenZipHeader           = 0x01
	sevenZipMainStreamsInfo  = 0x04
	sevenZipFilesInfo        = 0x05
	sevenZipPackInfo         = 0x06
	sevenZipUnpackInfo       = 0x07
	sevenZipSubStreamsInfo   = 0x08
	sevenZipSize             = 0x09
	sevenZipCRC              = 0x0A
	sevenZipFolder           = 0x0B
	sevenZipCodersUnpackSize = 0x0C
	sevenZipEmptyStream      = 0x0E
	sevenZipEmptyFile        = 0x0F
	sevenZipName             = 0x11
	sevenZipMTime            = 0x14
	sevenZipWinAttributes    = 0x15

	// coder flag for attached properties
	sevenZipCoderHasProps = 0x20

	// windows attributes
	sevenZipAttributeArchive  = 0x20
	sevenZipAttributeUnixMode = 0x8000

	// 100ns intervals between 1601-01-01 and 1970-01-01
	filetimeEpochOffset = 116444736000000000
)

// sevenZipSignature are the first bytes of every 7z archive, followed by the
// format version 0.4.
var sevenZipSignature = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C, 0x00, 0x04}

// sevenZipFileInfo is the single file of a created 7z archive.
type sevenZipFileInfo struct {
	name    string
	mode    fs.FileMode
	modTime time.Time

	// coder, packSize, unpackSize and crc describe the stream of the file. A
	// file with unpackSize 0 is stored as empty stream without coder.
	coder      *sevenZipCoder
	packSize   uint64
	unpackSize uint64
	crc        uint32
}

// sevenZipHeaderBuffer serializes the numbers and properties of a 7z header.
type sevenZipHeaderBuffer struct {
	bytes.Buffer
}

// writeNumber writes v in the variable length encoding of 7z. The count of
// leading one bits of the first byte is the count of following bytes.
func (b *sevenZipHeaderBuffer) writeNumber(v uint64) {
	var first byte
	mask := byte(0x80)
	i := 0
	for ; i < 8; i++ {
		if v < uint64(1)<<(7*(i+1)) {
			first |= byte(v >> (8 * i))
			break
		}
		first |= mask
		mask >>= 1
	}
	b.WriteByte(first)
	for ; i > 0; i-- {
		b.WriteByte(byte(v))
		v >>= 8
	}
}

// writeUint32 writes v little endian.
func (b *sevenZipHeaderBuffer) writeUint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

// writeUint64 writes v little endian.
func (b *sevenZipHeaderBuffer) writeUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.Write(buf[:])
}

// writeProperty writes a file property with its size.
func (b *sevenZipHeaderBuffer) writeProperty(id byte, data []byte) {
	b.WriteByte(id)
	b.writeNumber(uint64(len(data)))
	b.Write(data)
}

// encodeSevenZipHeader returns the plain header of an archive that holds f.
func encodeSevenZipHeader(f *sevenZipFileInfo) []byte {
	var b sevenZipHeaderBuffer
	b.WriteByte(sevenZipHeader)

	if f.unpackSize > 0 {
		b.WriteByte(sevenZipMainStreamsInfo)

		// one packed stream right after the signature header
		b.WriteByte(sevenZipPackInfo)
		b.writeNumber(0)
		b.writeNumber(1)
		b.WriteByte(sevenZipSize)
		b.writeNumber(f.packSize)
		b.WriteByte(sevenZipEnd)

		// one folder with a single coder
		b.WriteByte(sevenZipUnpackInfo)
		b.WriteByte(sevenZipFolder)
		b.writeNumber(1)
		b.WriteByte(0) // not external
		b.writeNumber(1)
		flags := byte(len(f.coder.id))
		if len(f.coder.props) > 0 {
			flags |= sevenZipCoderHasProps
		}
		b.WriteByte(flags)
		b.Write(f.coder.id)
		if len(f.coder.props) > 0 {
			b.writeNumber(uint64(len(f.coder.props)))
			b.Write(f.coder.props)
		}
		b.WriteByte(sevenZipCodersUnpackSize)
		b.writeNumber(f.unpackSize)
		b.WriteByte(sevenZipEnd)

		// one sub stream with its checksum
		b.WriteByte(sevenZipSubStreamsInfo)
		b.WriteByte(sevenZipCRC)
		b.WriteByte(1) // all defined
		b.writeUint32(f.crc)
		b.WriteByte(sevenZipEnd)

		b.WriteByte(sevenZipEnd)
	}

	b.WriteByte(sevenZipFilesInfo)
	b.writeNumber(1)

	if f.unpackSize == 0 {
		b.writeProperty(sevenZipEmptyStream, []byte{0x80})
		b.writeProperty(sevenZipEmptyFile, []byte{0x80})
	}

	// utf-16 name with terminating zero, not external
	var name sevenZipHeaderBuffer
	name.WriteByte(0)
	for _, c := range utf16.Encode([]rune(f.name)) {
		name.WriteByte(byte(c))
		name.WriteByte(byte(c >> 8))
	}
	name.Write([]byte{0, 0})
	b.writeProperty(sevenZipName, name.Bytes())

	// all defined, not external
	var mtime sevenZipHeaderBuffer
	mtime.Write([]byte{1, 0})
	mtime.writeUint64(filetime(f.modTime))
	b.writeProperty(sevenZipMTime, mtime.Bytes())

	var attrib sevenZipHeaderBuffer
	attrib.Write([]byte{1, 0})
	attrib.writeUint32(sevenZipAttributes(f.mode))
	b.writeProperty(sevenZipWinAttributes, attrib.Bytes())

	b.WriteByte(sevenZipEnd)
	b.WriteByte(sevenZipEnd)
	return b.Bytes()
}

// encodeSevenZipSignatureHeader returns the signature header that points to a
// header of the given offset, behind the signature header, and content.
func encodeSevenZipSignatureHeader(headerOffset uint64, header []byte) []byte {
	var start sevenZipHeaderBuffer
	start.writeUint64(headerOffset)
	start.writeUint64(uint64(len(header)))
	start.writeUint32(crc32.ChecksumIEEE(header))

	var b sevenZipHeaderBuffer
	b.Write(sevenZipSignature)
	b.writeUint32(crc32.ChecksumIEEE(start.Bytes()))
	b.Write(start.Bytes())
	return b.Bytes()
}

// sevenZipAttributes returns the windows attributes of a regular file with
// the unix mode in the high 16 bits.
func sevenZipAttributes(mode fs.FileMode) uint32 {
	const unixRegular = 0o100000
	return sevenZipAttributeArchive | sevenZipAttributeUnixMode | (unixRegular|uint32(mode.Perm()))<<16
}

// filetime converts t into a windows FILETIME.
func filetime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + filetimeEpochOffset)
}
