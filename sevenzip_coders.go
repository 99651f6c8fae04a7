// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"encoding/binary"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz/lzma"
)

// sevenZipCoder describes the single coder of a 7z folder.
type sevenZipCoder struct {
	// id is the 7z method id of the coder
	id []byte

	// props are the coder properties stored in the folder
	props []byte

	// newWriter wraps w with the encoder
	newWriter func(w io.Writer) (io.WriteCloser, error)
}

// 7z method ids
// reference: DOC/Methods.txt of the 7-Zip source distribution
var (
	sevenZipMethodCopy    = []byte{0x00}
	sevenZipMethodLzma    = []byte{0x03, 0x01, 0x01}
	sevenZipMethodLzma2   = []byte{0x21}
	sevenZipMethodDeflate = []byte{0x04, 0x01, 0x08}
	sevenZipMethodBzip2   = []byte{0x04, 0x02, 0x02}
	sevenZipMethodZstd    = []byte{0x04, 0xF7, 0x11, 0x01}
	sevenZipMethodLz4     = []byte{0x04, 0xF7, 0x11, 0x04}
)

// lzmaDefaultProperties are the literal context bits, literal position bits
// and position bits written by the lzma coder.
var lzmaDefaultProperties = lzma.Properties{LC: 3, LP: 0, PB: 2}

// newSevenZipCoder returns the coder for m. The compression effort is selected
// by c. size is the number of bytes that will be encoded.
func newSevenZipCoder(m CompressionMethod, c ContentType, size int64) (*sevenZipCoder, error) {
	switch m {
	case Stored:
		return &sevenZipCoder{
			id: sevenZipMethodCopy,
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return nopWriteCloser{w}, nil
			},
		}, nil

	case Lzma:
		dictCap := c.dictCap()
		props := make([]byte, 5)
		props[0] = lzmaPropertiesByte(lzmaDefaultProperties)
		binary.LittleEndian.PutUint32(props[1:], uint32(dictCap))
		return &sevenZipCoder{
			id:    sevenZipMethodLzma,
			props: props,
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				// the classic header is replaced by the coder properties
				properties := lzmaDefaultProperties
				return lzma.WriterConfig{
					Properties:   &properties,
					DictCap:      dictCap,
					SizeInHeader: true,
					Size:         size,
				}.NewWriter(&headerStripWriter{w: w, from: 0, to: lzma.HeaderLen})
			},
		}, nil

	case Lzma2:
		dictCap := c.dictCap()
		return &sevenZipCoder{
			id:    sevenZipMethodLzma2,
			props: []byte{lzma2DictProperty(dictCap)},
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return lzma.Writer2Config{DictCap: dictCap}.NewWriter2(w)
			},
		}, nil

	case Deflated:
		return &sevenZipCoder{
			id: sevenZipMethodDeflate,
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return flate.NewWriter(w, c.flateLevel())
			},
		}, nil

	case Bzip2:
		return &sevenZipCoder{
			id: sevenZipMethodBzip2,
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: c.bzip2Level()})
			},
		}, nil

	case Zstd:
		return &sevenZipCoder{
			id: sevenZipMethodZstd,
			// library version 1.5 and level
			props: []byte{1, 5, byte(zstdLevelNumber(c.zstdLevel()))},
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				return zstd.NewWriter(w, zstd.WithEncoderLevel(c.zstdLevel()))
			},
		}, nil

	case Lz4:
		return &sevenZipCoder{
			id: sevenZipMethodLz4,
			// library version 1.9 and level
			props: []byte{1, 9, byte(lz4LevelNumber(c.lz4Level()))},
			newWriter: func(w io.Writer) (io.WriteCloser, error) {
				zw := lz4.NewWriter(w)
				if err := zw.Apply(lz4.CompressionLevelOption(c.lz4Level())); err != nil {
					return nil, errors.Wrap(err, "cannot configure lz4 writer")
				}
				return zw, nil
			},
		}, nil
	}

	return nil, newError(KindUnsupportedCompression, "", errors.Errorf("7z archives cannot be compressed with %s", m))
}

// lzmaPropertiesByte encodes p into the first byte of the lzma properties.
func lzmaPropertiesByte(p lzma.Properties) byte {
	return byte((p.PB*5+p.LP)*9 + p.LC)
}

// lzma2DictProperty returns the lzma2 dictionary property for the smallest
// dictionary size that holds dictCap bytes. The dictionary size of property
// p is (2 | (p & 1)) << (p / 2 + 11).
func lzma2DictProperty(dictCap int) byte {
	for p := 0; p < 40; p++ {
		if int64(2|(p&1))<<(p/2+11) >= int64(dictCap) {
			return byte(p)
		}
	}
	return 40
}

// zstdLevelNumber returns the numeric level of l as used by the zstd cli.
func zstdLevelNumber(l zstd.EncoderLevel) int {
	switch l {
	case zstd.SpeedFastest:
		return 1
	case zstd.SpeedBetterCompression:
		return 7
	case zstd.SpeedBestCompression:
		return 11
	default:
		return 3
	}
}

// lz4LevelNumber returns the numeric level of l as used by the lz4 cli.
func lz4LevelNumber(l lz4.CompressionLevel) int {
	switch l {
	case lz4.Fast:
		return 1
	case lz4.Level9:
		return 9
	case lz4.Level5:
		return 5
	default:
		return 0
	}
}

// nopWriteCloser is a writer with a Close method that does nothing.
type nopWriteCloser struct {
	io.Writer
}

// Close does nothing.
func (nopWriteCloser) Close() error {
	return nil
}
