// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Extension is the format tag of an archive. It is derived from the file
// extension and drives the dispatch to a format back-end.
type Extension string

const (
	// ExtensionZip is the format tag for zip archives.
	ExtensionZip Extension = "zip"

	// Extension7z is the format tag for 7z archives.
	Extension7z Extension = "7z"

	// ExtensionRar is the format tag for rar archives.
	ExtensionRar Extension = "rar"
)

// DefaultArchiveName is used if no archive name is given for creation.
const DefaultArchiveName = "new_archive.zip"

// ParseExtension returns the [Extension] for ext. A leading dot is ignored and the
// comparison is case insensitive. The second return value is false if ext is not
// a supported format tag.
func ParseExtension(ext string) (Extension, bool) {
	switch e := Extension(strings.ToLower(strings.TrimPrefix(ext, "."))); e {
	case ExtensionZip, Extension7z, ExtensionRar:
		return e, true
	default:
		return "", false
	}
}

// defaultCompressionMethod returns the compression method used if none is requested.
func (e Extension) defaultCompressionMethod() CompressionMethod {
	if e == Extension7z {
		return Lzma2
	}
	return Deflated
}

// Operation is the kind of archive operation a [Descriptor] is prepared for.
type Operation int

const (
	// OperationCreate packs a file into a new archive.
	OperationCreate Operation = iota

	// OperationExtract unpacks an archive into a directory.
	OperationExtract
)

// String returns the name of the operation.
func (o Operation) String() string {
	if o == OperationExtract {
		return "extract"
	}
	return "create"
}

// Descriptor is the normalized state of one archive operation. It is created with
// [FromCreateArgs] or [FromExtractArgs] and is read-only afterwards.
type Descriptor struct {
	archiveName       string
	path              string
	extension         Extension
	sourcePath        string
	destination       string
	compressionMethod CompressionMethod
	password          string
	contentType       ContentType
	operation         Operation

	methodSet bool
	notices   io.Writer
}

// DescriptorOption is a function pointer to implement the option pattern
type DescriptorOption func(*Descriptor)

// WithCompressionMethod options pattern function to select the compression method.
// Without this option the default of the archive format is used.
func WithCompressionMethod(m CompressionMethod) DescriptorOption {
	return func(d *Descriptor) {
		d.compressionMethod = m
		d.methodSet = true
	}
}

// WithContentType options pattern function to set the content type hint.
func WithContentType(c ContentType) DescriptorOption {
	return func(d *Descriptor) {
		d.contentType = c
	}
}

// WithPassword options pattern function to set the password used to decrypt 7z and rar archives.
func WithPassword(password string) DescriptorOption {
	return func(d *Descriptor) {
		d.password = password
	}
}

// WithNotices options pattern function to set the writer that receives notices about
// applied defaults.
func WithNotices(w io.Writer) DescriptorOption {
	return func(d *Descriptor) {
		d.notices = w
	}
}

// newDescriptor applies opts to a descriptor with default values.
func newDescriptor(op Operation, opts ...DescriptorOption) *Descriptor {
	d := &Descriptor{
		compressionMethod: Deflated,
		contentType:       Mixed,
		operation:         op,
		notices:           io.Discard,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notices == nil {
		d.notices = io.Discard
	}
	return d
}

// FromCreateArgs creates a [Descriptor] to pack source into the archive name.
//
// If name is empty, [DefaultArchiveName] is used. If name ends with a supported
// extension (zip, 7z, rar) it is used verbatim, otherwise ".zip" is appended and
// the archive is created as zip. source must be an existing regular file.
//
// The returned descriptor may carry the rar extension. Such a descriptor is valid,
// but [Create] rejects it with [ErrUnsupportedCreateFormat].
func FromCreateArgs(name string, source string, opts ...DescriptorOption) (*Descriptor, error) {
	d := newDescriptor(OperationCreate, opts...)

	// apply default name
	if len(name) == 0 {
		name = DefaultArchiveName
		fmt.Fprintf(d.notices, "Using default archive name: %s\n", name)
	}

	// final path component must be usable
	base := filepath.Base(name)
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, string(os.PathSeparator)) || base == "." || base == ".." || base == string(os.PathSeparator) {
		return nil, newError(KindInvalidName, name, errors.New("archive name needs a file name"))
	}

	// infer the format tag, default to zip
	ext := filepath.Ext(base)
	if e, ok := ParseExtension(ext); ok && len(ext) > 1 {
		d.extension = e
		d.path = name
	} else {
		d.extension = ExtensionZip
		d.path = strings.TrimSuffix(name, ".") + "." + string(ExtensionZip)
	}

	// stem of the final path component
	base = filepath.Base(d.path)
	d.archiveName = strings.TrimSuffix(base, filepath.Ext(base))
	if len(d.archiveName) == 0 {
		return nil, newError(KindInvalidName, name, errors.New("archive name has no stem"))
	}
	fmt.Fprintf(d.notices, "Archive name: %s, extension: %s\n", d.archiveName, d.extension)

	// check the file to pack
	if len(source) == 0 {
		return nil, newError(KindMissingSource, "", errors.New("provide a path to the file to pack"))
	}
	stat, err := os.Stat(source)
	if err != nil {
		return nil, ioError(KindOpenFailed, source, err)
	}
	if !stat.Mode().IsRegular() {
		return nil, newError(KindOpenFailed, source, errors.New("source is not a regular file"))
	}
	// writing the archive would truncate the file to pack
	if archive, err := os.Stat(d.path); err == nil && os.SameFile(stat, archive) {
		return nil, newError(KindInvalidName, d.path, errors.New("archive would overwrite the file to pack"))
	}
	d.sourcePath = source

	if !d.methodSet {
		d.compressionMethod = d.extension.defaultCompressionMethod()
	}
	if err := checkCompressionMethod(d.extension, d.compressionMethod); err != nil {
		return nil, err
	}

	return d, nil
}

// FromExtractArgs creates a [Descriptor] to unpack archive into destination.
//
// archive must exist and end with a supported extension. If destination is empty,
// the current working directory is used and a notice is written.
func FromExtractArgs(archive string, destination string, opts ...DescriptorOption) (*Descriptor, error) {
	d := newDescriptor(OperationExtract, opts...)

	if len(archive) == 0 {
		return nil, newError(KindMissingArchive, "", errors.New("provide a path to the archive"))
	}

	base := filepath.Base(archive)
	ext := filepath.Ext(base)
	if len(ext) <= 1 || ext == base {
		return nil, newError(KindMissingExtension, archive, errors.New("cannot determine archive type"))
	}
	e, ok := ParseExtension(ext)
	if !ok {
		return nil, newError(KindUnsupportedFormat, archive, errors.Errorf("archive type %q is not supported", strings.TrimPrefix(ext, ".")))
	}
	d.extension = e
	d.path = archive
	d.archiveName = strings.TrimSuffix(base, ext)

	// archive must be a readable regular file
	stat, err := os.Stat(archive)
	if err != nil {
		return nil, ioError(KindOpenFailed, archive, err)
	}
	if !stat.Mode().IsRegular() {
		return nil, newError(KindOpenFailed, archive, errors.New("archive is not a regular file"))
	}

	// default to the current working directory
	if len(destination) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, ioError(KindOpenFailed, ".", errors.Wrap(err, "cannot determine working directory"))
		}
		destination = cwd
		fmt.Fprintf(d.notices, "Destination not provided, extracting to current folder: %s\n", destination)
	}
	d.destination = destination

	return d, nil
}

// ArchiveName returns the stem of the archive file name.
func (d *Descriptor) ArchiveName() string {
	return d.archiveName
}

// Path returns the path of the archive file.
func (d *Descriptor) Path() string {
	return d.path
}

// Extension returns the format tag of the archive.
func (d *Descriptor) Extension() Extension {
	return d.extension
}

// SourcePath returns the file that is packed. It is empty for extraction.
func (d *Descriptor) SourcePath() string {
	return d.sourcePath
}

// Destination returns the directory the archive is extracted to. It is empty for creation.
func (d *Descriptor) Destination() string {
	return d.destination
}

// CompressionMethod returns the compression method for creation.
func (d *Descriptor) CompressionMethod() CompressionMethod {
	return d.compressionMethod
}

// Password returns the password used to decrypt the archive.
func (d *Descriptor) Password() string {
	return d.password
}

// ContentType returns the content type hint.
func (d *Descriptor) ContentType() ContentType {
	return d.contentType
}

// Operation returns the operation the descriptor was created for.
func (d *Descriptor) Operation() Operation {
	return d.operation
}
