// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"io/fs"

	"github.com/pkg/errors"
)

// Kind classifies an [Error]. The string value of a Kind is part of the
// user visible error message.
type Kind string

const (
	// input errors
	KindMissingSource           Kind = "MissingSource"
	KindMissingArchive          Kind = "MissingArchive"
	KindMissingExtension        Kind = "MissingExtension"
	KindUnsupportedFormat       Kind = "UnsupportedFormat"
	KindUnsupportedCreateFormat Kind = "UnsupportedCreateFormat"
	KindUnsupportedCompression  Kind = "UnsupportedCompression"
	KindInvalidName             Kind = "InvalidName"

	// i/o errors
	KindOpenFailed       Kind = "OpenFailed"
	KindReadFailed       Kind = "ReadFailed"
	KindWriteFailed      Kind = "WriteFailed"
	KindCreateDirFailed  Kind = "CreateDirFailed"
	KindPermissionDenied Kind = "PermissionDenied"

	// format errors
	KindCorruptArchive  Kind = "CorruptArchive"
	KindUnsafeEntryPath Kind = "UnsafeEntryPath"
	KindLimitExceeded   Kind = "LimitExceeded"
)

// Error is returned by descriptor construction, dispatch and the format back-ends.
type Error struct {
	// Kind is the error class
	Kind Kind

	// Path is the file or entry the error refers to, if any
	Path string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if len(e.Path) > 0 {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an [*Error] of the same [Kind]. This allows
// matching against the sentinel values with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrMissingSource is returned if no input file is given for archive creation.
	ErrMissingSource = &Error{Kind: KindMissingSource}

	// ErrMissingArchive is returned if no archive is given for extraction.
	ErrMissingArchive = &Error{Kind: KindMissingArchive}

	// ErrMissingExtension is returned if the archive path has no file extension.
	ErrMissingExtension = &Error{Kind: KindMissingExtension}

	// ErrUnsupportedFormat is returned if the archive extension is not zip, 7z or rar.
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}

	// ErrUnsupportedCreateFormat is returned if the format can only be extracted.
	ErrUnsupportedCreateFormat = &Error{Kind: KindUnsupportedCreateFormat}

	// ErrUnsupportedCompression is returned if a format cannot use the requested compression method.
	ErrUnsupportedCompression = &Error{Kind: KindUnsupportedCompression}

	// ErrInvalidName is returned if an archive name has no usable final path component.
	ErrInvalidName = &Error{Kind: KindInvalidName}

	// ErrOpenFailed is returned if a file cannot be opened or created.
	ErrOpenFailed = &Error{Kind: KindOpenFailed}

	// ErrReadFailed is returned if reading input data fails.
	ErrReadFailed = &Error{Kind: KindReadFailed}

	// ErrWriteFailed is returned if writing output data fails.
	ErrWriteFailed = &Error{Kind: KindWriteFailed}

	// ErrCreateDirFailed is returned if a directory cannot be created.
	ErrCreateDirFailed = &Error{Kind: KindCreateDirFailed}

	// ErrPermissionDenied is returned if the operating system denies access.
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}

	// ErrCorruptArchive is returned if the back-end cannot decode the archive.
	ErrCorruptArchive = &Error{Kind: KindCorruptArchive}

	// ErrUnsafeEntryPath marks entries that would be written outside of the destination.
	ErrUnsafeEntryPath = &Error{Kind: KindUnsafeEntryPath}

	// ErrLimitExceeded is returned if a configured limit is exceeded.
	ErrLimitExceeded = &Error{Kind: KindLimitExceeded}
)

// newError creates an [*Error] of kind k.
func newError(k Kind, path string, err error) *Error {
	return &Error{Kind: k, Path: path, Err: err}
}

// ioError creates an [*Error] of kind k, unless err is caused by missing
// permissions, which is reported as [KindPermissionDenied].
func ioError(k Kind, path string, err error) error {
	// keep already classified errors
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}

	if errors.Is(err, fs.ErrPermission) {
		k = KindPermissionDenied
	}
	return newError(k, path, err)
}
