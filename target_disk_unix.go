// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package archiver

import (
	"time"

	"golang.org/x/sys/unix"
)

// canApplyUnixMode determines whether unix permission bits from an archive
// entry are applied to the extracted path on this platform.
const canApplyUnixMode = true

// chtimes modifies the access and modified timestamps on path with
// nanosecond precision.
func chtimes(path string, atime, mtime time.Time) error {
	return unix.UtimesNano(path, []unix.Timespec{
		unixTimespec(atime),
		unixTimespec(mtime),
	})
}

// unixTimespec converts a time.Time to a unix.Timespec.
func unixTimespec(t time.Time) unix.Timespec {
	return unix.NsecToTimespec(t.UnixNano())
}
