// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package archiver

import (
	"os"
	"time"
)

// canApplyUnixMode determines whether unix permission bits from an archive
// entry are applied to the extracted path on this platform.
const canApplyUnixMode = false

// chtimes modifies the access and modified timestamps on path.
func chtimes(path string, atime, mtime time.Time) error {
	return os.Chtimes(path, atime, mtime)
}
