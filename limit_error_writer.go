// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"io"

	"github.com/pkg/errors"
)

// limitErrorWriter is a wrapper around an io.Writer that fails with an
// [ErrLimitExceeded] error once more than L bytes are written.
type limitErrorWriter struct {
	W io.Writer // underlying writer
	L int64     // limit
	N int64     // number of bytes written
}

// Write writes up to the remaining limit from p to the underlying writer. If p
// does not fit, the part that fits is written and an [ErrLimitExceeded] error
// is returned.
func (l *limitErrorWriter) Write(p []byte) (n int, err error) {
	remaining := l.L - l.N
	if int64(len(p)) <= remaining {
		n, err = l.W.Write(p)
		l.N += int64(n)
		return n, err
	}

	if remaining > 0 {
		n, err = l.W.Write(p[:remaining])
		l.N += int64(n)
		if err != nil {
			return n, err
		}
	}
	return n, newError(KindLimitExceeded, "", errors.Errorf("maximum extraction size of %d bytes exceeded", l.L))
}

// limitWriter returns w limited to maxSize bytes. If maxSize < 0, w is returned.
func limitWriter(w io.Writer, maxSize int64) io.Writer {
	if maxSize < 0 {
		return w
	}
	return &limitErrorWriter{W: w, L: maxSize}
}
