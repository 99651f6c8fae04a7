// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// createArchiveFile creates or truncates the archive file at path.
func createArchiveFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, ioError(KindOpenFailed, path, errors.Wrap(err, "cannot create archive"))
	}
	return f, nil
}

// finishArchiveFile closes f and records the archive size. If *errp is set
// after the back-end returned, the partial archive is removed unless
// [Config.KeepPartialArchive] is set. A close error is stored in *errp.
func finishArchiveFile(f *os.File, errp *error, cfg *Config, td *TelemetryData) {
	if stat, err := f.Stat(); err == nil {
		td.OutputSize = stat.Size()
	}

	if err := f.Close(); err != nil && *errp == nil {
		*errp = ioError(KindWriteFailed, f.Name(), errors.Wrap(err, "cannot close archive"))
	}
	if *errp == nil || cfg.KeepPartialArchive() {
		return
	}

	if err := os.Remove(f.Name()); err != nil {
		cfg.Logger().Warn("cannot remove partial archive", "path", f.Name(), "error", err)
		return
	}
	cfg.Logger().Debug("removed partial archive", "path", f.Name())
}

// sourceReader marks read errors of the packed file as [ErrReadFailed].
type sourceReader struct {
	ctx  context.Context
	r    io.Reader
	path string
}

// Read reads from the packed file, unless the context is canceled.
func (s *sourceReader) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		return n, newError(KindReadFailed, s.path, err)
	}
	return n, err
}

// copyContext copies src to dst and returns the number of copied bytes. Read
// errors are reported as [ErrReadFailed] on srcPath, write errors as
// [ErrWriteFailed] on dstPath.
func copyContext(ctx context.Context, dst io.Writer, src io.Reader, srcPath, dstPath string) (int64, error) {
	n, err := io.Copy(dst, &sourceReader{ctx: ctx, r: src, path: srcPath})
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return n, err
	}
	return n, ioError(KindWriteFailed, dstPath, err)
}
