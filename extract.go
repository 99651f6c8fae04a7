// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// entryReader marks read errors of an entry as [ErrCorruptArchive] to tell them
// apart from write errors of the target.
type entryReader struct {
	r    io.Reader
	name string
}

// Read reads from the underlying entry.
func (e *entryReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		return n, newError(KindCorruptArchive, e.name, err)
	}
	return n, err
}

// dirAttributes are applied after all entries are extracted, so that
// read-only directories do not block the extraction of their content.
type dirAttributes struct {
	path    string
	mode    fs.FileMode
	unix    bool
	modTime time.Time
}

// extract walks all entries of src and writes files and directories below dst with t.
//
// Entries that fail the safe path policy are skipped and counted. Entries that are
// neither files nor directories are skipped and counted as unsupported. Any other
// error aborts the extraction.
func extract(ctx context.Context, t Target, dst string, src archiveWalker, cfg *Config, td *TelemetryData) error {
	if err := ensureDestination(t, dst, cfg); err != nil {
		return err
	}

	cfg.Logger().Info("start extraction", "type", src.Type(), "destination", dst)
	var (
		entries        int64
		extractedBytes int64
		dirs           []dirAttributes
	)

	for {
		// check if context is canceled
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ae, err := src.Next()
		switch {

		// if no more entries are found exit loop
		case err == io.EOF:
			applyDirAttributes(t, dirs, cfg)
			if td.SkippedEntries > 0 {
				fmt.Fprintf(cfg.Output(), "%d unsafe entries skipped\n", td.SkippedEntries)
			}
			return nil

		case err != nil:
			return ioError(KindCorruptArchive, "", errors.Wrap(err, "cannot read next entry"))

		case ae == nil:
			continue
		}

		entries++
		if err := cfg.CheckMaxFiles(entries); err != nil {
			return err
		}

		name := ae.Name()
		cfg.Logger().Debug("extract", "name", name, "size", ae.Size())
		switch {

		case ae.IsDir():
			if err := createDir(t, dst, name, cfg.CustomCreateDirMode()); err != nil {
				if errors.Is(err, errUnsafePath) {
					skipUnsafeEntry(name, err, cfg, td)
					continue
				}
				return err
			}
			dirs = append(dirs, dirAttributes{
				path:    filepath.Join(dst, entryPath(name)),
				mode:    ae.Mode(),
				unix:    ae.HasUnixMode(),
				modTime: ae.ModTime(),
			})
			td.ExtractedDirs++
			fmt.Fprintf(cfg.Output(), "directory: %s\n", name)

		case ae.IsRegular():
			if err := cfg.CheckExtractionSize(extractedBytes + ae.Size()); err != nil {
				return err
			}

			fin, err := ae.Open()
			if err != nil {
				return ioError(KindCorruptArchive, name, errors.Wrap(err, "cannot open entry"))
			}

			mode := cfg.CustomDecompressFileMode()
			if ae.HasUnixMode() && !cfg.DropFileAttributes() {
				mode = ae.Mode().Perm()
			}

			maxSize := int64(-1)
			if cfg.MaxExtractionSize() != -1 {
				maxSize = cfg.MaxExtractionSize() - extractedBytes
			}

			n, err := createFile(t, dst, name, &entryReader{r: fin, name: name}, mode, maxSize, cfg)
			fin.Close()
			extractedBytes += n
			td.OutputSize = extractedBytes
			if err != nil {
				if errors.Is(err, errUnsafePath) {
					skipUnsafeEntry(name, err, cfg, td)
					continue
				}
				return ioError(KindWriteFailed, filepath.Join(dst, entryPath(name)), err)
			}

			path := filepath.Join(dst, entryPath(name))
			if err := applyAttributes(t, path, ae.Mode(), ae.HasUnixMode(), ae.ModTime(), cfg); err != nil {
				return err
			}
			td.ExtractedFiles++
			fmt.Fprintf(cfg.Output(), "%d bytes: %s\n", n, name)

		default:
			td.UnsupportedEntries++
			td.LastUnsupportedEntry = name
			cfg.Logger().Warn("skipping unsupported entry", "name", name, "mode", ae.Mode().String())
			fmt.Fprintf(cfg.Output(), "skipped unsupported entry: %s\n", name)
		}
	}
}

// ensureDestination creates dst if it does not exist. An existing dst must be a
// directory or a symlink.
func ensureDestination(t Target, dst string, cfg *Config) error {
	stat, err := t.Lstat(dst)
	if err == nil {
		if !stat.IsDir() && stat.Mode()&fs.ModeSymlink == 0 {
			return newError(KindCreateDirFailed, dst, errors.New("destination is not a directory"))
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return ioError(KindOpenFailed, dst, err)
	}

	if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
		return ioError(KindCreateDirFailed, dst, err)
	}
	cfg.Logger().Info("created destination directory", "path", dst)
	return nil
}

// skipUnsafeEntry records an entry that was rejected by the safe path policy.
func skipUnsafeEntry(name string, reason error, cfg *Config, td *TelemetryData) {
	td.SkippedEntries++
	td.LastSkippedEntry = name
	cfg.Logger().Warn("skipping unsafe entry", "name", name, "reason", reason)
	fmt.Fprintf(cfg.Output(), "skipped unsafe entry: %s\n", name)
}

// applyAttributes applies unix permission bits and the modification time to path,
// unless [Config.DropFileAttributes] is set.
func applyAttributes(t Target, path string, mode fs.FileMode, unixMode bool, modTime time.Time, cfg *Config) error {
	if cfg.DropFileAttributes() {
		return nil
	}

	if unixMode && canApplyUnixMode {
		if err := t.Chmod(path, mode.Perm()); err != nil {
			return ioError(KindPermissionDenied, path, errors.Wrap(err, "cannot apply permissions"))
		}
	}

	if !modTime.IsZero() {
		if err := t.Chtimes(path, modTime, modTime); err != nil {
			cfg.Logger().Warn("cannot restore modification time", "path", path, "error", err)
		}
	}
	return nil
}

// applyDirAttributes applies the attributes of extracted directories in reverse archive order.
func applyDirAttributes(t Target, dirs []dirAttributes, cfg *Config) {
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := applyAttributes(t, d.path, d.mode, d.unix, d.modTime, cfg); err != nil {
			cfg.Logger().Warn("cannot apply directory attributes", "path", d.path, "error", err)
		}
	}
}
