// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	archiver "github.com/hashicorp/go-archiver"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// extractTestArchive extracts the archive at path to dst and returns the telemetry data and
// the output of the operation
func extractTestArchive(t *testing.T, path, dst string, opts ...archiver.ConfigOption) (*archiver.TelemetryData, string, error) {
	t.Helper()

	d, err := archiver.FromExtractArgs(path, dst)
	if err != nil {
		t.Fatalf("cannot create descriptor: %s", err)
	}

	var (
		td  *archiver.TelemetryData
		out bytes.Buffer
	)
	opts = append(opts, archiver.WithOutput(&out), archiver.WithTelemetryHook(captureTelemetry(&td)))
	err = archiver.Extract(context.Background(), d, archiver.NewConfig(opts...))
	return td, out.String(), err
}

func TestCreateZip(t *testing.T) {
	content := strings.Repeat("foobar content\n", 1000)

	cases := []struct {
		name   string
		method archiver.CompressionMethod
		zipID  uint16
	}{
		{name: "stored", method: archiver.Stored, zipID: zip.Store},
		{name: "deflated", method: archiver.Deflated, zipID: zip.Deflate},
		{name: "bzip2", method: archiver.Bzip2, zipID: 12},
		{name: "lzma", method: archiver.Lzma, zipID: 14},
		{name: "zstd", method: archiver.Zstd, zipID: 93},
		{name: "xz", method: archiver.Xz, zipID: 95},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmp := t.TempDir()
			src := createTestFile(t, filepath.Join(tmp, "source.txt"), content)

			d, err := archiver.FromCreateArgs(filepath.Join(tmp, "archive.zip"), src, archiver.WithCompressionMethod(tc.method))
			if err != nil {
				t.Fatalf("cannot create descriptor: %s", err)
			}
			var out bytes.Buffer
			if err := archiver.Create(context.Background(), d, archiver.NewConfig(archiver.WithOutput(&out))); err != nil {
				t.Fatalf("cannot create archive: %s", err)
			}
			if want := "written to " + d.Path(); !strings.Contains(out.String(), want) {
				t.Errorf("output %q does not contain %q", out.String(), want)
			}

			// check the central directory
			zr, err := zip.OpenReader(d.Path())
			if err != nil {
				t.Fatalf("cannot open created archive: %s", err)
			}
			defer zr.Close()
			if len(zr.File) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(zr.File))
			}
			if zr.File[0].Name != "source.txt" {
				t.Errorf("expected entry name source.txt, got %s", zr.File[0].Name)
			}
			if zr.File[0].Method != tc.zipID {
				t.Errorf("expected method %d, got %d", tc.zipID, zr.File[0].Method)
			}
			if zr.File[0].Mode().Perm() != 0755 {
				t.Errorf("expected mode 0755, got %s", zr.File[0].Mode())
			}

			// the archive starts with the local file header of the entry
			if _, err := zr.File[0].DataOffset(); err != nil {
				t.Fatalf("cannot locate entry data: %s", err)
			}
			if head := readTestFile(t, d.Path())[:4]; head != "PK\x03\x04" {
				t.Fatalf("archive starts with %x, want local file header", head)
			}
			if got := readPlainZipEntry(t, zr.File[0]); got != content {
				t.Errorf("plain reader content differs, got %d bytes, want %d bytes", len(got), len(content))
			}

			// round trip
			dst := filepath.Join(tmp, "out")
			if _, _, err := extractTestArchive(t, d.Path(), dst); err != nil {
				t.Fatalf("cannot extract created archive: %s", err)
			}
			if got := readTestFile(t, filepath.Join(dst, "source.txt")); got != content {
				t.Errorf("extracted content differs, got %d bytes, want %d bytes", len(got), len(content))
			}
		})
	}
}

// readPlainZipEntry decodes f with archive/zip and the compression libraries,
// without the decompressors registered by the archiver
func readPlainZipEntry(t *testing.T, f *zip.File) string {
	t.Helper()

	var r io.Reader
	switch f.Method {
	case zip.Store, zip.Deflate:
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("cannot open entry: %s", err)
		}
		defer rc.Close()
		r = rc

	default:
		raw, err := f.OpenRaw()
		if err != nil {
			t.Fatalf("cannot open raw entry: %s", err)
		}
		switch f.Method {
		case 12:
			br, err := bzip2.NewReader(raw, nil)
			if err != nil {
				t.Fatal(err)
			}
			r = br
		case 14:
			// sdk version, properties size and properties, the classic header
			// has an unknown size instead
			prefix := make([]byte, 9)
			if _, err := io.ReadFull(raw, prefix); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(prefix[:4], []byte{0x09, 0x14, 0x05, 0x00}) || prefix[4] != 0x5D {
				t.Fatalf("unexpected lzma entry header %x", prefix)
			}
			header := append(prefix[4:], bytes.Repeat([]byte{0xFF}, 8)...)
			lr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), raw))
			if err != nil {
				t.Fatal(err)
			}
			r = lr
		case 93:
			zd, err := zstd.NewReader(raw)
			if err != nil {
				t.Fatal(err)
			}
			defer zd.Close()
			r = zd
		case 95:
			xr, err := xz.NewReader(raw)
			if err != nil {
				t.Fatal(err)
			}
			r = xr
		default:
			t.Fatalf("unexpected method %d", f.Method)
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("cannot decode entry: %s", err)
	}
	return string(data)
}

func TestCreateZip_emptyFile(t *testing.T) {
	for _, method := range []archiver.CompressionMethod{archiver.Bzip2, archiver.Lzma, archiver.Zstd, archiver.Xz} {
		t.Run(method.String(), func(t *testing.T) {
			tmp := t.TempDir()
			src := createTestFile(t, filepath.Join(tmp, "empty.txt"), "")

			d, err := archiver.FromCreateArgs(filepath.Join(tmp, "archive.zip"), src, archiver.WithCompressionMethod(method))
			if err != nil {
				t.Fatal(err)
			}
			if err := archiver.Create(context.Background(), d, nil); err != nil {
				t.Fatalf("cannot create archive: %s", err)
			}

			zr, err := zip.OpenReader(d.Path())
			if err != nil {
				t.Fatalf("cannot open created archive: %s", err)
			}
			defer zr.Close()
			if got := readPlainZipEntry(t, zr.File[0]); got != "" {
				t.Errorf("expected empty entry, got %q", got)
			}
		})
	}
}

func TestCreateZip_nameWithoutDirectory(t *testing.T) {
	tmp := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmp, "a", "b"), 0755); err != nil {
		t.Fatal(err)
	}
	src := createTestFile(t, filepath.Join(tmp, "a", "b", "c.txt"), "hello")

	d, err := archiver.FromCreateArgs(filepath.Join(tmp, "out"), src)
	if err != nil {
		t.Fatal(err)
	}
	if err := archiver.Create(context.Background(), d, nil); err != nil {
		t.Fatal(err)
	}
	if d.Path() != filepath.Join(tmp, "out.zip") {
		t.Errorf("expected archive %s, got %s", filepath.Join(tmp, "out.zip"), d.Path())
	}

	zr, err := zip.OpenReader(d.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	if zr.File[0].Name != "c.txt" {
		t.Errorf("expected entry name c.txt, got %s", zr.File[0].Name)
	}
}

func TestCreateZip_removePartialArchive(t *testing.T) {
	cases := []struct {
		name string
		keep bool
	}{
		{name: "remove partial archive", keep: false},
		{name: "keep partial archive", keep: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmp := t.TempDir()
			src := createTestFile(t, filepath.Join(tmp, "source.txt"), "content")
			d, err := archiver.FromCreateArgs(filepath.Join(tmp, "archive.zip"), src)
			if err != nil {
				t.Fatal(err)
			}

			// a canceled context aborts the copy
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err = archiver.Create(ctx, d, archiver.NewConfig(archiver.WithKeepPartialArchive(tc.keep)))
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}

			_, err = os.Stat(d.Path())
			if exists := err == nil; exists != tc.keep {
				t.Errorf("archive exists = %v, want %v", exists, tc.keep)
			}
		})
	}
}

func TestExtractZip(t *testing.T) {
	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "test.zip", []archiveContent{
		{Name: "sub/", Mode: fs.ModeDir | 0755},
		{Name: "sub/file.txt", Content: []byte("foobar content"), Mode: 0644},
		{Name: "deep/nested/file.txt", Content: []byte("nested")},
		{Name: "empty.txt"},
	})

	dst := filepath.Join(tmp, "out")
	td, out, err := extractTestArchive(t, archive, dst)
	if err != nil {
		t.Fatalf("cannot extract: %s", err)
	}

	if got := readTestFile(t, filepath.Join(dst, "sub", "file.txt")); got != "foobar content" {
		t.Errorf("unexpected content %q", got)
	}
	if got := readTestFile(t, filepath.Join(dst, "deep", "nested", "file.txt")); got != "nested" {
		t.Errorf("unexpected content %q", got)
	}
	if got := readTestFile(t, filepath.Join(dst, "empty.txt")); got != "" {
		t.Errorf("unexpected content %q", got)
	}

	if td.ExtractedFiles != 3 || td.ExtractedDirs != 1 {
		t.Errorf("expected 3 files and 1 directory, got %d files and %d directories", td.ExtractedFiles, td.ExtractedDirs)
	}
	if td.Operation != "extract" || td.ArchiveType != "zip" {
		t.Errorf("unexpected telemetry data %s", td)
	}

	// progress lines in archive order
	for _, line := range []string{"directory: sub/", "14 bytes: sub/file.txt", "6 bytes: deep/nested/file.txt", "0 bytes: empty.txt"} {
		if !strings.Contains(out, line) {
			t.Errorf("output %q does not contain %q", out, line)
		}
	}
	if strings.Index(out, "sub/file.txt") > strings.Index(out, "empty.txt") {
		t.Errorf("output not in archive order: %q", out)
	}
}

func TestExtractZip_unsafeEntries(t *testing.T) {
	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "slip.zip", []archiveContent{
		{Name: "../escape.txt", Content: []byte("evil")},
		{Name: "/absolute.txt", Content: []byte("evil")},
		{Name: "sub/../../escape-dir/", Mode: fs.ModeDir | 0755},
		{Name: "ok.txt", Content: []byte("good")},
	})

	dst := filepath.Join(tmp, "out")
	td, out, err := extractTestArchive(t, archive, dst)
	if err != nil {
		t.Fatalf("unsafe entries must be skipped without error: %s", err)
	}

	if got := readTestFile(t, filepath.Join(dst, "ok.txt")); got != "good" {
		t.Errorf("unexpected content %q", got)
	}
	for _, p := range []string{filepath.Join(tmp, "escape.txt"), filepath.Join(tmp, "escape-dir"), filepath.Join(dst, "absolute.txt")} {
		if _, err := os.Stat(p); err == nil {
			t.Errorf("unsafe entry was written to %s", p)
		}
	}

	if td.SkippedEntries != 3 {
		t.Errorf("expected 3 skipped entries, got %d", td.SkippedEntries)
	}
	if !strings.Contains(out, "skipped unsafe entry: ../escape.txt") {
		t.Errorf("output %q does not report the skipped entry", out)
	}
	if !strings.Contains(out, "3 unsafe entries skipped") {
		t.Errorf("output %q does not contain the summary", out)
	}
}

func TestExtractZip_symlinkInDestination(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	tmp := t.TempDir()
	outside := filepath.Join(tmp, "outside")
	dst := filepath.Join(tmp, "out")
	for _, dir := range []string{outside, dst} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(dst, "link")); err != nil {
		t.Fatal(err)
	}

	archive := createTestZip(t, tmp, "link.zip", []archiveContent{
		{Name: "link/file.txt", Content: []byte("evil")},
	})
	td, _, err := extractTestArchive(t, archive, dst)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(outside, "file.txt")); err == nil {
		t.Errorf("file was written through a symlink")
	}
	if td.SkippedEntries != 1 {
		t.Errorf("expected 1 skipped entry, got %d", td.SkippedEntries)
	}
}

func TestExtractZip_unsupportedEntries(t *testing.T) {
	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "symlink.zip", []archiveContent{
		{Name: "link", Content: []byte("/etc/passwd"), Mode: fs.ModeSymlink | 0777},
		{Name: "file.txt", Content: []byte("content")},
	})

	dst := filepath.Join(tmp, "out")
	td, out, err := extractTestArchive(t, archive, dst)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(filepath.Join(dst, "link")); err == nil {
		t.Errorf("symlink entry was extracted")
	}
	if td.UnsupportedEntries != 1 || td.LastUnsupportedEntry != "link" {
		t.Errorf("unexpected telemetry data %s", td)
	}
	if !strings.Contains(out, "skipped unsupported entry: link") {
		t.Errorf("output %q does not report the unsupported entry", out)
	}
}

func TestExtractZip_permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits are not applied on windows")
	}

	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "perm.zip", []archiveContent{
		{Name: "run.sh", Content: []byte("#!/bin/sh\n"), Mode: 0750},
		{Name: "ro.txt", Content: []byte("read only"), Mode: 0444},
	})

	cases := []struct {
		name string
		opts []archiver.ConfigOption
		want map[string]fs.FileMode
	}{
		{
			name: "apply permission bits",
			want: map[string]fs.FileMode{"run.sh": 0750, "ro.txt": 0444},
		},
		{
			name: "drop file attributes",
			opts: []archiver.ConfigOption{
				archiver.WithDropFileAttributes(true),
				archiver.WithCustomDecompressFileMode(0600),
			},
			want: map[string]fs.FileMode{"run.sh": 0600, "ro.txt": 0600},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dst := t.TempDir()
			if _, _, err := extractTestArchive(t, archive, dst, tc.opts...); err != nil {
				t.Fatal(err)
			}
			for name, want := range tc.want {
				stat, err := os.Stat(filepath.Join(dst, name))
				if err != nil {
					t.Fatal(err)
				}
				if stat.Mode().Perm() != want {
					t.Errorf("%s: expected mode %s, got %s", name, want, stat.Mode().Perm())
				}
			}
		})
	}
}

func TestExtractZip_modTime(t *testing.T) {
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "mtime.zip", []archiveContent{
		{Name: "file.txt", Content: []byte("content"), Modified: mtime},
	})

	dst := filepath.Join(tmp, "out")
	if _, _, err := extractTestArchive(t, archive, dst); err != nil {
		t.Fatal(err)
	}
	stat, err := os.Stat(filepath.Join(dst, "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !stat.ModTime().Equal(mtime) {
		t.Errorf("expected modification time %s, got %s", mtime, stat.ModTime())
	}
}

func TestExtractZip_idempotent(t *testing.T) {
	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "twice.zip", []archiveContent{
		{Name: "sub/", Mode: fs.ModeDir | 0755},
		{Name: "sub/file.txt", Content: []byte("content"), Mode: 0444},
	})

	dst := filepath.Join(tmp, "out")
	for i := 0; i < 2; i++ {
		if _, _, err := extractTestArchive(t, archive, dst); err != nil {
			t.Fatalf("extraction %d failed: %s", i, err)
		}
	}
	if got := readTestFile(t, filepath.Join(dst, "sub", "file.txt")); got != "content" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestExtractZip_readOnlyDirTwice(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits are not applied on windows")
	}

	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "ro.zip", []archiveContent{
		{Name: "ro/", Mode: fs.ModeDir | 0555},
		{Name: "ro/sub/", Mode: fs.ModeDir | 0500},
		{Name: "ro/sub/file.txt", Content: []byte("content"), Mode: 0444},
	})

	dst := filepath.Join(tmp, "out")
	t.Cleanup(func() {
		// allow t.TempDir to remove the tree
		_ = os.Chmod(filepath.Join(dst, "ro", "sub"), 0755)
		_ = os.Chmod(filepath.Join(dst, "ro"), 0755)
	})

	for i := 0; i < 2; i++ {
		if _, _, err := extractTestArchive(t, archive, dst); err != nil {
			t.Fatalf("extraction %d failed: %s", i, err)
		}
	}

	if got := readTestFile(t, filepath.Join(dst, "ro", "sub", "file.txt")); got != "content" {
		t.Errorf("unexpected content %q", got)
	}
	for name, want := range map[string]fs.FileMode{"ro": 0555, filepath.Join("ro", "sub"): 0500} {
		stat, err := os.Stat(filepath.Join(dst, name))
		if err != nil {
			t.Fatal(err)
		}
		if stat.Mode().Perm() != want {
			t.Errorf("%s: expected mode %s, got %s", name, want, stat.Mode().Perm())
		}
	}
}

func TestExtractZip_limits(t *testing.T) {
	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "limits.zip", []archiveContent{
		{Name: "a.txt", Content: []byte("foobar content")},
		{Name: "b.txt", Content: []byte("foobar content")},
	})

	cases := []struct {
		name        string
		opts        []archiver.ConfigOption
		expectError bool
	}{
		{name: "default limits", expectError: false},
		{name: "max files", opts: []archiver.ConfigOption{archiver.WithMaxFiles(1)}, expectError: true},
		{name: "max extraction size", opts: []archiver.ConfigOption{archiver.WithMaxExtractionSize(20)}, expectError: true},
		{name: "max input size", opts: []archiver.ConfigOption{archiver.WithMaxInputSize(1)}, expectError: true},
		{name: "disabled limits", opts: []archiver.ConfigOption{
			archiver.WithMaxFiles(-1),
			archiver.WithMaxExtractionSize(-1),
			archiver.WithMaxInputSize(-1),
		}, expectError: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := extractTestArchive(t, archive, t.TempDir(), tc.opts...)
			if got := err != nil; got != tc.expectError {
				t.Fatalf("expected error %v, got %v", tc.expectError, err)
			}
			if tc.expectError && !errors.Is(err, archiver.ErrLimitExceeded) {
				t.Errorf("expected ErrLimitExceeded, got %v", err)
			}
		})
	}
}

func TestExtractZip_corrupt(t *testing.T) {
	tmp := t.TempDir()
	archive := createTestFile(t, filepath.Join(tmp, "random.zip"), "foobar content")

	td, _, err := extractTestArchive(t, archive, filepath.Join(tmp, "out"))
	if !errors.Is(err, archiver.ErrCorruptArchive) {
		t.Fatalf("expected ErrCorruptArchive, got %v", err)
	}
	if td.LastError == nil {
		t.Errorf("expected last error in telemetry data")
	}
}

func TestExtractZip_destinationIsFile(t *testing.T) {
	tmp := t.TempDir()
	archive := createTestZip(t, tmp, "test.zip", []archiveContent{
		{Name: "file.txt", Content: []byte("content")},
	})
	dst := createTestFile(t, filepath.Join(tmp, "dst"), "file")

	_, _, err := extractTestArchive(t, archive, dst)
	if !errors.Is(err, archiver.ErrCreateDirFailed) {
		t.Fatalf("expected ErrCreateDirFailed, got %v", err)
	}
}
