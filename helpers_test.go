// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	archiver "github.com/hashicorp/go-archiver"
)

// archiveContent describes an entry of a generated test archive
type archiveContent struct {
	Name     string
	Content  []byte
	Mode     fs.FileMode
	Modified time.Time
}

// packZip creates a zip archive in memory that holds content
func packZip(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, c := range content {
		fh := &zip.FileHeader{
			Name:     c.Name,
			Method:   zip.Deflate,
			Modified: c.Modified,
		}
		if c.Mode != 0 {
			fh.SetMode(c.Mode)
		}
		w, err := zw.CreateHeader(fh)
		if err != nil {
			t.Fatal(err)
		}
		if len(c.Content) > 0 {
			if _, err := w.Write(c.Content); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// createTestZip writes a zip archive with content to dstDir/name and returns the path
func createTestZip(t *testing.T, dstDir, name string, content []archiveContent) string {
	t.Helper()
	targetFile := filepath.Join(dstDir, name)
	if err := os.WriteFile(targetFile, packZip(t, content), 0644); err != nil {
		t.Fatal(err)
	}
	return targetFile
}

// createTestFile creates a file at path with content
func createTestFile(t *testing.T, path string, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// readTestFile returns the content of the file at path
func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// captureTelemetry returns a hook that stores the telemetry data in td
func captureTelemetry(td **archiver.TelemetryData) archiver.TelemetryHook {
	return func(_ context.Context, data *archiver.TelemetryData) {
		*td = data
	}
}
