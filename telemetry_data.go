// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"context"
	"encoding/json"
	"time"
)

// now is a function point that returns time.Now to the caller.
var now = time.Now

// TelemetryData holds all telemetry data of a create or extract operation.
type TelemetryData struct {
	// ArchiveType is the format tag of the archive
	ArchiveType string `json:"archive_type"`

	// Duration is the time the operation took
	Duration time.Duration `json:"duration"`

	// ExtractedDirs is the number of extracted directories
	ExtractedDirs int64 `json:"extracted_dirs"`

	// ExtractedFiles is the number of extracted files
	ExtractedFiles int64 `json:"extracted_files"`

	// InputSize is the size of the archive for extraction, or of the packed file for creation
	InputSize int64 `json:"input_size"`

	// LastError is the error the operation ended with
	LastError error `json:"last_error"`

	// LastSkippedEntry is the name of the last entry skipped by the safe path policy
	LastSkippedEntry string `json:"last_skipped_entry"`

	// LastUnsupportedEntry is the name of the last skipped entry that is neither file nor directory
	LastUnsupportedEntry string `json:"last_unsupported_entry"`

	// Operation is either create or extract
	Operation string `json:"operation"`

	// OutputSize is the number of extracted bytes, or the size of the created archive
	OutputSize int64 `json:"output_size"`

	// SkippedEntries is the number of entries skipped by the safe path policy
	SkippedEntries int64 `json:"skipped_entries"`

	// UnsupportedEntries is the number of skipped entries that are neither file nor directory
	UnsupportedEntries int64 `json:"unsupported_entries"`
}

// String returns a string representation of [TelemetryData].
func (m TelemetryData) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (m TelemetryData) MarshalJSON() ([]byte, error) {
	var lastError string
	if m.LastError != nil {
		lastError = m.LastError.Error()
	}

	type Alias TelemetryData
	return json.Marshal(&struct {
		LastError string `json:"last_error"`
		*Alias
	}{
		LastError: lastError,
		Alias:     (*Alias)(&m),
	})
}

// TelemetryHook is a function type that performs operations on [TelemetryData]
// after an operation has finished.
type TelemetryHook func(context.Context, *TelemetryData)

// captureDuration captures the duration of the operation
func captureDuration(td *TelemetryData, start time.Time) {
	td.Duration = now().Sub(start)
}
