// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"context"
	"io"
	"io/fs"
	"log/slog"

	"github.com/pkg/errors"
)

// logger is the logging interface used by the archive operations. It is
// satisfied by [*slog.Logger].
type logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config holds the operational settings for creating and extracting archives.
//
// What is packed or unpacked is described by a [Descriptor]; the Config decides
// how the operation behaves: where progress is reported, which limits apply and
// how file attributes are handled. The options are adjusted in the option pattern
// style with [NewConfig].
//
// The default configuration limits the number of entries, the extracted size and
// the archive size to prevent exhaustion.
type Config struct {
	// customCreateDirMode is the mode for directories that are created, but not
	// defined in the archive (respecting umask)
	customCreateDirMode fs.FileMode

	// customDecompressFileMode is the mode for files without unix permission bits (respecting umask)
	customDecompressFileMode fs.FileMode

	// dropFileAttributes skips restoring permission bits and modification times
	dropFileAttributes bool

	// keepPartialArchive keeps a partially written archive if creation fails
	keepPartialArchive bool

	// logger stream for debug and error logs
	logger logger

	// maxExtractionSize is the maximum size over all extracted files.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxFiles is the maximum of entries (files and directories) in an archive.
	// Set value to -1 to disable the check.
	maxFiles int64

	// maxInputSize is the maximum size of an archive that is extracted.
	// Set value to -1 to disable the check.
	maxInputSize int64

	// output receives progress lines, notices and summaries
	output io.Writer

	// telemetryHook is a function to consume telemetry data after an operation finished
	telemetryHook TelemetryHook
}

const (
	defaultCustomCreateDirMode      = 0755          // rwxr-xr-x
	defaultCustomDecompressFileMode = 0644          // rw-r--r--
	defaultDropFileAttributes       = false         // restore permissions and mtime
	defaultKeepPartialArchive       = false         // remove broken archives
	defaultMaxFiles                 = 100000        // 100k entries
	defaultMaxExtractionSize        = 1 << (10 * 3) // 1 Gb
	defaultMaxInputSize             = 1 << (10 * 3) // 1 Gb
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {
	config := &Config{
		customCreateDirMode:      defaultCustomCreateDirMode,
		customDecompressFileMode: defaultCustomDecompressFileMode,
		dropFileAttributes:       defaultDropFileAttributes,
		keepPartialArchive:       defaultKeepPartialArchive,
		logger:                   defaultLogger,
		maxExtractionSize:        defaultMaxExtractionSize,
		maxFiles:                 defaultMaxFiles,
		maxInputSize:             defaultMaxInputSize,
		output:                   io.Discard,
		telemetryHook:            defaultTelemetryHook,
	}

	for _, opt := range opts {
		opt(config)
	}

	return config
}

// CheckMaxFiles checks if counter exceeds the configured maximum. If the maximum is exceeded,
// an [ErrLimitExceeded] error is returned.
func (c *Config) CheckMaxFiles(counter int64) error {
	// check if disabled
	if c.MaxFiles() == -1 {
		return nil
	}

	if counter > c.MaxFiles() {
		return newError(KindLimitExceeded, "", errors.Errorf("maximum of %d entries exceeded", c.MaxFiles()))
	}
	return nil
}

// CheckExtractionSize checks if size exceeds the configured maximum. If the maximum is exceeded,
// an [ErrLimitExceeded] error is returned.
func (c *Config) CheckExtractionSize(size int64) error {
	// check if disabled
	if c.MaxExtractionSize() == -1 {
		return nil
	}

	if size > c.MaxExtractionSize() {
		return newError(KindLimitExceeded, "", errors.Errorf("maximum extraction size of %d bytes exceeded", c.MaxExtractionSize()))
	}
	return nil
}

// CheckInputSize checks if the archive size exceeds the configured maximum. If the maximum is
// exceeded, an [ErrLimitExceeded] error is returned.
func (c *Config) CheckInputSize(size int64) error {
	// check if disabled
	if c.MaxInputSize() == -1 {
		return nil
	}

	if size > c.MaxInputSize() {
		return newError(KindLimitExceeded, "", errors.Errorf("archive size of %d bytes exceeds maximum input size of %d bytes", size, c.MaxInputSize()))
	}
	return nil
}

// CustomCreateDirMode returns the file mode for created directories,
// that are not defined in the archive. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// CustomDecompressFileMode returns the file mode for extracted files that
// carry no unix permission bits. (respecting umask)
func (c *Config) CustomDecompressFileMode() fs.FileMode {
	return c.customDecompressFileMode
}

// DropFileAttributes returns true if permission bits and modification times
// from the archive should not be applied.
func (c *Config) DropFileAttributes() bool {
	return c.dropFileAttributes
}

// KeepPartialArchive returns true if a partially written archive is left on
// disk after a failed creation.
func (c *Config) KeepPartialArchive() bool {
	return c.keepPartialArchive
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxExtractionSize returns the maximum size over all extracted files.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxFiles returns the maximum of entries (files and directories) in an archive.
func (c *Config) MaxFiles() int64 {
	return c.maxFiles
}

// MaxInputSize returns the maximum size of an archive that is extracted.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// Output returns the writer for progress lines and notices.
func (c *Config) Output() io.Writer {
	return c.output
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories, that are not defined in the archive. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithCustomDecompressFileMode options pattern function to set the file mode for
// extracted files without unix permission bits. (respecting umask)
func WithCustomDecompressFileMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customDecompressFileMode = mode
	}
}

// WithDropFileAttributes options pattern function to skip restoring permission
// bits and modification times of extracted entries.
func WithDropFileAttributes(drop bool) ConfigOption {
	return func(c *Config) {
		c.dropFileAttributes = drop
	}
}

// WithKeepPartialArchive options pattern function to keep a partially written
// archive if the creation fails.
func WithKeepPartialArchive(keep bool) ConfigOption {
	return func(c *Config) {
		c.keepPartialArchive = keep
	}
}

// WithLogger options pattern function to set a custom logger. A nil logger
// discards all logs.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		if logger == nil {
			logger = defaultLogger
		}
		c.logger = logger
	}
}

// WithMaxExtractionSize options pattern function to set maximum size over all
// extracted files. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxFiles options pattern function to set maximum number of extracted files and
// directories. (-1 to disable check)
func WithMaxFiles(maxFiles int64) ConfigOption {
	return func(c *Config) {
		c.maxFiles = maxFiles
	}
}

// WithMaxInputSize options pattern function to set the maximum archive size for extraction. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithOutput options pattern function to set the writer for progress lines and notices.
func WithOutput(w io.Writer) ConfigOption {
	return func(c *Config) {
		if w == nil {
			w = io.Discard
		}
		c.output = w
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after
// each operation.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
