// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archiver

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// packParams is the view on a [Descriptor] that a back-end needs for creation.
type packParams struct {
	archivePath string
	sourcePath  string
	method      CompressionMethod
	content     ContentType
}

// unpackParams is the view on a [Descriptor] that a back-end needs for extraction.
type unpackParams struct {
	archivePath string
	destination string
	password    string
}

// createFunc packs a file into a new archive.
type createFunc func(ctx context.Context, p packParams, cfg *Config, td *TelemetryData) error

// extractFunc unpacks an archive with the help of t.
type extractFunc func(ctx context.Context, t Target, p unpackParams, cfg *Config, td *TelemetryData) error

// backend is the capability set of a format back-end. A nil function means
// the operation is not supported by the format.
type backend struct {
	create  createFunc
	extract extractFunc
	methods []CompressionMethod
}

// backends is the dispatch table from format tag to back-end.
var backends = map[Extension]backend{
	ExtensionZip: {
		create:  createZip,
		extract: unpackZip,
		methods: []CompressionMethod{Stored, Deflated, Bzip2, Lzma, Xz, Zstd},
	},
	Extension7z: {
		create:  create7z,
		extract: unpack7z,
		methods: []CompressionMethod{Stored, Deflated, Bzip2, Lzma, Lzma2, Zstd, Lz4},
	},
	ExtensionRar: {
		extract: unpackRar,
	},
}

// checkCompressionMethod returns an [ErrUnsupportedCompression] error if the
// format of ext can create archives, but not with m.
func checkCompressionMethod(ext Extension, m CompressionMethod) error {
	be, ok := backends[ext]
	if !ok || be.create == nil {
		return nil
	}
	for _, supported := range be.methods {
		if supported == m {
			return nil
		}
	}
	return newError(KindUnsupportedCompression, "", errors.Errorf("%s archives cannot be compressed with %s", ext, m))
}

// Create packs the source file of d into the archive of d. The back-end is
// selected by the extension of d. If the format cannot be created, an
// [ErrUnsupportedCreateFormat] error is returned before the filesystem is touched.
//
// If the creation fails, the partially written archive is removed unless
// [WithKeepPartialArchive] is set.
func Create(ctx context.Context, d *Descriptor, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}
	if d == nil || d.Operation() != OperationCreate {
		return newError(KindMissingSource, "", errors.New("descriptor is not prepared for creation"))
	}

	be, ok := backends[d.Extension()]
	if !ok {
		return newError(KindUnsupportedFormat, d.Path(), errors.Errorf("archive type %q is not supported", d.Extension()))
	}
	if be.create == nil {
		return newError(KindUnsupportedCreateFormat, d.Path(), errors.Errorf("%s archives can only be extracted", d.Extension()))
	}
	if err := checkCompressionMethod(d.Extension(), d.CompressionMethod()); err != nil {
		return err
	}

	// prepare telemetry data collection and emit
	td := &TelemetryData{Operation: OperationCreate.String(), ArchiveType: string(d.Extension())}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())

	p := packParams{
		archivePath: d.Path(),
		sourcePath:  d.SourcePath(),
		method:      d.CompressionMethod(),
		content:     d.ContentType(),
	}

	cfg.Logger().Info("creating archive", "path", p.archivePath, "type", d.Extension(), "method", p.method)
	if err := be.create(ctx, p, cfg, td); err != nil {
		td.LastError = err
		return err
	}

	fmt.Fprintf(cfg.Output(), "File %s written to %s\n", p.sourcePath, p.archivePath)
	return nil
}

// Extract unpacks the archive of d into the destination of d on the local disk.
func Extract(ctx context.Context, d *Descriptor, cfg *Config) error {
	return ExtractTo(ctx, NewTargetDisk(), d, cfg)
}

// ExtractTo unpacks the archive of d into the destination of d by using t. The
// back-end is selected by the extension of d.
//
// Entries that would be written outside the destination are skipped and reported
// in the [TelemetryData] and on the configured output.
func ExtractTo(ctx context.Context, t Target, d *Descriptor, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}
	if d == nil || d.Operation() != OperationExtract {
		return newError(KindMissingArchive, "", errors.New("descriptor is not prepared for extraction"))
	}

	be, ok := backends[d.Extension()]
	if !ok || be.extract == nil {
		return newError(KindUnsupportedFormat, d.Path(), errors.Errorf("archive type %q is not supported", d.Extension()))
	}

	// prepare telemetry data collection and emit
	td := &TelemetryData{Operation: OperationExtract.String(), ArchiveType: string(d.Extension())}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureDuration(td, now())

	p := unpackParams{
		archivePath: d.Path(),
		destination: d.Destination(),
		password:    d.Password(),
	}

	// check size and header before anything is written
	stat, err := os.Stat(p.archivePath)
	if err != nil {
		td.LastError = ioError(KindOpenFailed, p.archivePath, err)
		return td.LastError
	}
	td.InputSize = stat.Size()
	if err := cfg.CheckInputSize(stat.Size()); err != nil {
		td.LastError = err
		return err
	}
	checkHeader(p.archivePath, d.Extension(), cfg)

	cfg.Logger().Info("extracting archive", "path", p.archivePath, "type", d.Extension(), "destination", p.destination)
	if err := be.extract(ctx, t, p, cfg, td); err != nil {
		td.LastError = err
		return err
	}

	return nil
}
