// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alecthomas/kong"
	archiver "github.com/hashicorp/go-archiver"
	"github.com/pkg/errors"
)

// Globals are the cli parameters shared by all commands
type Globals struct {
	MaxExtractionSize int64            `optional:"" default:"1073741824" help:"Maximum extraction size that allowed is (in bytes). (disable check: -1)"`
	MaxExtractionTime int64            `optional:"" default:"-1" help:"Maximum time that an operation should take (in seconds). (disable check: -1)"`
	MaxFiles          int64            `optional:"" default:"100000" help:"Maximum files that are extracted before stop. (disable check: -1)"`
	MaxInputSize      int64            `optional:"" default:"1073741824" help:"Maximum input size that allowed is (in bytes). (disable check: -1)"`
	Metrics           bool             `short:"M" optional:"" default:"false" help:"Print metrics to log after the operation."`
	Verbose           bool             `short:"v" optional:"" help:"Verbose logging."`
	Version           kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`
}

// CLI are the cli parameters for the archiver binary
type CLI struct {
	Globals

	Create  CreateCmd  `cmd:"" default:"withargs" help:"Pack a file into a new archive (default command)."`
	Extract ExtractCmd `cmd:"" help:"Extract an archive."`
}

// CreateCmd are the parameters to pack a file
type CreateCmd struct {
	Files   string `short:"f" placeholder:"PATH" help:"File to pack."`
	Name    string `short:"n" placeholder:"NAME" help:"Archive name, optionally with extension zip or 7z. (default: new_archive.zip)"`
	Method  string `short:"m" placeholder:"METHOD" help:"Compression method (stored, deflated, bzip2, lzma, lzma2, xz, zstd, lz4). Defaults to deflated for zip and lzma2 for 7z."`
	Content string `short:"c" default:"mixed" enum:"mixed,doc,media" help:"Content type hint that selects the compression effort (mixed, doc, media)."`
}

// ExtractCmd are the parameters to extract an archive
type ExtractCmd struct {
	File        string `short:"f" placeholder:"PATH" help:"Archive to extract."`
	Destination string `short:"d" placeholder:"DIR" help:"Output directory. (default: current directory)"`
	Password    string `short:"p" help:"Password for encrypted 7z and rar archives."`
}

// runEnv is bound to the Run methods of the commands
type runEnv struct {
	ctx    context.Context
	cfg    *archiver.Config
	stdout io.Writer
}

// Run packs the file into the archive
func (c *CreateCmd) Run(rt *runEnv) error {
	opts := []archiver.DescriptorOption{archiver.WithNotices(rt.stdout)}
	if len(c.Method) > 0 {
		m, err := archiver.ParseCompressionMethod(c.Method)
		if err != nil {
			return err
		}
		opts = append(opts, archiver.WithCompressionMethod(m))
	}
	ct, err := archiver.ParseContentType(c.Content)
	if err != nil {
		return err
	}
	opts = append(opts, archiver.WithContentType(ct))

	d, err := archiver.FromCreateArgs(c.Name, c.Files, opts...)
	if err != nil {
		return err
	}
	return archiver.Create(rt.ctx, d, rt.cfg)
}

// Run extracts the archive
func (c *ExtractCmd) Run(rt *runEnv) error {
	d, err := archiver.FromExtractArgs(c.File, c.Destination,
		archiver.WithNotices(rt.stdout),
		archiver.WithPassword(c.Password),
	)
	if err != nil {
		return err
	}
	return archiver.Extract(rt.ctx, d, rt.cfg)
}

// exitCode is raised by the kong exit function to leave Run
type exitCode int

// Run the entrypoint into the archiver as a cli tool. It returns the exit code
// of the process: 0 on success, 1 if the operation failed and 2 on invalid
// parameters.
func Run(args []string, stdout, stderr io.Writer, version, commit, date string) (code int) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("archiver"),
		kong.Description("Pack a file into a zip or 7z archive, or extract zip, 7z and rar archives."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(c int) { panic(exitCode(c)) }),
		kong.Vars{
			"version": fmt.Sprintf("archiver (%s), commit %s, built at %s", version, commit, date),
		},
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}

	// help and version flags leave through the exit function
	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(c)
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		var pe *kong.ParseError
		if errors.As(err, &pe) && pe.Context != nil {
			_ = pe.Context.PrintUsage(true)
		}
		return 2
	}

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Metrics {
		logLevel = slog.LevelInfo
	}
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// setup metrics hook
	metricsToLog := func(ctx context.Context, td *archiver.TelemetryData) {
		if cli.Metrics {
			logger.Info(fmt.Sprintf("%s finished", td.Operation), "metrics", td)
		}
	}

	// process cli params
	cfg := archiver.NewConfig(
		archiver.WithLogger(logger),
		archiver.WithMaxExtractionSize(cli.MaxExtractionSize),
		archiver.WithMaxFiles(cli.MaxFiles),
		archiver.WithMaxInputSize(cli.MaxInputSize),
		archiver.WithOutput(stdout),
		archiver.WithTelemetryHook(metricsToLog),
	)

	ctx := context.Background()
	if cli.MaxExtractionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second*time.Duration(cli.MaxExtractionTime))
		defer cancel()
	}

	if err := kctx.Run(&runEnv{ctx: ctx, cfg: cfg, stdout: stdout}); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	return 0
}
