// Package archiver packs a single file into a zip or 7z archive and extracts zip, 7z and
// rar archives to a destination directory.
//
// Every operation starts with a [Descriptor], which normalizes the user input: [FromCreateArgs]
// completes the archive name and validates the source file, [FromExtractArgs] validates the
// archive and defaults the destination. The format is determined by the file extension only,
// and [Create] and [Extract] dispatch to the matching format back-end.
//
// Extraction writes through a [Target]. Entries that would leave the destination are skipped,
// permission bits and modification times of the entries are restored on the [TargetDisk].
//
// Configuration is done using the [Config], which sets the logger, the output for progress lines,
// the limits for the extraction and the telemetry hook. [TelemetryData] is captured for every
// operation.
package archiver
