package build

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/klauspost/compress/zstd"
)

// RotatingLogWriter is an io.Writer appending to a size-rotated, compressed
// log file. The zero value discards writes until InitLogRotator points it at
// a file, which lets the daemon install its log backend before the log
// directory is known.
type RotatingLogWriter struct {
	rotator *rotator.Rotator
}

// NewRotatingLogWriter creates a log writer without a backing file. Call
// InitLogRotator to attach one.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{}
}

// newCompressor maps a compressor name to its logrotate implementation and
// the file suffix rolled files get.
func newCompressor(name string) (rotator.Compressor, string, error) {
	switch name {
	case Gzip:
		return gzip.NewWriter(nil), logCompressors[Gzip], nil

	case Zstd:
		compressor, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", fmt.Errorf("unable to create zstd "+
				"compressor: %w", err)
		}

		return compressor, logCompressors[Zstd], nil

	default:
		return nil, "", fmt.Errorf("unknown log compressor: %v", name)
	}
}

// InitLogRotator attaches the writer to logFile, rotating and compressing
// according to cfg. Rolled files land next to the live one. It must be
// paired with Close on shutdown to flush the final log file.
func (r *RotatingLogWriter) InitLogRotator(cfg *FileLoggerConfig,
	logFile string) error {

	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("unable to create log directory: %w", err)
	}

	compressor, suffix, err := newCompressor(cfg.Compressor)
	if err != nil {
		return err
	}

	r.rotator, err = rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false,
		cfg.MaxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("unable to create log rotator: %w", err)
	}
	r.rotator.SetCompressor(compressor, suffix)

	return nil
}

// Write appends to the rotated log file, or drops the bytes if no file is
// attached yet.
//
// NOTE: This method is part of the io.Writer interface.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.rotator == nil {
		return len(b), nil
	}

	return r.rotator.Write(b)
}

// Close flushes and closes the backing log file, if any.
func (r *RotatingLogWriter) Close() error {
	if r.rotator == nil {
		return nil
	}

	return r.rotator.Close()
}
