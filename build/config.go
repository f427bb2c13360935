package build

import "fmt"

const (
	// DefaultLogCompressor is the compression algorithm used for rotated
	// logs when the operator does not pick one.
	DefaultLogCompressor = Gzip

	// DefaultMaxLogFiles is the default maximum number of log files to
	// keep.
	DefaultMaxLogFiles = 3

	// DefaultMaxLogFileSize is the default maximum log file size in MB.
	DefaultMaxLogFileSize = 10
)

// FileLoggerConfig holds the rotation options of the daemon's log file.
type FileLoggerConfig struct {
	Compressor     string
	MaxLogFiles    int
	MaxLogFileSize int
}

// DefaultFileLoggerConfig returns the default rotation options.
func DefaultFileLoggerConfig() *FileLoggerConfig {
	return &FileLoggerConfig{
		Compressor:     DefaultLogCompressor,
		MaxLogFiles:    DefaultMaxLogFiles,
		MaxLogFileSize: DefaultMaxLogFileSize,
	}
}

// Validate validates the FileLoggerConfig struct values.
func (c *FileLoggerConfig) Validate() error {
	if !SupportedLogCompressor(c.Compressor) {
		return fmt.Errorf("invalid log compressor: %v", c.Compressor)
	}

	return nil
}
