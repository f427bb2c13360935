package build

const (
	// Gzip is the default compression algorithm used on rotated log files.
	Gzip = "gzip"

	// Zstd is a modern compression algorithm with a better compression
	// ratio than Gzip at the cost of a newer decompressor on the operator
	// side.
	Zstd = "zstd"
)

// logCompressors maps the identifier of each supported compression algorithm
// to the file extension the rotator applies to compressed log files.
var logCompressors = map[string]string{
	Gzip: "gz",
	Zstd: "zst",
}

// SupportedLogCompressor returns whether or not logCompressor is a supported
// compression algorithm for log files.
func SupportedLogCompressor(logCompressor string) bool {
	_, ok := logCompressors[logCompressor]

	return ok
}
