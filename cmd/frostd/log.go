package main

import (
	"os"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/frostvault/frostd/btcrpc"
	"github.com/frostvault/frostd/build"
	"github.com/frostvault/frostd/committee"
	"github.com/frostvault/frostd/frost"
	"github.com/frostvault/frostd/signal"
)

// Subsystem identifies the daemon's own log lines.
const Subsystem = "FSTD"

// logWriter tees log output to standard output and the rotating log file.
// Writes that happen before loadConfig has initialized the rotator only
// reach stdout.
type logWriter struct{}

// Write writes the provided bytes to stdout and the log rotator.
func (logWriter) Write(p []byte) (n int, err error) {
	_, _ = os.Stdout.Write(p)
	_, _ = logRotator.Write(p)

	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it will write to the backend. When adding
// new subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
var (
	// logRotator is one of the logging outputs. It should be closed on
	// daemon shutdown.
	logRotator = build.NewRotatingLogWriter()

	backendLog = btclog.NewBackend(logWriter{})

	frstdLog = newSubLogger(Subsystem)
	brpcLog  = newSubLogger(btcrpc.Subsystem)
	cmteLog  = newSubLogger(committee.Subsystem)
	frstLog  = newSubLogger(frost.Subsystem)
	sgnlLog  = newSubLogger(signal.Subsystem)

	log = frstdLog
)

// newSubLogger creates a subsystem logger that requests a daemon shutdown
// when a critical message is logged.
func newSubLogger(subsystem string) btclog.Logger {
	return build.NewShutdownLogger(
		backendLog.Logger(subsystem), signal.RequestShutdown,
	)
}

// Initialize package-global logger variables.
func init() {
	btcrpc.UseLogger(brpcLog)
	committee.UseLogger(cmteLog)
	frost.UseLogger(frstLog)
	signal.UseLogger(sgnlLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = build.SubLoggers{
	Subsystem:           frstdLog,
	btcrpc.Subsystem:    brpcLog,
	committee.Subsystem: cmteLog,
	frost.Subsystem:     frstLog,
	signal.Subsystem:    sgnlLog,
}

// daemonLoggers exposes the daemon's subsystem loggers to the debug level
// parser.
var daemonLoggers = subLoggerSet{}

// subLoggerSet implements build.LeveledSubLogger over the daemon's logger
// map.
type subLoggerSet struct{}

// SubLoggers returns the map of all registered subsystem loggers.
//
// NOTE: This method is part of the build.LeveledSubLogger interface.
func (subLoggerSet) SubLoggers() build.SubLoggers {
	return subsystemLoggers
}

// SupportedSubsystems returns a sorted slice of the registered subsystem
// names.
//
// NOTE: This method is part of the build.LeveledSubLogger interface.
func (subLoggerSet) SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsystem := range subsystemLoggers {
		subsystems = append(subsystems, subsystem)
	}

	sort.Strings(subsystems)

	return subsystems
}

// SetLogLevel assigns an individual subsystem logger a new log level.
// Invalid subsystems are ignored.
//
// NOTE: This method is part of the build.LeveledSubLogger interface.
func (subLoggerSet) SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels assigns all subsystem loggers the same new log level.
//
// NOTE: This method is part of the build.LeveledSubLogger interface.
func (s subLoggerSet) SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		s.SetLogLevel(subsystemID, logLevel)
	}
}
