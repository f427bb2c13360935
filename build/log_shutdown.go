package build

import (
	"sync"

	"github.com/btcsuite/btclog"
)

// ShutdownLogger is a btclog.Logger that treats critical log lines as fatal
// to the daemon: after writing the message it asks the daemon to shut down.
// A custodial signer that just logged a critical condition must not keep
// serving.
type ShutdownLogger struct {
	btclog.Logger

	once     sync.Once
	shutdown func()
}

// NewShutdownLogger wraps the given logger so critical messages trigger the
// shutdown callback.
func NewShutdownLogger(logger btclog.Logger, shutdown func()) *ShutdownLogger {
	return &ShutdownLogger{
		Logger:   logger,
		shutdown: shutdown,
	}
}

// Critical writes the message and requests daemon shutdown.
//
// NOTE: This method is part of the btclog.Logger interface.
func (s *ShutdownLogger) Critical(v ...interface{}) {
	s.Logger.Critical(v...)
	s.requestShutdown()
}

// Criticalf writes the formatted message and requests daemon shutdown.
//
// NOTE: This method is part of the btclog.Logger interface.
func (s *ShutdownLogger) Criticalf(format string, params ...interface{}) {
	s.Logger.Criticalf(format, params...)
	s.requestShutdown()
}

// requestShutdown fires the shutdown callback, at most once over the logger
// lifetime so cascading critical messages during teardown stay plain log
// lines.
func (s *ShutdownLogger) requestShutdown() {
	s.once.Do(func() {
		s.Logger.Info("Requesting daemon shutdown")
		s.shutdown()
	})
}
