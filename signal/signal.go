// Package signal owns the daemon's shutdown lifecycle. It intercepts the
// process termination signals and fans one shutdown event out to everything
// waiting on it. Shutdown can also be requested internally, for instance by
// a failing health check, and both paths collapse into the same event.
package signal

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	// interrupts receives the process signals the daemon reacts to.
	interrupts = make(chan os.Signal, 1)

	// requests carries internally generated shutdown requests.
	requests = make(chan struct{}, 1)

	// done is closed exactly once, when shutdown begins.
	done = make(chan struct{})

	// closeDone guards done against a second close.
	closeDone sync.Once
)

func init() {
	signal.Notify(
		interrupts,
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGABRT,
	)
	go waitForShutdown()
}

// waitForShutdown blocks until a signal or an internal request arrives, then
// publishes the shutdown event.
func waitForShutdown() {
	select {
	case sig := <-interrupts:
		log.Infof("Received %v, shutting down", sig)

	case <-requests:
		log.Infof("Received internal shutdown request, shutting down")
	}

	closeDone.Do(func() {
		close(done)
	})
}

// RequestShutdown asks the daemon to wind down as if it had been signalled.
// It never blocks and calling it repeatedly is harmless.
func RequestShutdown() {
	select {
	case requests <- struct{}{}:
	default:
	}
}

// ShutdownChannel returns the channel that is closed once shutdown has
// begun.
func ShutdownChannel() <-chan struct{} {
	return done
}

// Alive returns true as long as no shutdown has begun.
func Alive() bool {
	select {
	case <-done:
		return false
	default:
		return true
	}
}
