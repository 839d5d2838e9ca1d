package ringlog

import (
	"sync"

	"github.com/ringlog/ringlog/engine"
	"github.com/ringlog/ringlog/format"
)

// defaultLogger is the process-wide engine, mirroring
// concurrency/gopool's defaultGoPool + package-level Go/CtxGo: most
// callers never construct their own Logger, they Activate the default one
// once at startup and use package-level helpers from then on.
var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Activate replaces the process-wide default Logger with a new one bound
// to formatter/sink/opts and starts it, stopping any previous default
// first. Typically called once at process startup; deactivate is expected
// to run at process exit (e.g. via a deferred call in main, since Go has
// no portable equivalent of the teacher's atexit-registered deactivate).
func Activate(formatter format.Formatter, sink engine.Sink, opts engine.Options) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultLogger != nil {
		defaultLogger.Deactivate()
	}
	defaultLogger = NewLogger(formatter, sink, opts)
	defaultLogger.Activate()
	return defaultLogger
}

// Deactivate stops the process-wide default Logger, if any, and clears it.
func Deactivate() {
	defaultMu.Lock()
	l := defaultLogger
	defaultLogger = nil
	defaultMu.Unlock()

	if l != nil {
		l.Deactivate()
	}
}

// Default returns the process-wide Logger set by Activate, or nil if none
// is active.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}
