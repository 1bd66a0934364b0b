package wlpresent

import (
	"log/slog"
	"sync/atomic"
)

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(slog.DiscardHandler))
}

// SetLogger configures the logger used by the connection and every window
// created without its own logger. By default nothing is logged. Pass nil
// to restore the silent default.
//
// Levels: Debug traces wire events, Info marks lifecycle steps, Warn
// reports suspicious compositor behaviour, Error precedes a fatal return.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	loggerPtr.Store(l)
}

// Logger returns the current package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
