// Package logging configures the process-wide zerolog logger for the
// tablesort command and renders sort progress as log events.
package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/eunmann/tablesort/internal/logctx"
)

var (
	logger atomic.Pointer[zerolog.Logger]
	pretty atomic.Bool
)

func init() {
	l := logctx.NewConfiguredLogger(false, false)
	logger.Store(&l)
}

// Init configures the global logger and makes it the default for
// logctx.FromContext. human switches to console output and adds
// human-readable companion fields to progress events.
func Init(debug, human bool) {
	l := logctx.NewConfiguredLogger(debug, human)
	pretty.Store(human)
	SetLogger(l)
}

// L returns the global logger.
func L() *zerolog.Logger {
	return logger.Load()
}

// WithPhase returns the global logger with a phase field.
func WithPhase(phase string) zerolog.Logger {
	return L().With().Str("phase", phase).Logger()
}

// SetLogger replaces the global logger.
func SetLogger(l zerolog.Logger) {
	logger.Store(&l)
	logctx.SetDefaultLogger(l)
}

// IsPrettyMode reports whether Init was called with human output.
func IsPrettyMode() bool {
	return pretty.Load()
}
