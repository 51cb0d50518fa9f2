// Package logctx carries a zerolog.Logger through a context.Context.
//
// The sorter and the table readers log through FromContext, so a caller
// can attach fields such as the input path once:
//
//	ctx = logctx.WithStr(ctx, "input", path)
//	it, err := sorter.SortedIterator(ctx, src, -1)
package logctx

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var (
	fallbackMu sync.RWMutex
	fallback   = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// DefaultLogger returns the logger used when a context carries none.
func DefaultLogger() zerolog.Logger {
	fallbackMu.RLock()
	defer fallbackMu.RUnlock()
	return fallback
}

// SetDefaultLogger replaces the logger returned by DefaultLogger.
func SetDefaultLogger(l zerolog.Logger) {
	fallbackMu.Lock()
	fallback = l
	fallbackMu.Unlock()
}

// WithLogger attaches logger to ctx. A nil ctx is treated as Background.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or DefaultLogger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return l
		}
	}
	return DefaultLogger()
}

// WithStr adds a string field to the context logger.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithInt adds an int field to the context logger.
func WithInt(ctx context.Context, key string, value int) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Int(key, value).Logger())
}

// NewConfiguredLogger builds a stderr logger: JSON, or console output when
// human is set. debug lowers the level from info to debug.
func NewConfiguredLogger(debug, human bool) zerolog.Logger {
	return newLogger(os.Stderr, debug, human)
}

func newLogger(w io.Writer, debug, human bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if human {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
