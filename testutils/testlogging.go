package testutils

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger creates a debug level zerolog.Logger whose lines end up in the test's output.
func NewTestLogger(tb testing.TB) zerolog.Logger {
	cw := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = tbWriter{tb}
		w.NoColor = true
		w.TimeFormat = "15:04:05.000"
	})
	return zerolog.New(cw).Level(zerolog.DebugLevel).With().Timestamp().Caller().Logger()
}

type tbWriter struct {
	tb testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.tb.Helper()
	w.tb.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
