package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// NewLogger creates the process logger. Unknown levels fall back to info.
// Diagnostics go to w, which is stderr for the command line tools so stdout stays reserved for results.
func NewLogger(level string, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if format == FormatJSON {
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).Level(lvl).With().Timestamp().Caller().Logger()
}
