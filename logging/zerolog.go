package logging

import (
	"modsecmon/verdict"

	"github.com/rs/zerolog"
)

// NewZerologResultsLogger creates a results logger that writes decisions to the diagnostic log instead of a file.
func NewZerologResultsLogger(logger zerolog.Logger) verdict.ResultsLogger {
	return &zerologResultsLogger{logger: logger}
}

type zerologResultsLogger struct {
	logger zerolog.Logger
}

func (l *zerologResultsLogger) VerdictIssued(d verdict.Decision) {
	ev := l.logger.Info().Str("clientIp", d.Address).Str("action", string(d.Verdict)).Str("reason", string(d.Reason))
	for _, r := range d.Signals {
		ev = ev.Int(r.Provider, r.Count)
	}
	ev.Int("flaggedVendors", d.FlaggedVendors).Int("totalFlags", d.TotalFlags).Msg("Results log")
}
