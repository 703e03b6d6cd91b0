package alert

import (
	"context"

	"modsecmon/reputation"

	"github.com/rs/zerolog"
)

// Alert colors, strongest first.
const (
	ColorCritical = "#ff0000"
	ColorWarning  = "#ffa500"
	ColorError    = "#808080"
)

// criticalFlags is the total flag count from which an alert is shown as critical.
const criticalFlags = 3

// Alert describes a block decision, or a failure worth a human's attention.
type Alert struct {
	Address        string              `json:"address"`
	Signals        []reputation.Result `json:"signals"`
	FlaggedVendors int                 `json:"flaggedVendors"`
	TotalFlags     int                 `json:"totalFlags"`
	Country        string              `json:"country,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// Color is the severity cue of the alert.
func (a Alert) Color() string {
	switch {
	case a.Error != "":
		return ColorError
	case a.TotalFlags >= criticalFlags:
		return ColorCritical
	default:
		return ColorWarning
	}
}

// Sink delivers alerts somewhere humans look.
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// Notify delivers a through sink. Delivery failures are logged and otherwise ignored.
func Notify(ctx context.Context, logger zerolog.Logger, sink Sink, a Alert) {
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, a); err != nil {
		logger.Warn().Err(err).Str("ip", a.Address).Msg("Alert delivery failed")
	}
}

// LogSink writes alerts to a zerolog logger. It is used when no webhook is configured.
type LogSink struct {
	Logger zerolog.Logger
}

// Send logs the alert.
func (s *LogSink) Send(ctx context.Context, a Alert) error {
	ev := s.Logger.Warn()
	if a.Error != "" {
		ev = s.Logger.Error().Str("error", a.Error)
	}

	d := zerolog.Dict()
	for _, r := range a.Signals {
		d.Int(r.Provider, r.Count)
	}

	ev.Str("ip", a.Address).Dict("signals", d).Int("flaggedVendors", a.FlaggedVendors).Int("totalFlags", a.TotalFlags).Str("color", a.Color()).Msg("IP reputation alert")
	return nil
}
