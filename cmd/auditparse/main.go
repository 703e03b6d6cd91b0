package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modsecmon/artifact"
	"modsecmon/auditlog"
	"modsecmon/config"
	"modsecmon/logging"
	"modsecmon/metrics"

	"github.com/rs/zerolog"
)

const (
	exitOK         = 0
	exitConfig     = 1
	exitUnreadable = 2
	exitOutput     = 3
)

// Converts a ModSecurity serial audit log into the JSON records file read by the dashboard.
func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("auditparse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	inArg := fs.String("in", "", "overrides audit_log. Files ending in .gz or .zst are decompressed.")
	outArg := fs.String("out", "", "overrides records_output. Either a local path or s3://bucket/key.")
	textfile := fs.String("metrics-textfile", "", "if set, write run statistics in the node_exporter textfile format to this path")
	logLevel := fs.String("loglevel", "", "overrides log_level")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	c, err := config.Load(*configPath, "")
	if err != nil {
		l := logging.NewLogger("error", logging.FormatConsole, stderr)
		l.Error().Err(err).Msg("Error while loading configuration")
		return exitConfig
	}
	if *inArg != "" {
		c.AuditLog = *inArg
	}
	if *outArg != "" {
		c.RecordsOutput = *outArg
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}
	logger := logging.NewLogger(c.LogLevel, c.LogFormat, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := artifact.New(ctx, logger, c.RecordsOutput)
	if err != nil {
		logger.Error().Err(err).Str("out", c.RecordsOutput).Msg("Error while creating records store")
		return exitConfig
	}

	stats, err := convert(ctx, logger, c.AuditLog, store)
	if err != nil {
		if errors.Is(err, auditlog.ErrUnreadableInput) {
			logger.Error().Err(err).Str("in", c.AuditLog).Msg("Audit log is unreadable")
			return exitUnreadable
		}
		logger.Error().Err(err).Str("out", store.Location()).Msg("Error while writing records")
		return exitOutput
	}

	logger.Info().
		Int("lines", stats.Lines).
		Int("records", stats.Emitted).
		Int("dropped", stats.Dropped).
		Str("out", store.Location()).
		Msg("Audit log converted")

	if *textfile != "" {
		m := metrics.New()
		m.AuditPassDone(stats, time.Now())
		if err := m.WriteTextfile(*textfile); err != nil {
			logger.Warn().Err(err).Str("path", *textfile).Msg("Error while writing metrics textfile")
		}
	}
	return exitOK
}

// convert streams the audit log at in into a temporary records file and publishes it to store.
func convert(ctx context.Context, logger zerolog.Logger, in string, store artifact.Store) (stats auditlog.Stats, err error) {
	src, err := auditlog.Open(in)
	if err != nil {
		return
	}
	defer src.Close()

	tmp, err := ioutil.TempFile("", "modsec_records.*.json")
	if err != nil {
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	rw := auditlog.NewRecordWriter(tmp)
	stats, err = auditlog.Run(ctx, logger, src, rw.Write)
	if err != nil {
		return
	}
	if err = rw.Close(); err != nil {
		return
	}
	if err = tmp.Sync(); err != nil {
		return
	}

	err = store.Publish(ctx, tmp.Name())
	return
}
