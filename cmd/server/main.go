package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modsecmon/config"
	"modsecmon/grpc"
	"modsecmon/logging"
	"modsecmon/metrics"
	"modsecmon/tracing"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Dependency injection composition root
func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	envFile := flag.String("envfile", ".env", "dotenv file holding API keys. Ignored when missing.")
	logLevel := flag.String("loglevel", "", "overrides log_level. Can be one of: debug, info, warn, error, fatal, panic.")
	profiling := flag.Bool("profiling", false, "whether to enable the :6060/debug/pprof/ endpoint")
	flag.Parse()

	c, err := config.Load(*configPath, *envFile)
	if err != nil {
		l := logging.NewLogger("error", logging.FormatConsole, os.Stderr)
		l.Fatal().Err(err).Msg("Error while loading configuration")
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}
	logger := logging.NewLogger(c.LogLevel, c.LogFormat, os.Stderr)

	if *profiling {
		go func() {
			http.ListenAndServe(":6060", nil)
		}()
	}

	shutdownTracing, err := tracing.Init(context.Background(), logger, c.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("Error while initializing tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(ctx)
	}()

	m := metrics.New()
	e, closeFn, err := c.BuildEngine(logger, config.Observers{Verdict: m, Reputation: m})
	if err != nil {
		logger.Fatal().Err(err).Msg("Error while creating verdict engine")
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := grpc.NewServer(logger, e)
	if err := serve(ctx, logger, s, c, m); err != nil {
		logger.Error().Err(err).Msg("Error while running verdict server")
	}
	logger.Info().Msg("Verdict server stopped")
}

func serve(ctx context.Context, logger zerolog.Logger, s *grpc.Server, c config.Config, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{Addr: c.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("address", c.GRPCAddress).Msg("Starting gRPC verdict server")
		return s.Serve("tcp", c.GRPCAddress)
	})

	if c.MetricsAddress != "" {
		g.Go(func() error {
			logger.Info().Str("address", c.MetricsAddress).Msg("Starting metrics endpoint")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
