package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"modsecmon/config"
	"modsecmon/ipaddresses"
	"modsecmon/logging"
	"modsecmon/verdict"
)

// Exit codes. The verdict is printed in every case.
const (
	exitOK        = 0
	exitConfig    = 1
	exitNoAddress = 2
)

// Prints ALLOW or BLOCK for the requesting address. Meant to be run by ModSecurity's exec action,
// which passes the request context through HTTP_X_FORWARDED_FOR and REMOTE_ADDR.
func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(args []string, getenv func(string) string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("ipcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	envFile := fs.String("envfile", "", "optional dotenv file holding API keys")
	logLevel := fs.String("loglevel", "", "overrides log_level. Can be one of: debug, info, warn, error, fatal, panic.")
	addrArg := fs.String("ip", "", "check this address instead of the one taken from the environment")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stdout, verdict.Allow)
		return exitConfig
	}

	c, err := config.Load(*configPath, *envFile)
	if err != nil {
		l := logging.NewLogger("error", logging.FormatConsole, stderr)
		l.Error().Err(err).Msg("Error while loading configuration")
		fmt.Fprintln(stdout, verdict.Allow)
		return exitConfig
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}
	logger := logging.NewLogger(c.LogLevel, c.LogFormat, stderr)

	forwardedFor, remoteAddr := getenv("HTTP_X_FORWARDED_FOR"), getenv("REMOTE_ADDR")
	addr := *addrArg
	if addr == "" {
		addr = ipaddresses.ClientAddress(forwardedFor, remoteAddr)
	}
	logger.Debug().Str("remoteAddr", remoteAddr).Str("forwardedFor", forwardedFor).Str("ip", addr).Msg("Address selected")

	e, closeFn, err := c.BuildEngine(logger, config.Observers{})
	if err != nil {
		logger.Error().Err(err).Msg("Error while creating verdict engine")
		fmt.Fprintln(stdout, verdict.Allow)
		return exitConfig
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := e.Decide(ctx, addr)
	fmt.Fprintln(stdout, d.Verdict)

	if d.Reason == verdict.ReasonNoAddress {
		return exitNoAddress
	}
	return exitOK
}
