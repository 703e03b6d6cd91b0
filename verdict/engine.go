package verdict

import (
	"context"
	"sync"
	"time"

	"modsecmon/alert"
	"modsecmon/bancache"
	"modsecmon/reputation"
	"modsecmon/tracing"

	"github.com/rs/zerolog"
)

// ResultsLogger is where the engine records every decision reached through fresh provider lookups.
type ResultsLogger interface {
	VerdictIssued(d Decision)
}

// Observer receives every decision with the time it took.
type Observer interface {
	DecisionMade(v Verdict, r Reason, elapsed time.Duration)
}

type nopResultsLogger struct{}

func (nopResultsLogger) VerdictIssued(Decision) {}

type nopObserver struct{}

func (nopObserver) DecisionMade(Verdict, Reason, time.Duration) {}

// Engine decides whether requests from an address are allowed.
// Decide is safe for concurrent use: ban list reads and writes are serialized
// in-process with a mutex and across processes with the Locker.
type Engine struct {
	logger        zerolog.Logger
	policy        Policy
	cache         *bancache.Cache
	locker        bancache.Locker
	providers     []reputation.Provider
	sink          alert.Sink
	resultsLogger ResultsLogger
	observer      Observer
	mu            sync.Mutex
}

// NewEngine creates a verdict engine. locker, sink, rl and obs may be nil.
func NewEngine(logger zerolog.Logger, policy Policy, cache *bancache.Cache, locker bancache.Locker, providers []reputation.Provider, sink alert.Sink, rl ResultsLogger, obs Observer) *Engine {
	e := &Engine{
		logger:        logger,
		policy:        policy,
		cache:         cache,
		locker:        locker,
		providers:     providers,
		sink:          sink,
		resultsLogger: rl,
		observer:      obs,
	}
	if e.locker == nil {
		e.locker = bancache.NopLocker{}
	}
	if e.resultsLogger == nil {
		e.resultsLogger = nopResultsLogger{}
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	return e
}

// Decide returns the verdict for addr and carries out the side effects it implies.
// It never fails: provider, ban list and alert errors are logged and degrade toward ALLOW.
func (e *Engine) Decide(ctx context.Context, addr string) (d Decision) {
	logger := e.logger.With().Str("ip", addr).Logger()
	startTime := time.Now()
	ctx, span := tracing.StartSpan(ctx, "verdict.Decide", tracing.ClientIP(addr))
	defer func() {
		span.SetAttributes(tracing.Verdict(string(d.Verdict)), tracing.Reason(string(d.Reason)))
		span.End()
		e.observer.DecisionMade(d.Verdict, d.Reason, time.Since(startTime))
		logger.Info().Str("verdict", string(d.Verdict)).Str("reason", string(d.Reason)).Int("flaggedVendors", d.FlaggedVendors).Int("totalFlags", d.TotalFlags).Dur("timeTaken", time.Since(startTime)).Msg("Decision")
	}()

	if d, done := e.policy.Precheck(addr); done {
		return d
	}

	if e.isBanned(logger, addr) {
		return e.policy.Banned(addr)
	}

	results := reputation.QueryAll(ctx, e.providers, addr)
	for _, r := range results {
		logger.Debug().Str("provider", r.Provider).Int("count", r.Count).Bool("ok", r.OK).Msg("Reputation signal")
	}

	d = e.policy.Judge(addr, results)
	e.apply(ctx, logger, d)
	e.resultsLogger.VerdictIssued(d)
	return
}

func (e *Engine) isBanned(logger zerolog.Logger, addr string) bool {
	unlock := e.lock(logger)
	defer unlock()

	e.cache.Load()
	return e.cache.Contains(addr)
}

// apply carries out the intents of d in order.
func (e *Engine) apply(ctx context.Context, logger zerolog.Logger, d Decision) {
	for _, in := range d.Intents {
		switch in.Kind {
		case PersistBan:
			e.persistBan(logger, in.Address, in.TTL)
		case SendAlert:
			alert.Notify(ctx, logger, e.sink, in.Alert)
		}
	}
}

// persistBan reloads the ban list before inserting, so bans written by others
// while the providers were being queried are kept.
func (e *Engine) persistBan(logger zerolog.Logger, addr string, ttl time.Duration) {
	unlock := e.lock(logger)
	defer unlock()

	e.cache.Load()
	expiry := e.cache.Insert(addr, ttl)
	if err := e.cache.Save(); err != nil {
		logger.Error().Err(err).Msg("Error while saving ban list")
		return
	}
	logger.Debug().Int64("expiry", expiry).Msg("Address banned")
}

func (e *Engine) lock(logger zerolog.Logger) (unlock func()) {
	e.mu.Lock()

	fileUnlock, err := e.locker.Lock()
	if err != nil {
		logger.Warn().Err(err).Msg("Error while locking ban list, continuing unlocked")
		fileUnlock = func() {}
	}

	return func() {
		fileUnlock()
		e.mu.Unlock()
	}
}
