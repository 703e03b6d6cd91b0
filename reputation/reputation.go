package reputation

import (
	"context"
	"time"

	"modsecmon/tracing"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Signal is the number of indicators one provider reports for an address.
// A zero Count means either "nothing found" or "query failed"; OK tells the two apart
// for diagnostics, but the verdict policy only ever looks at Count.
type Signal struct {
	Count int  `json:"count"`
	OK    bool `json:"ok"`
}

// Result is a Signal tagged with the provider it came from.
type Result struct {
	Provider string `json:"provider"`
	Signal
}

// Provider is one external threat intelligence source.
// Query never fails: every error is logged and reported as a zero, not-OK Signal.
type Provider interface {
	Name() string
	Query(ctx context.Context, addr string) Signal
}

// Observer receives the outcome of every provider query.
type Observer interface {
	QueryDone(provider string, outcome Outcome, elapsed time.Duration)
}

// Outcome classifies how a query ended.
type Outcome string

// Query outcomes
const (
	OutcomeOK        Outcome = "ok"
	OutcomeTransport Outcome = "transport_error"
	OutcomeStatus    Outcome = "bad_status"
	OutcomeMalformed Outcome = "malformed_body"
)

type nopObserver struct{}

func (nopObserver) QueryDone(string, Outcome, time.Duration) {}

// QueryAll asks every provider concurrently and waits for all of them.
// Results keep the order of providers.
func QueryAll(ctx context.Context, providers []Provider, addr string) []Result {
	results := make([]Result, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			ctx, span := tracing.StartSpan(gctx, "reputation.Query", tracing.Provider(p.Name()), tracing.ClientIP(addr))
			defer span.End()

			results[i] = Result{Provider: p.Name(), Signal: p.Query(ctx, addr)}
			span.SetAttributes(attribute.Int("reputation.count", results[i].Count), attribute.Bool("reputation.ok", results[i].OK))
			return nil
		})
	}
	g.Wait()

	return results
}
