package reputation

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single provider call when none is configured.
const DefaultTimeout = 5 * time.Second

// Provider responses are small; anything bigger than this is cut and will fail to decode.
const maxBodyBytes = 1 << 20

// Options are the settings shared by every HTTP provider.
type Options struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Client   *http.Client
	Observer Observer
}

type httpProvider struct {
	name       string
	logger     zerolog.Logger
	client     *http.Client
	timeout    time.Duration
	observer   Observer
	newRequest func(ctx context.Context, addr string) (*http.Request, error)
	extract    func(body []byte) (int, error)
}

func newHTTPProvider(logger zerolog.Logger, name string, opts Options) *httpProvider {
	p := &httpProvider{
		name:     name,
		logger:   logger.With().Str("provider", name).Logger(),
		client:   opts.Client,
		timeout:  opts.Timeout,
		observer: opts.Observer,
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	return p
}

func (p *httpProvider) Name() string {
	return p.name
}

func (p *httpProvider) Query(ctx context.Context, addr string) (sig Signal) {
	startTime := time.Now()
	outcome := OutcomeOK
	defer func() {
		p.observer.QueryDone(p.name, outcome, time.Since(startTime))
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := p.newRequest(ctx, addr)
	if err != nil {
		outcome = OutcomeTransport
		p.logger.Warn().Err(err).Str("ip", addr).Msg("Error while building provider request")
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		outcome = OutcomeTransport
		p.logger.Warn().Err(err).Str("ip", addr).Msg("Provider request failed")
		return
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		outcome = OutcomeTransport
		p.logger.Warn().Err(err).Str("ip", addr).Msg("Error while reading provider response")
		return
	}

	if resp.StatusCode != http.StatusOK {
		outcome = OutcomeStatus
		p.logger.Warn().Int("status", resp.StatusCode).Str("ip", addr).Str("body", truncate(body, 256)).Msg("Provider returned an error status")
		return
	}

	count, err := p.extract(body)
	if err != nil {
		outcome = OutcomeMalformed
		p.logger.Warn().Err(err).Str("ip", addr).Msg("Provider returned a malformed body")
		return
	}
	if count < 0 {
		count = 0
	}

	p.logger.Debug().Str("ip", addr).Int("count", count).Dur("timeTaken", time.Since(startTime)).Msg("Provider answered")
	return Signal{Count: count, OK: true}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:n])
}
