package reputation

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Provider names, also used as metric labels and alert field titles.
const (
	VirusTotal = "virustotal"
	AlienVault = "alienvault"
	AbuseIPDB  = "abuseipdb"
)

// Default endpoints
const (
	VirusTotalURL = "https://www.virustotal.com"
	AlienVaultURL = "https://otx.alienvault.com"
	AbuseIPDBURL  = "https://api.abuseipdb.com"
)

// DefaultMaxAgeDays is how far back AbuseIPDB reports are considered.
const DefaultMaxAgeDays = 90

func baseURL(opts Options, def string) string {
	if opts.BaseURL == "" {
		return def
	}
	return strings.TrimRight(opts.BaseURL, "/")
}

type virusTotalReport struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious int `json:"malicious"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// NewVirusTotal creates a provider counting the engines that flag the address as malicious.
func NewVirusTotal(logger zerolog.Logger, opts Options) Provider {
	p := newHTTPProvider(logger, VirusTotal, opts)
	base := baseURL(opts, VirusTotalURL)

	p.newRequest = func(ctx context.Context, addr string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v3/ip_addresses/"+url.PathEscape(addr), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-apikey", opts.APIKey)
		return req, nil
	}

	p.extract = func(body []byte) (int, error) {
		var r virusTotalReport
		if err := json.Unmarshal(body, &r); err != nil {
			return 0, err
		}
		return r.Data.Attributes.LastAnalysisStats.Malicious, nil
	}

	return p
}

type alienVaultReport struct {
	PulseInfo struct {
		Count int `json:"count"`
	} `json:"pulse_info"`
}

// NewAlienVault creates a provider counting the OTX pulses that reference the address.
func NewAlienVault(logger zerolog.Logger, opts Options) Provider {
	p := newHTTPProvider(logger, AlienVault, opts)
	base := baseURL(opts, AlienVaultURL)

	p.newRequest = func(ctx context.Context, addr string) (*http.Request, error) {
		section := "IPv4"
		if strings.Contains(addr, ":") {
			section = "IPv6"
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/indicators/"+section+"/"+url.PathEscape(addr)+"/general", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-OTX-API-KEY", opts.APIKey)
		return req, nil
	}

	p.extract = func(body []byte) (int, error) {
		var r alienVaultReport
		if err := json.Unmarshal(body, &r); err != nil {
			return 0, err
		}
		return r.PulseInfo.Count, nil
	}

	return p
}

type abuseIPDBReport struct {
	Data struct {
		AbuseConfidenceScore int `json:"abuseConfidenceScore"`
	} `json:"data"`
}

// NewAbuseIPDB creates a provider that reports 1 when AbuseIPDB has any confidence the address is abusive.
// The confidence percentage itself is not a flag count, so it is reduced to a single flag.
func NewAbuseIPDB(logger zerolog.Logger, opts Options, maxAgeDays int) Provider {
	p := newHTTPProvider(logger, AbuseIPDB, opts)
	base := baseURL(opts, AbuseIPDBURL)
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}

	p.newRequest = func(ctx context.Context, addr string) (*http.Request, error) {
		q := url.Values{}
		q.Set("ipAddress", addr)
		q.Set("maxAgeInDays", strconv.Itoa(maxAgeDays))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v2/check?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Key", opts.APIKey)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	p.extract = func(body []byte) (int, error) {
		var r abuseIPDBReport
		if err := json.Unmarshal(body, &r); err != nil {
			return 0, err
		}
		if r.Data.AbuseConfidenceScore > 0 {
			return 1, nil
		}
		return 0, nil
	}

	return p
}
