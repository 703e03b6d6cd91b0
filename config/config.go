package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"modsecmon/alert"
	"modsecmon/bancache"
	"modsecmon/ipaddresses"
	"modsecmon/reputation"
	"modsecmon/verdict"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// Default file locations of a stock Apache ModSecurity install.
const (
	DefaultBanCachePath  = "/var/cache/modsec-threat-monitor/ip_banlist.json"
	DefaultAuditLog      = "/var/log/apache2/modsec_audit.log"
	DefaultRecordsOutput = "/var/www/html/modsec_data.json"
	DefaultBanCacheKey   = "modsec-threat-monitor:ip_banlist"
)

// Environment variables that override the file.
const (
	EnvVirusTotalKey = "VIRUSTOTAL_API_KEY"
	EnvOTXKey        = "OTX_API_KEY"
	EnvAbuseIPDBKey  = "ABUSEIPDB_API_KEY"
	EnvWebhookURL    = "ALERT_WEBHOOK_URL"
)

// Duration is a time.Duration read from a Go duration string such as "24h".
type Duration time.Duration

// UnmarshalYAML accepts duration strings, and plain integers as seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int64
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Provider configures one reputation provider.
type Provider struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Enabled *bool  `yaml:"enabled"`
}

// On reports whether the provider takes part in decisions. Providers are on unless disabled.
func (p Provider) On() bool {
	return p.Enabled == nil || *p.Enabled
}

// Providers groups the provider settings.
type Providers struct {
	VirusTotal Provider `yaml:"virustotal"`
	AlienVault Provider `yaml:"alienvault"`
	AbuseIPDB  Provider `yaml:"abuseipdb"`
}

// Alert configures the webhook sink.
type Alert struct {
	WebhookURL string   `yaml:"webhook_url"`
	Timeout    Duration `yaml:"timeout"`
}

// AbuseIPDB holds AbuseIPDB query parameters.
type AbuseIPDB struct {
	MaxAgeDays int `yaml:"max_age_days"`
}

// Config is the monitor configuration.
type Config struct {
	Allowlist           []string  `yaml:"allowlist"`
	BanTTL              Duration  `yaml:"ban_ttl"`
	ProviderTimeout     Duration  `yaml:"provider_timeout"`
	MinTotalFlags       int       `yaml:"min_total_flags"`
	MinFlaggedVendors   int       `yaml:"min_flagged_vendors"`
	AllowSpecialPurpose bool      `yaml:"allow_special_purpose"`
	AlertOnFailure      bool      `yaml:"alert_on_provider_failure"`
	BanCachePath        string    `yaml:"ban_cache_path"`
	BanCacheRedis       string    `yaml:"ban_cache_redis"`
	BanCacheKey         string    `yaml:"ban_cache_key"`
	ResultsLog          string    `yaml:"results_log"`
	Alert               Alert     `yaml:"alert"`
	Providers           Providers `yaml:"providers"`
	AbuseIPDB           AbuseIPDB `yaml:"abuseipdb"`
	LogLevel            string    `yaml:"log_level"`
	LogFormat           string    `yaml:"log_format"`
	GRPCAddress         string    `yaml:"grpc_address"`
	MetricsAddress      string    `yaml:"metrics_address"`
	AuditLog            string    `yaml:"audit_log"`
	RecordsOutput       string    `yaml:"records_output"`
	GeoIPData           string    `yaml:"geoip_data"`
	OTLPEndpoint        string    `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		BanTTL:            Duration(bancache.DefaultTTL),
		ProviderTimeout:   Duration(reputation.DefaultTimeout),
		MinTotalFlags:     verdict.DefaultMinTotalFlags,
		MinFlaggedVendors: verdict.DefaultMinFlaggedVendors,
		BanCachePath:      DefaultBanCachePath,
		BanCacheKey:       DefaultBanCacheKey,
		Alert:             Alert{Timeout: Duration(alert.DefaultWebhookTimeout)},
		AbuseIPDB:         AbuseIPDB{MaxAgeDays: reputation.DefaultMaxAgeDays},
		LogLevel:          "info",
		LogFormat:         "console",
		GRPCAddress:       "127.0.0.1:50051",
		MetricsAddress:    ":9464",
		AuditLog:          DefaultAuditLog,
		RecordsOutput:     DefaultRecordsOutput,
	}
}

// Load reads the YAML file at path on top of the defaults, then applies the environment.
// An empty path skips the file. envFile names an optional dotenv file; a missing one is ignored.
func Load(path string, envFile string) (c Config, err error) {
	c = Default()

	if path != "" {
		var b []byte
		b, err = ioutil.ReadFile(path)
		if err != nil {
			err = fmt.Errorf("reading config file %v: %w", path, err)
			return
		}
		if err = Parse(b, &c); err != nil {
			err = fmt.Errorf("parsing config file %v: %w", path, err)
			return
		}
	}

	if envFile != "" {
		// Variables already set in the process win over the file.
		if err = godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("reading env file %v: %w", envFile, err)
			return
		}
		err = nil
	}

	c.ApplyEnv(os.LookupEnv)
	err = c.Validate()
	return
}

// Parse decodes YAML into c. Keys missing from the document keep their current value.
func Parse(b []byte, c *Config) error {
	return yaml.Unmarshal(b, c)
}

// ApplyEnv overrides API keys and the webhook URL from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, name string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Providers.VirusTotal.APIKey, EnvVirusTotalKey)
	set(&c.Providers.AlienVault.APIKey, EnvOTXKey)
	set(&c.Providers.AbuseIPDB.APIKey, EnvAbuseIPDBKey)
	set(&c.Alert.WebhookURL, EnvWebhookURL)
}

// Validate checks value ranges and allowlist syntax.
func (c Config) Validate() error {
	switch {
	case c.BanTTL < 0:
		return fmt.Errorf("%w: ban_ttl must not be negative", ErrInvalid)
	case c.ProviderTimeout < 0:
		return fmt.Errorf("%w: provider_timeout must not be negative", ErrInvalid)
	case c.Alert.Timeout < 0:
		return fmt.Errorf("%w: alert.timeout must not be negative", ErrInvalid)
	case c.MinTotalFlags < 1:
		return fmt.Errorf("%w: min_total_flags must be at least 1", ErrInvalid)
	case c.MinFlaggedVendors < 1:
		return fmt.Errorf("%w: min_flagged_vendors must be at least 1", ErrInvalid)
	case c.AbuseIPDB.MaxAgeDays < 1:
		return fmt.Errorf("%w: abuseipdb.max_age_days must be at least 1", ErrInvalid)
	case c.BanCacheRedis == "" && c.BanCachePath == "":
		return fmt.Errorf("%w: ban_cache_path is empty", ErrInvalid)
	case c.BanCacheRedis != "" && c.BanCacheKey == "":
		return fmt.Errorf("%w: ban_cache_key is empty", ErrInvalid)
	}

	if _, err := ipaddresses.NewSet(c.Allowlist); err != nil {
		return fmt.Errorf("%w: allowlist: %v", ErrInvalid, err)
	}
	return nil
}

// Policy builds the verdict policy.
func (c Config) Policy() (verdict.Policy, error) {
	allowlist, err := ipaddresses.NewSet(c.Allowlist)
	if err != nil {
		return verdict.Policy{}, fmt.Errorf("%w: allowlist: %v", ErrInvalid, err)
	}

	return verdict.Policy{
		Allowlist:              allowlist,
		AllowSpecialPurpose:    c.AllowSpecialPurpose,
		AlertOnProviderFailure: c.AlertOnFailure,
		BanTTL:                 time.Duration(c.BanTTL),
		MinTotalFlags:          c.MinTotalFlags,
		MinFlaggedVendors:      c.MinFlaggedVendors,
	}, nil
}

// BuildProviders creates the enabled providers in the order VirusTotal, AlienVault, AbuseIPDB.
func (c Config) BuildProviders(logger zerolog.Logger, obs reputation.Observer) []reputation.Provider {
	opts := func(p Provider) reputation.Options {
		return reputation.Options{
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Timeout:  time.Duration(c.ProviderTimeout),
			Observer: obs,
		}
	}

	var pp []reputation.Provider
	if c.Providers.VirusTotal.On() {
		pp = append(pp, reputation.NewVirusTotal(logger, opts(c.Providers.VirusTotal)))
	}
	if c.Providers.AlienVault.On() {
		pp = append(pp, reputation.NewAlienVault(logger, opts(c.Providers.AlienVault)))
	}
	if c.Providers.AbuseIPDB.On() {
		pp = append(pp, reputation.NewAbuseIPDB(logger, opts(c.Providers.AbuseIPDB), c.AbuseIPDB.MaxAgeDays))
	}

	for _, p := range pp {
		logger.Debug().Str("provider", p.Name()).Msg("Reputation provider enabled")
	}
	return pp
}

// AlertSink returns the webhook sink, or a sink that only logs when no webhook URL is set.
func (c Config) AlertSink(logger zerolog.Logger) alert.Sink {
	if c.Alert.WebhookURL == "" {
		return &alert.LogSink{Logger: logger}
	}
	return alert.NewWebhookSink(c.Alert.WebhookURL, time.Duration(c.Alert.Timeout), nil)
}
