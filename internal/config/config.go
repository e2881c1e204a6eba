// Package config provides configuration loading from environment variables,
// .env files and YAML profiles.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"towerrunner/internal/apperrors"
)

// Defaults applied to zero values by WithDefaults.
const (
	DefaultPollInterval   = 10 * time.Second
	DefaultPageSize       = 10
	DefaultRequestTimeout = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// RunConfig holds everything a single tower run needs.
type RunConfig struct {
	URL         string // Tower endpoint, e.g. https://tower.example.com
	Username    string
	Password    string
	JobTemplate string

	PollInterval     time.Duration // Delay between status polls
	PageSize         int           // job_events page size
	MaxPages         int           // Pages followed per fetch (0 = unbounded)
	RequestTimeout   time.Duration // Per-request HTTP timeout
	TransportRetries int           // Retries for network failures only (0 = none)
	Insecure         bool          // Skip TLS verification

	CallbackURL string // CloudEvent webhook for the run result
	CallbackKey string // HMAC key for the webhook

	MetricsPort    string // Serve /metrics while running (empty = disabled)
	PushgatewayURL string // Push metrics at exit (empty = disabled)

	LogLevel  string
	LogFormat string // "text" or "json"

	// fromEnv holds the profile keys of typed fields the environment set,
	// so an explicit zero from the environment still beats the profile.
	fromEnv map[string]bool
}

// LoadFromEnv reads configuration from environment variables.
// Unset values are left zero so later layers can fill them. Malformed
// numbers, durations and booleans are configuration errors.
func LoadFromEnv() (*RunConfig, error) {
	password := GetEnv("TOWER_PASSWORD", "")
	if password == "" {
		password = GetSecretFile(GetEnv("TOWER_PASSWORD_FILE", ""))
	}

	callbackKey := GetEnv("TOWER_CALLBACK_KEY", "")
	if callbackKey == "" {
		callbackKey = GetSecretFile(GetEnv("TOWER_CALLBACK_KEY_FILE", ""))
	}

	cfg := &RunConfig{
		URL:            GetEnv("TOWER_URL", GetEnv("ENDPOINT_URL", "")),
		Username:       GetEnv("TOWER_USERNAME", ""),
		Password:       password,
		JobTemplate:    GetEnv("TOWER_JOB_TEMPLATE", GetEnv("INPUT_JOBTEMPLATENAME", "")),
		CallbackURL:    GetEnv("TOWER_CALLBACK_URL", ""),
		CallbackKey:    callbackKey,
		MetricsPort:    GetEnv("METRICS_PORT", ""),
		PushgatewayURL: GetEnv("PUSHGATEWAY_URL", ""),
		LogLevel:       GetEnv("LOG_LEVEL", ""),
		LogFormat:      GetEnv("LOG_FORMAT", ""),
		fromEnv:        make(map[string]bool),
	}

	l := envLoader{cfg: cfg}
	l.durationVar("TOWER_POLL_INTERVAL", "pollInterval", &cfg.PollInterval)
	l.intVar("TOWER_PAGE_SIZE", "pageSize", &cfg.PageSize)
	l.intVar("TOWER_MAX_PAGES", "maxPages", &cfg.MaxPages)
	l.durationVar("TOWER_REQUEST_TIMEOUT", "requestTimeout", &cfg.RequestTimeout)
	l.intVar("TOWER_TRANSPORT_RETRIES", "transportRetries", &cfg.TransportRetries)
	l.boolVar("TOWER_INSECURE", "insecure", &cfg.Insecure)
	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envLoader parses typed variables into a RunConfig, remembering which
// were set and collecting parse failures.
type envLoader struct {
	cfg  *RunConfig
	errs []error
}

func (l *envLoader) intVar(key, field string, dst *int) {
	v, ok, err := LookupIntEnv(key)
	l.store(field, ok, err, func() { *dst = v })
}

func (l *envLoader) durationVar(key, field string, dst *time.Duration) {
	v, ok, err := LookupDurationEnv(key)
	l.store(field, ok, err, func() { *dst = v })
}

func (l *envLoader) boolVar(key, field string, dst *bool) {
	v, ok, err := LookupBoolEnv(key)
	l.store(field, ok, err, func() { *dst = v })
}

func (l *envLoader) store(field string, ok bool, err error, set func()) {
	switch {
	case err != nil:
		l.errs = append(l.errs, apperrors.Config(field, err.Error()))
	case ok:
		set()
		l.cfg.fromEnv[field] = true
	}
}

// WithDefaults fills in zero values with defaults.
func (c RunConfig) WithDefaults() RunConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	c.URL = strings.TrimRight(c.URL, "/")
	return c
}

// Validate checks required fields. Call after WithDefaults.
func (c RunConfig) Validate() error {
	if c.URL == "" {
		return apperrors.Config("url", "endpoint URL is required")
	}
	if err := validateURL(c.URL); err != nil {
		return apperrors.Config("url", fmt.Sprintf("invalid endpoint URL: %v", err))
	}
	if c.Username == "" {
		return apperrors.Config("username", "username is required")
	}
	if c.Password == "" {
		return apperrors.Config("password", "password is required")
	}
	if c.JobTemplate == "" {
		return apperrors.Config("jobTemplate", "job template name is required")
	}
	if c.MaxPages < 0 {
		return apperrors.Config("maxPages", "max pages cannot be negative")
	}
	if c.TransportRetries < 0 {
		return apperrors.Config("transportRetries", "transport retries cannot be negative")
	}
	if c.CallbackURL != "" {
		if err := validateURL(c.CallbackURL); err != nil {
			return apperrors.Config("callbackUrl", fmt.Sprintf("invalid callback URL: %v", err))
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return apperrors.Config("logFormat", fmt.Sprintf("log format must be text or json, got %q", c.LogFormat))
	}
	return nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
