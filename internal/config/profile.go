package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a YAML file of per-environment defaults. Secrets are not read
// from profiles; use the environment or a secret file.
type Profile struct {
	URL              string        `yaml:"url"`
	Username         string        `yaml:"username"`
	JobTemplate      string        `yaml:"jobTemplate"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	PageSize         int           `yaml:"pageSize"`
	MaxPages         int           `yaml:"maxPages"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`
	TransportRetries int           `yaml:"transportRetries"`
	Insecure         bool          `yaml:"insecure"`
	CallbackURL      string        `yaml:"callbackUrl"`
	MetricsPort      string        `yaml:"metricsPort"`
	PushgatewayURL   string        `yaml:"pushgatewayUrl"`
	LogLevel         string        `yaml:"logLevel"`
	LogFormat        string        `yaml:"logFormat"`
}

// LoadProfile reads a YAML profile. An empty path yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes profile YAML, rejecting unknown keys.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &p, nil
}

// ApplyProfile fills fields still at their zero value from the profile.
// Typed fields the environment set explicitly are kept even when zero.
func (c *RunConfig) ApplyProfile(p *Profile) {
	if p == nil {
		return
	}
	setString(&c.URL, p.URL)
	setString(&c.Username, p.Username)
	setString(&c.JobTemplate, p.JobTemplate)
	setString(&c.CallbackURL, p.CallbackURL)
	setString(&c.MetricsPort, p.MetricsPort)
	setString(&c.PushgatewayURL, p.PushgatewayURL)
	setString(&c.LogLevel, p.LogLevel)
	setString(&c.LogFormat, p.LogFormat)

	setTyped(c, "pollInterval", &c.PollInterval, p.PollInterval)
	setTyped(c, "requestTimeout", &c.RequestTimeout, p.RequestTimeout)
	setTyped(c, "pageSize", &c.PageSize, p.PageSize)
	setTyped(c, "maxPages", &c.MaxPages, p.MaxPages)
	setTyped(c, "transportRetries", &c.TransportRetries, p.TransportRetries)
	setTyped(c, "insecure", &c.Insecure, p.Insecure)
}

func setTyped[T comparable](c *RunConfig, field string, dst *T, v T) {
	var zero T
	if c.fromEnv[field] || *dst != zero {
		return
	}
	*dst = v
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
