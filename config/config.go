// Package config loads and validates TOML configuration for the sync
// engine and its transport. Durations are written as millisecond counts
// (stale_after_ms = 30000); absent fields inherit the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/resourcesync"
)

// Config is the full configuration document. The zero value is usable and
// yields the built-in defaults everywhere.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string `toml:"base_url"`

	// UserAgent is sent with every request when non-empty.
	UserAgent string `toml:"user_agent"`

	// TimeoutMs bounds each HTTP request in milliseconds. Zero keeps the
	// transport default.
	TimeoutMs int64 `toml:"timeout_ms"`

	// Verbose enables debug logging.
	Verbose bool `toml:"verbose"`

	// Default overrides the fallback cache policy applied to resources
	// without an explicit section.
	Default *ResourceConfig `toml:"default"`

	// Resources holds per-resource policy overrides, keyed by resource
	// name or wildcard pattern ("tasks/*").
	Resources map[string]ResourceConfig `toml:"resources"`

	// Rules maps a mutation's resource type to the cache key prefixes it
	// invalidates.
	Rules map[string][]string `toml:"rules"`
}

// ResourceConfig tunes one resource's cache policy. Zero fields inherit
// from the default section, or from the built-in defaults when that is
// absent too.
type ResourceConfig struct {
	StaleAfterMs   int64        `toml:"stale_after_ms"`
	GCAfterMs      int64        `toml:"gc_after_ms"`
	PollIntervalMs int64        `toml:"poll_interval_ms"`
	Retry          *RetryConfig `toml:"retry"`
}

// RetryConfig tunes the fetch retry policy for one resource.
type RetryConfig struct {
	MaxAttempts   int     `toml:"max_attempts"`
	BaseDelayMs   int64   `toml:"base_delay_ms"`
	BackoffFactor float64 `toml:"backoff_factor"`
}

// ConfigError reports one rejected configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

// LoadFile reads and parses a TOML configuration file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses TOML from r. Unrecognized keys are rejected, so a typo like
// stale_after fails loudly instead of silently keeping the default.
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the raw document. Zero-valued fields pass, they mean
// "inherit"; explicit negatives, malformed URLs, and blank rule entries
// are rejected as ConfigError values.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.By(httpURL)),
		validation.Field(&c.TimeoutMs, validation.Min(int64(0))),
		validation.Field(&c.Default),
		validation.Field(&c.Resources),
		validation.Field(&c.Rules, validation.By(ruleEntries)),
	)
	return wrapValidation(err)
}

// Validate checks one resource section.
func (rc ResourceConfig) Validate() error {
	return validation.ValidateStruct(&rc,
		validation.Field(&rc.StaleAfterMs, validation.Min(int64(0))),
		validation.Field(&rc.GCAfterMs, validation.Min(int64(0))),
		validation.Field(&rc.PollIntervalMs, validation.Min(int64(0))),
		validation.Field(&rc.Retry),
	)
}

// Validate checks one retry section.
func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MaxAttempts, validation.Min(0)),
		validation.Field(&r.BaseDelayMs, validation.Min(int64(0))),
		validation.Field(&r.BackoffFactor, validation.By(backoffFactor)),
	)
}

// Timeout returns the configured HTTP timeout, zero when unset.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PolicySet converts the document's resource sections into cache policies.
// The default section seeds the fallback; every other section starts from
// that fallback and overrides only the fields it sets.
func (c *Config) PolicySet() *cache.PolicySet {
	fallback := cache.DefaultPolicy()
	if c.Default != nil {
		fallback = c.Default.policy(fallback)
	}

	ps := cache.NewPolicySet(fallback)
	names := make([]string, 0, len(c.Resources))
	for name := range c.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ps.Set(name, c.Resources[name].policy(fallback))
	}
	return ps
}

// Ruleset converts the rules table into the engine's invalidation graph.
func (c *Config) Ruleset() resourcesync.Ruleset {
	if len(c.Rules) == 0 {
		return nil
	}
	rules := make(resourcesync.Ruleset, len(c.Rules))
	for resource, prefixes := range c.Rules {
		rules[resource] = append([]string(nil), prefixes...)
	}
	return rules
}

func (rc ResourceConfig) policy(base cache.Policy) cache.Policy {
	p := base
	if rc.StaleAfterMs > 0 {
		p.StaleAfter = time.Duration(rc.StaleAfterMs) * time.Millisecond
	}
	if rc.GCAfterMs > 0 {
		p.GCAfter = time.Duration(rc.GCAfterMs) * time.Millisecond
	}
	if rc.PollIntervalMs > 0 {
		p.PollInterval = time.Duration(rc.PollIntervalMs) * time.Millisecond
	}
	if rc.Retry != nil {
		if rc.Retry.MaxAttempts > 0 {
			p.Retry.MaxAttempts = rc.Retry.MaxAttempts
		}
		if rc.Retry.BaseDelayMs > 0 {
			p.Retry.BaseDelay = time.Duration(rc.Retry.BaseDelayMs) * time.Millisecond
		}
		if rc.Retry.BackoffFactor >= 1 {
			p.Retry.Factor = rc.Retry.BackoffFactor
		}
	}
	return p
}

func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func backoffFactor(value any) error {
	f, _ := value.(float64)
	if f != 0 && f < 1 {
		return errors.New("must be at least 1")
	}
	return nil
}

func ruleEntries(value any) error {
	rules, _ := value.(map[string][]string)
	for resource, prefixes := range rules {
		if strings.TrimSpace(resource) == "" {
			return errors.New("resource type names must not be blank")
		}
		if len(prefixes) == 0 {
			return fmt.Errorf("rule %q has no key prefixes", resource)
		}
		for _, p := range prefixes {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("rule %q has a blank key prefix", resource)
			}
		}
	}
	return nil
}

// wrapValidation flattens ozzo's nested error maps into ConfigError
// values joined in field order, so callers can errors.As for the first
// offending field.
func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	var out []error
	flattenErrors("", verrs, &out)
	return errors.Join(out...)
}

func flattenErrors(prefix string, verrs validation.Errors, out *[]error) {
	names := make([]string, 0, len(verrs))
	for name := range verrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		field := name
		if prefix != "" {
			field = prefix + "." + name
		}
		var nested validation.Errors
		if errors.As(verrs[name], &nested) {
			flattenErrors(field, nested, out)
			continue
		}
		*out = append(*out, &ConfigError{Field: field, Message: verrs[name].Error()})
	}
}
