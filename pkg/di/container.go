// Package di wires configuration, transport, session signaling, the sync
// engine, and the typed platform client into one ready-to-use container.
package di

import (
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/goliatone/go-resource-sync/cache"
	"github.com/goliatone/go-resource-sync/config"
	"github.com/goliatone/go-resource-sync/internal/logging"
	"github.com/goliatone/go-resource-sync/platform"
	"github.com/goliatone/go-resource-sync/resourcesync"
	"github.com/goliatone/go-resource-sync/session"
	"github.com/goliatone/go-resource-sync/transport"
)

// Options configures a Container. Only Config.BaseURL is strictly
// required; everything else has working defaults.
type Options struct {
	// Config drives transport settings, cache policies, and invalidation
	// rules. Resource sections absent from the document fall back to the
	// platform defaults.
	Config *config.Config

	// TokenSource supplies bearer tokens. Optional.
	TokenSource oauth2.TokenSource

	// Logger overrides the logger built from Config.Verbose.
	Logger *slog.Logger

	// Clock overrides wall-clock time, for tests.
	Clock cache.Clock
}

// Container holds singleton instances of every layer. Construct one at
// startup, hand Platform() to the UI, and Close it on shutdown.
type Container struct {
	cfg     *config.Config
	log     *slog.Logger
	session *session.Broadcaster
	api     *transport.Client
	engine  *resourcesync.Engine
	client  *platform.Client
}

// NewContainer builds the full dependency graph. When the configuration
// document declares no resource sections, the platform's per-resource
// policy table applies; the same fallback covers absent invalidation
// rules.
func NewContainer(opts Options) (*Container, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	log := opts.Logger
	if log == nil {
		log = logging.New(logging.Options{Verbose: cfg.Verbose})
	}

	sess := session.NewBroadcaster()

	api, err := transport.New(transport.Options{
		BaseURL:     cfg.BaseURL,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout(),
		TokenSource: opts.TokenSource,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	policies := cfg.PolicySet()
	if cfg.Default == nil && len(cfg.Resources) == 0 {
		policies = platform.DefaultPolicies()
	}
	rules := cfg.Ruleset()
	if rules == nil {
		rules = platform.DefaultRules()
	}

	engine, err := resourcesync.New(resourcesync.Options{
		Policies: policies,
		Rules:    rules,
		Session:  sess,
		Clock:    opts.Clock,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	client, err := platform.New(platform.Options{
		API:    api,
		Engine: engine,
		Logger: log,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}

	return &Container{
		cfg:     cfg,
		log:     log,
		session: sess,
		api:     api,
		engine:  engine,
		client:  client,
	}, nil
}

// NewContainerWithDefaults builds a container for the given API root with
// platform default policies and rules.
func NewContainerWithDefaults(baseURL string) (*Container, error) {
	return NewContainer(Options{Config: &config.Config{BaseURL: baseURL}})
}

// Config returns the configuration the container was built from.
func (c *Container) Config() *config.Config {
	return c.cfg
}

// Logger returns the shared logger.
func (c *Container) Logger() *slog.Logger {
	return c.log
}

// Session returns the session broadcaster. Call NotifyLogout on sign-out
// and register OnUnauthorized to trigger re-authentication.
func (c *Container) Session() *session.Broadcaster {
	return c.session
}

// API returns the HTTP transport, for calls outside the cached surface.
func (c *Container) API() *transport.Client {
	return c.api
}

// Engine returns the sync engine, for subscriptions and cache metrics.
func (c *Container) Engine() *resourcesync.Engine {
	return c.engine
}

// Platform returns the typed client the UI talks to.
func (c *Container) Platform() *platform.Client {
	return c.client
}

// Close shuts down polling and in-flight fetches. Safe to call more than
// once.
func (c *Container) Close() error {
	return c.engine.Close()
}
