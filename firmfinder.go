// Package firmfinder resolves noisy business records against an
// authenticated online directory and enriches them with firmographic
// attributes and decision-maker contacts.
//
// Basic usage:
//
//	result, err := firmfinder.ResolveOne(ctx, firmfinder.Target{RawName: "Acme Global Holdings"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Tier, result.Attrs["website"])
//
// Batches run across multiple sessions with checkpointing:
//
//	results, err := firmfinder.ResolveBatch(ctx, targets,
//	    firmfinder.WithCredentials("user@example.com", "secret"),
//	    firmfinder.WithSessions(2))
//
// Or wire the layers directly: resolve.Engine for the per-target state
// machine, batch.Coordinator for orchestration, webnav.Client for transport.
package firmfinder

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/leadgroove/firmfinder/batch"
	"github.com/leadgroove/firmfinder/extract"
	"github.com/leadgroove/firmfinder/httpcache"
	"github.com/leadgroove/firmfinder/record"
	"github.com/leadgroove/firmfinder/resolve"
	"github.com/leadgroove/firmfinder/session"
	"github.com/leadgroove/firmfinder/webnav"
)

// DefaultBaseURL is the origin of the primary upstream directory service.
const DefaultBaseURL = "https://www.linkedin.com"

type (
	// Target re-exports record.Target for convenience.
	Target = record.Target
	// Result re-exports record.Result for convenience.
	Result = record.Result
	// Endpoints re-exports webnav.Endpoints for convenience.
	Endpoints = webnav.Endpoints
	// Credentials re-exports session.Credentials for convenience.
	Credentials = session.Credentials
)

// Re-export common errors.
var (
	ErrAuthRequired      = record.ErrAuthRequired
	ErrNoCredentials     = record.ErrNoCredentials
	ErrUnavailable       = record.ErrUnavailable
	ErrRateLimited       = record.ErrRateLimited
	ErrChallengeRequired = record.ErrChallengeRequired
)

// Option configures ResolveOne and ResolveBatch.
type Option func(*config)

//nolint:govet // fieldalignment: intentional layout for readability
type config struct {
	endpoints webnav.Endpoints

	creds          session.Credentials
	browserCookies bool

	proxyHost string
	proxyUser string
	proxyPass string

	cache httpcache.Cacher
	store batch.Store

	threshold     float64
	contactReveal bool

	sessions        int
	subBatchSize    int
	checkpointEvery int

	pacingMin   time.Duration
	pacingMax   time.Duration
	cooldownMin time.Duration
	cooldownMax time.Duration

	challenge        batch.ChallengeResolver
	challengeTimeout time.Duration
	timeout          time.Duration
	logger           *slog.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{
		endpoints:        webnav.DefaultEndpoints(DefaultBaseURL),
		threshold:        resolve.DefaultThreshold,
		sessions:         1,
		subBatchSize:     batch.DefaultSubBatchSize,
		checkpointEvery:  batch.DefaultCheckpointEvery,
		pacingMin:        1500 * time.Millisecond,
		pacingMax:        2500 * time.Millisecond,
		cooldownMin:      batch.DefaultCooldownMin,
		cooldownMax:      batch.DefaultCooldownMax,
		challengeTimeout: batch.DefaultChallengeTimeout,
		timeout:          15 * time.Second,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithBaseURL points resolution at a different service origin, keeping the
// default URL layout.
func WithBaseURL(baseURL string) Option {
	return func(c *config) { c.endpoints = webnav.DefaultEndpoints(baseURL) }
}

// WithEndpoints sets a fully custom URL layout.
func WithEndpoints(endpoints webnav.Endpoints) Option {
	return func(c *config) { c.endpoints = endpoints }
}

// WithCredentials sets the login pair for session authentication.
func WithCredentials(email, password string) Option {
	return func(c *config) {
		c.creds.Email = email
		c.creds.Password = password
	}
}

// WithCookies sets explicit session cookies, skipping the login flow.
func WithCookies(cookies map[string]string) Option {
	return func(c *config) { c.creds.Cookies = cookies }
}

// WithBrowserCookies enables reading session cookies from browser stores.
func WithBrowserCookies() Option {
	return func(c *config) { c.browserCookies = true }
}

// WithProxy routes sessions through a sticky-session proxy gateway. Each
// session derives its own sticky token, so sessions get distinct exit
// addresses.
func WithProxy(host, username, password string) Option {
	return func(c *config) {
		c.proxyHost = host
		c.proxyUser = username
		c.proxyPass = password
	}
}

// WithCache sets the page cache shared by all sessions.
func WithCache(cache httpcache.Cacher) Option {
	return func(c *config) { c.cache = cache }
}

// WithStore sets the checkpoint store for batch resume.
func WithStore(store batch.Store) Option {
	return func(c *config) { c.store = store }
}

// WithThreshold overrides the candidate acceptance threshold.
func WithThreshold(threshold float64) Option {
	return func(c *config) { c.threshold = threshold }
}

// WithContactReveal enables following decision-maker profiles for contact
// details.
func WithContactReveal() Option {
	return func(c *config) { c.contactReveal = true }
}

// WithSessions sets how many sessions run in parallel during a batch.
func WithSessions(n int) Option {
	return func(c *config) { c.sessions = n }
}

// WithSubBatchSize sets how many targets share one session.
func WithSubBatchSize(n int) Option {
	return func(c *config) { c.subBatchSize = n }
}

// WithCheckpointEvery sets how many completions trigger a checkpoint write.
func WithCheckpointEvery(n int) Option {
	return func(c *config) { c.checkpointEvery = n }
}

// WithPacing bounds the jittered delay after every navigation.
func WithPacing(minDelay, maxDelay time.Duration) Option {
	return func(c *config) { c.pacingMin, c.pacingMax = minDelay, maxDelay }
}

// WithCooldown bounds the pause taken after a rate-limit signal.
func WithCooldown(minDelay, maxDelay time.Duration) Option {
	return func(c *config) { c.cooldownMin, c.cooldownMax = minDelay, maxDelay }
}

// WithChallengeResolver installs a handler for verification gates.
func WithChallengeResolver(r batch.ChallengeResolver) Option {
	return func(c *config) { c.challenge = r }
}

// WithChallengeTimeout bounds how long a challenge resolver may take before
// the session is abandoned.
func WithChallengeTimeout(d time.Duration) Option {
	return func(c *config) { c.challengeTimeout = d }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// ResolveOne resolves a single target over a fresh session.
func ResolveOne(ctx context.Context, target Target, opts ...Option) (Result, error) {
	cfg := newConfig(opts)
	factory, engine, err := build(ctx, cfg)
	if err != nil {
		return Result{}, err
	}

	sess, err := factory(ctx)
	if err != nil {
		return Result{}, err
	}
	defer sess.Release()

	return engine.Resolve(ctx, sess, target)
}

// ResolveBatch resolves many targets with sub-batching, checkpointing, and
// cooldown recovery. Results come back in input order.
func ResolveBatch(ctx context.Context, targets []Target, opts ...Option) ([]Result, error) {
	cfg := newConfig(opts)
	factory, engine, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	coordOpts := []batch.Option{
		batch.WithSubBatchSize(cfg.subBatchSize),
		batch.WithCheckpointEvery(cfg.checkpointEvery),
		batch.WithCooldown(cfg.cooldownMin, cfg.cooldownMax),
		batch.WithChallengeTimeout(cfg.challengeTimeout),
		batch.WithConcurrency(cfg.sessions),
		batch.WithLogger(cfg.logger),
	}
	if cfg.store != nil {
		coordOpts = append(coordOpts, batch.WithStore(cfg.store))
	}
	if cfg.challenge != nil {
		coordOpts = append(coordOpts, batch.WithChallengeResolver(cfg.challenge))
	}

	coord := batch.New(engine, factory, coordOpts...)
	return coord.Run(ctx, targets)
}

// build assembles the session factory and resolution engine from a config.
func build(ctx context.Context, cfg *config) (batch.SessionFactory, *resolve.Engine, error) {
	base, err := url.Parse(cfg.endpoints.BaseURL)
	if err != nil || base.Host == "" {
		return nil, nil, fmt.Errorf("invalid base URL %q", cfg.endpoints.BaseURL)
	}

	sources := []session.Source{session.NewStaticSource(cfg.creds), session.EnvSource{}}
	if cfg.browserCookies {
		sources = append(sources, session.NewBrowserSource(base.Host, cfg.logger))
	}
	creds, err := session.ChainSources(ctx, sources...)
	if err != nil {
		return nil, nil, fmt.Errorf("credential retrieval failed: %w", err)
	}

	factory := func(ctx context.Context) (*session.Session, error) {
		proxy := session.NewProxyIdentity(cfg.proxyHost, cfg.proxyUser, cfg.proxyPass, uuid.NewString()[:8])

		client, err := webnav.New(cfg.endpoints,
			webnav.WithCache(cfg.cache),
			webnav.WithProxy(proxy),
			webnav.WithCookies(creds.Cookies),
			webnav.WithTimeout(cfg.timeout),
			webnav.WithLogger(cfg.logger),
		)
		if err != nil {
			return nil, err
		}

		return session.Acquire(ctx, session.Config{
			Navigator:     client,
			Authenticator: client,
			Credentials:   creds,
			Proxy:         proxy,
			PacingMin:     cfg.pacingMin,
			PacingMax:     cfg.pacingMax,
			Logger:        cfg.logger,
		})
	}

	engineOpts := []resolve.Option{
		resolve.WithThreshold(cfg.threshold),
		resolve.WithLogger(cfg.logger),
	}
	if cfg.contactReveal {
		engineOpts = append(engineOpts, resolve.WithContactReveal())
	}
	engine := resolve.New(cfg.endpoints, extract.HTMLAdapter{}, engineOpts...)

	return factory, engine, nil
}
