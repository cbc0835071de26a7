package webnav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadgroove/firmfinder/httpcache"
	"github.com/leadgroove/firmfinder/record"
	"github.com/leadgroove/firmfinder/session"
)

// challengeMarkers are body substrings that indicate an interactive
// verification gate rather than a normal page.
var challengeMarkers = []string{
	"captcha",
	"checkpoint/challenge",
	"security verification",
	"verify you are human",
}

// rateLimitStatuses are the HTTP statuses the upstream service uses to shed
// automated traffic. 999 is its non-standard bot rejection code.
var rateLimitStatuses = map[int]bool{
	http.StatusTooManyRequests: true,
	999:                        true,
}

// Client is an HTTP navigator bound to one network identity. It satisfies
// both session.Navigator and session.Authenticator.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	endpoints  Endpoints
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache   httpcache.Cacher
	proxy   session.ProxyIdentity
	cookies map[string]string
	timeout time.Duration
	logger  *slog.Logger
}

// WithCache sets the page cache.
func WithCache(cache httpcache.Cacher) Option {
	return func(c *config) { c.cache = cache }
}

// WithProxy routes all requests through a sticky proxy identity.
func WithProxy(proxy session.ProxyIdentity) Option {
	return func(c *config) { c.proxy = proxy }
}

// WithCookies seeds the client's cookie jar.
func WithCookies(cookies map[string]string) Option {
	return func(c *config) { c.cookies = cookies }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a Client for the given endpoint layout.
func New(endpoints Endpoints, opts ...Option) (*Client, error) {
	cfg := &config{logger: slog.Default(), timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	base, err := url.Parse(endpoints.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", endpoints.BaseURL)
	}

	jar, err := session.NewCookieJar(base.Host, cfg.cookies)
	if err != nil {
		return nil, fmt.Errorf("cookie jar creation failed: %w", err)
	}

	transport := http.DefaultTransport
	if !cfg.proxy.Direct() {
		proxyURL := cfg.proxy.URL()
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		httpClient: &http.Client{Jar: jar, Timeout: cfg.timeout, Transport: transport},
		cache:      cfg.cache,
		endpoints:  endpoints,
		logger:     cfg.logger,
	}, nil
}

// Endpoints returns the client's endpoint layout.
func (c *Client) Endpoints() Endpoints { return c.endpoints }

// Navigate fetches one page and classifies the outcome. A non-nil error is
// one of the typed errors in the record package, or a plain transport error.
func (c *Client) Navigate(ctx context.Context, urlStr string) (*record.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	setHeaders(req)

	page, err := httpcache.FetchPage(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		return nil, c.classifyError(urlStr, err)
	}
	return page, c.classifyPage(page)
}

// classifyError maps HTTP status failures to the typed errors the session
// and resolution layers dispatch on.
func (c *Client) classifyError(urlStr string, err error) error {
	var httpErr *httpcache.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	switch {
	case httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusGone:
		return fmt.Errorf("%s: %w", urlStr, record.ErrUnavailable)
	case rateLimitStatuses[httpErr.StatusCode]:
		c.logger.Warn("rate limited", "url", urlStr, "status", httpErr.StatusCode)
		return fmt.Errorf("HTTP %d: %w", httpErr.StatusCode, record.ErrRateLimited)
	default:
		return err
	}
}

// classifyPage inspects a 200 response for soft failure signals: redirects
// to the dead-entity page or login wall, and challenge interstitials.
func (c *Client) classifyPage(page *record.Page) error {
	if c.endpoints.Unavailable(page.URL) {
		return fmt.Errorf("%s: %w", page.URL, record.ErrUnavailable)
	}
	if c.endpoints.LoginWalled(page.URL) {
		return fmt.Errorf("%s: %w", page.URL, record.ErrAuthRequired)
	}
	body := strings.ToLower(page.Body)
	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			c.logger.Warn("challenge page detected", "url", page.URL, "marker", marker)
			return fmt.Errorf("%s: %w", page.URL, record.ErrChallengeRequired)
		}
	}
	return nil
}

// Authenticate performs the login flow. Cookie-bearing credentials are
// installed directly; otherwise the login form is submitted and the landing
// page checked for rejection signals.
func (c *Client) Authenticate(ctx context.Context, creds session.Credentials) error {
	if creds.Empty() {
		return record.ErrNoCredentials
	}

	base, err := url.Parse(c.endpoints.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if len(creds.Cookies) > 0 {
		jar, err := session.NewCookieJar(base.Host, creds.Cookies)
		if err != nil {
			return fmt.Errorf("cookie jar creation failed: %w", err)
		}
		c.httpClient.Jar = jar
		c.logger.Debug("session cookies installed", "count", len(creds.Cookies))
		return nil
	}

	form := url.Values{}
	form.Set("session_key", creds.Email)
	form.Set("session_password", creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoints.LoginURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("login request creation failed: %w", err)
	}
	setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // intentional

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected with HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return fmt.Errorf("login response read failed: %w", err)
	}

	landing := resp.Request.URL.String()
	if c.endpoints.LoginWalled(landing) {
		return fmt.Errorf("credentials rejected at %s", landing)
	}
	lower := strings.ToLower(string(body))
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("login blocked: %w", record.ErrChallengeRequired)
		}
	}

	c.logger.Info("login succeeded", "landing", landing)
	return nil
}

func setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("DNT", "1")
	req.Header.Set("Sec-GPC", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
}
