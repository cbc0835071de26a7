// Package session manages authenticated, proxy-bound client sessions.
//
// A session owns one network identity and one credential set for its whole
// lifetime. It is checked out by exactly one worker at a time, authenticated
// once, reused across many targets, and torn down at batch end or on an
// unrecoverable failure.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadgroove/firmfinder/record"
)

// State is the lifecycle state of a session.
type State int

const (
	StateCreated State = iota
	StateAuthenticating
	StateReady
	StateRateLimited
	StateChallengeRequired
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateRateLimited:
		return "rate_limited"
	case StateChallengeRequired:
		return "challenge_required"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned when a closed session is asked to navigate.
var ErrClosed = errors.New("session closed")

// Navigator performs one navigation for a session. Implementations map
// remote failure signals to the typed errors in the record package.
type Navigator interface {
	Navigate(ctx context.Context, url string) (*record.Page, error)
}

// Authenticator performs the login flow for a session's credentials.
// Implementations must be idempotent when already authenticated.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) error
}

// Config describes everything a session needs. No process-wide lookups: the
// credential set and proxy identity are explicit per session.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Config struct {
	Navigator     Navigator
	Authenticator Authenticator
	Credentials   Credentials
	Proxy         ProxyIdentity

	// PacingMin/PacingMax bound the jittered delay issued after every
	// navigation. This is a correctness requirement against the upstream
	// service's anti-automation defenses, not an optimization.
	PacingMin time.Duration
	PacingMax time.Duration

	// Sleep is injectable for tests; nil means time.Sleep.
	Sleep func(time.Duration)

	Logger *slog.Logger
}

// Session is one authenticated, proxied client handle.
type Session struct {
	id     string
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	authenticated bool
	targetsServed int
}

// Acquire creates a session from the given configuration.
func Acquire(_ context.Context, cfg Config) (*Session, error) {
	if cfg.Navigator == nil {
		return nil, errors.New("session config requires a navigator")
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PacingMin < 0 || cfg.PacingMax < cfg.PacingMin {
		return nil, fmt.Errorf("invalid pacing bounds: min %v max %v", cfg.PacingMin, cfg.PacingMax)
	}

	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		logger: cfg.Logger.With("session", ""),
		state:  StateCreated,
	}
	s.logger = cfg.Logger.With("session", s.id[:8])
	s.logger.Debug("session acquired", "proxy", cfg.Proxy.Redacted())
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TargetsServed reports how many targets this session has completed.
func (s *Session) TargetsServed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetsServed
}

// MarkServed records one completed target.
func (s *Session) MarkServed() {
	s.mu.Lock()
	s.targetsServed++
	s.mu.Unlock()
}

// Authenticate runs the login flow once. Calling it again after success is a
// no-op. Without an authenticator or credentials it fails with
// record.ErrNoCredentials.
func (s *Session) Authenticate(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.authenticated {
		s.mu.Unlock()
		return nil
	}
	if s.cfg.Authenticator == nil || s.cfg.Credentials.Empty() {
		s.mu.Unlock()
		return record.ErrNoCredentials
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	err := s.cfg.Authenticator.Authenticate(ctx, s.cfg.Credentials)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateCreated
		return fmt.Errorf("authentication failed: %w", err)
	}
	s.authenticated = true
	s.state = StateReady
	s.logger.Debug("session authenticated")
	return nil
}

// Navigate fetches one location and then pauses for the jittered pacing
// delay. Rate-limit and challenge signals move the session into the matching
// state and are returned for the caller to recover from; both abort only the
// current target, never the session.
func (s *Session) Navigate(ctx context.Context, url string) (*record.Page, error) {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil, ErrClosed
	case StateRateLimited:
		s.mu.Unlock()
		return nil, record.ErrRateLimited
	case StateChallengeRequired:
		s.mu.Unlock()
		return nil, record.ErrChallengeRequired
	default:
	}
	s.mu.Unlock()

	page, err := s.cfg.Navigator.Navigate(ctx, url)

	switch {
	case errors.Is(err, record.ErrRateLimited):
		s.setState(StateRateLimited)
	case errors.Is(err, record.ErrChallengeRequired):
		s.setState(StateChallengeRequired)
	}

	s.pace()
	return page, err
}

// Resume clears a rate-limit or challenge state after external recovery.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRateLimited || s.state == StateChallengeRequired {
		if s.authenticated {
			s.state = StateReady
		} else {
			s.state = StateCreated
		}
	}
}

// Release closes the session. Further navigations fail with ErrClosed.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.logger.Debug("session released", "targets_served", s.targetsServed)
		s.state = StateClosed
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// pace sleeps for a random duration between PacingMin and PacingMax.
func (s *Session) pace() {
	if s.cfg.PacingMax == 0 {
		return
	}
	d := s.cfg.PacingMin
	if spread := s.cfg.PacingMax - s.cfg.PacingMin; spread > 0 {
		d += time.Duration(rand.Int64N(int64(spread)))
	}
	s.cfg.Sleep(d)
}
