package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leadgroove/firmfinder/record"
)

type stubNavigator struct {
	pages map[string]*record.Page
	errs  map[string]error
	calls []string
}

func (n *stubNavigator) Navigate(_ context.Context, url string) (*record.Page, error) {
	n.calls = append(n.calls, url)
	if err, ok := n.errs[url]; ok {
		return nil, err
	}
	if p, ok := n.pages[url]; ok {
		return p, nil
	}
	return &record.Page{URL: url, Body: "ok"}, nil
}

type stubAuthenticator struct {
	err   error
	calls int
}

func (a *stubAuthenticator) Authenticate(context.Context, Credentials) error {
	a.calls++
	return a.err
}

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	if cfg.Navigator == nil {
		cfg.Navigator = &stubNavigator{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = func(time.Duration) {}
	}
	s, err := Acquire(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	return s
}

func TestAcquireValidation(t *testing.T) {
	if _, err := Acquire(context.Background(), Config{}); err == nil {
		t.Fatal("Acquire without navigator should fail")
	}
	_, err := Acquire(context.Background(), Config{
		Navigator: &stubNavigator{},
		PacingMin: 2 * time.Second,
		PacingMax: time.Second,
	})
	if err == nil {
		t.Fatal("Acquire with inverted pacing bounds should fail")
	}
}

func TestSessionIDsUnique(t *testing.T) {
	a := newTestSession(t, Config{})
	b := newTestSession(t, Config{})
	if a.ID() == b.ID() {
		t.Fatalf("two sessions share ID %s", a.ID())
	}
}

func TestAuthenticateOnce(t *testing.T) {
	auth := &stubAuthenticator{}
	s := newTestSession(t, Config{
		Authenticator: auth,
		Credentials:   Credentials{Email: "a@b.c", Password: "pw"},
	})

	for range 3 {
		if err := s.Authenticate(context.Background()); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
	}
	if auth.calls != 1 {
		t.Errorf("authenticator called %d times, want 1", auth.calls)
	}
	if got := s.State(); got != StateReady {
		t.Errorf("state = %v, want ready", got)
	}
}

func TestAuthenticateWithoutCredentials(t *testing.T) {
	s := newTestSession(t, Config{Authenticator: &stubAuthenticator{}})
	if err := s.Authenticate(context.Background()); !errors.Is(err, record.ErrNoCredentials) {
		t.Errorf("Authenticate = %v, want ErrNoCredentials", err)
	}
}

func TestAuthenticateFailureKeepsSessionUsable(t *testing.T) {
	auth := &stubAuthenticator{err: errors.New("bad password")}
	s := newTestSession(t, Config{
		Authenticator: auth,
		Credentials:   Credentials{Email: "a@b.c", Password: "pw"},
	})
	if err := s.Authenticate(context.Background()); err == nil {
		t.Fatal("Authenticate should propagate failure")
	}
	if got := s.State(); got != StateCreated {
		t.Errorf("state after failed auth = %v, want created", got)
	}
	// Unauthenticated navigation still works.
	if _, err := s.Navigate(context.Background(), "https://example.com/"); err != nil {
		t.Errorf("Navigate after failed auth: %v", err)
	}
}

func TestNavigatePacesEveryCall(t *testing.T) {
	var slept []time.Duration
	s := newTestSession(t, Config{
		PacingMin: 1500 * time.Millisecond,
		PacingMax: 2500 * time.Millisecond,
		Sleep:     func(d time.Duration) { slept = append(slept, d) },
	})

	for range 5 {
		if _, err := s.Navigate(context.Background(), "https://example.com/"); err != nil {
			t.Fatalf("Navigate: %v", err)
		}
	}
	if len(slept) != 5 {
		t.Fatalf("slept %d times, want 5", len(slept))
	}
	for _, d := range slept {
		if d < 1500*time.Millisecond || d > 2500*time.Millisecond {
			t.Errorf("pacing delay %v outside [1.5s, 2.5s]", d)
		}
	}
}

func TestNavigateRateLimitTransition(t *testing.T) {
	nav := &stubNavigator{errs: map[string]error{
		"https://example.com/hot": record.ErrRateLimited,
	}}
	s := newTestSession(t, Config{Navigator: nav})

	if _, err := s.Navigate(context.Background(), "https://example.com/hot"); !errors.Is(err, record.ErrRateLimited) {
		t.Fatalf("Navigate = %v, want ErrRateLimited", err)
	}
	if got := s.State(); got != StateRateLimited {
		t.Fatalf("state = %v, want rate_limited", got)
	}

	// Further navigation is refused without touching the network.
	before := len(nav.calls)
	if _, err := s.Navigate(context.Background(), "https://example.com/"); !errors.Is(err, record.ErrRateLimited) {
		t.Fatalf("Navigate while limited = %v, want ErrRateLimited", err)
	}
	if len(nav.calls) != before {
		t.Error("rate-limited session still issued a request")
	}

	s.Resume()
	if _, err := s.Navigate(context.Background(), "https://example.com/"); err != nil {
		t.Errorf("Navigate after Resume: %v", err)
	}
}

func TestNavigateChallengeTransition(t *testing.T) {
	nav := &stubNavigator{errs: map[string]error{
		"https://example.com/x": record.ErrChallengeRequired,
	}}
	s := newTestSession(t, Config{Navigator: nav})

	if _, err := s.Navigate(context.Background(), "https://example.com/x"); !errors.Is(err, record.ErrChallengeRequired) {
		t.Fatalf("Navigate = %v, want ErrChallengeRequired", err)
	}
	if got := s.State(); got != StateChallengeRequired {
		t.Errorf("state = %v, want challenge_required", got)
	}
}

func TestReleasedSessionRefusesNavigation(t *testing.T) {
	s := newTestSession(t, Config{})
	s.Release()
	if _, err := s.Navigate(context.Background(), "https://example.com/"); !errors.Is(err, ErrClosed) {
		t.Errorf("Navigate after Release = %v, want ErrClosed", err)
	}
	if got := s.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestTargetsServed(t *testing.T) {
	s := newTestSession(t, Config{})
	for range 4 {
		s.MarkServed()
	}
	if got := s.TargetsServed(); got != 4 {
		t.Errorf("TargetsServed = %d, want 4", got)
	}
}

func TestChainSources(t *testing.T) {
	ctx := context.Background()
	empty := NewStaticSource(Credentials{})
	full := NewStaticSource(Credentials{Email: "a@b.c", Password: "pw"})

	creds, err := ChainSources(ctx, empty, full)
	if err != nil {
		t.Fatalf("ChainSources: %v", err)
	}
	if creds.Email != "a@b.c" {
		t.Errorf("ChainSources email = %q, want a@b.c", creds.Email)
	}

	creds, err = ChainSources(ctx, empty, empty)
	if err != nil {
		t.Fatalf("ChainSources: %v", err)
	}
	if !creds.Empty() {
		t.Errorf("ChainSources over empty sources = %+v, want empty", creds)
	}
}

func TestProxyIdentityURL(t *testing.T) {
	p := NewProxyIdentity("gate.example.net:7000", "user1", "secret", "abc123")
	u := p.URL()
	if u == nil {
		t.Fatal("URL = nil for non-direct identity")
	}
	if got := u.User.Username(); got != "user1-session-abc123" {
		t.Errorf("proxy username = %q, want sticky token embedded", got)
	}
	if pw, _ := u.User.Password(); pw != "secret" {
		t.Errorf("proxy password = %q", pw)
	}

	direct := NewProxyIdentity("", "", "", "")
	if !direct.Direct() || direct.URL() != nil {
		t.Error("empty host should be a direct identity")
	}
}

func TestProxyIdentityRedacted(t *testing.T) {
	p := NewProxyIdentity("gate.example.net:7000", "user1", "secret", "abc123")
	got := p.Redacted()
	if got != "gate.example.net:7000 (session abc123)" {
		t.Errorf("Redacted = %q", got)
	}
}

// poolFactory hands out the given sessions in order, then fails.
func poolFactory(sessions ...*Session) Factory {
	i := 0
	return func(context.Context) (*Session, error) {
		if i >= len(sessions) {
			return nil, errors.New("factory exhausted")
		}
		s := sessions[i]
		i++
		return s, nil
	}
}

func TestPoolSingleOwnership(t *testing.T) {
	ctx := context.Background()
	a := newTestSession(t, Config{})
	b := newTestSession(t, Config{})
	pool := NewPool(poolFactory(a, b), 2)
	defer pool.Close()

	s1, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	s2, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if s1.ID() == s2.ID() {
		t.Fatal("pool handed the same session to two workers")
	}

	// Both capacity slots are in use; a third checkout must block until
	// a checkin.
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Checkout(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Checkout on empty pool = %v, want deadline exceeded", err)
	}

	pool.Checkin(s1)
	s3, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout after Checkin: %v", err)
	}
	if s3.ID() != s1.ID() {
		t.Errorf("expected the checked-in session back, got %s", s3.ID())
	}
}

func TestPoolReplacesClosedSessions(t *testing.T) {
	ctx := context.Background()
	a := newTestSession(t, Config{})
	b := newTestSession(t, Config{})
	pool := NewPool(poolFactory(a, b), 1)
	defer pool.Close()

	s1, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	s1.Release()
	pool.Checkin(s1)

	s2, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout after dropping closed session: %v", err)
	}
	if s2.ID() != b.ID() {
		t.Errorf("got session %s back, want a fresh one replacing the closed session", s2.ID())
	}
}

func TestPoolCloseReleasesAll(t *testing.T) {
	ctx := context.Background()
	a := newTestSession(t, Config{})
	b := newTestSession(t, Config{})
	pool := NewPool(poolFactory(a, b), 2)

	s1, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	s2, err := pool.Checkout(ctx)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	pool.Checkin(s1)
	pool.Checkin(s2)
	pool.Close()

	if a.State() != StateClosed || b.State() != StateClosed {
		t.Errorf("Close left sessions open: %v %v", a.State(), b.State())
	}
}
