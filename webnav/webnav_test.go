package webnav

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leadgroove/firmfinder/record"
	"github.com/leadgroove/firmfinder/session"
)

func TestEndpointURLs(t *testing.T) {
	e := DefaultEndpoints("https://www.example.com/")

	if got := e.EntityURL("Stone & Oak, LLC"); got != "https://www.example.com/company/stone--oak-llc/about/" {
		t.Errorf("EntityURL = %q", got)
	}
	if got := e.SearchURL("acme global"); got != "https://www.example.com/search/results/companies/?keywords=acme+global" {
		t.Errorf("SearchURL = %q", got)
	}
	if got := e.LoginURL(); got != "https://www.example.com/login" {
		t.Errorf("LoginURL = %q", got)
	}
}

func TestCandidateURL(t *testing.T) {
	e := DefaultEndpoints("https://www.example.com")
	tests := []struct {
		key  string
		want string
	}{
		{"https://other.example.net/company/x/", "https://other.example.net/company/x/"},
		{"/company/acme/about/", "https://www.example.com/company/acme/about/"},
		{"acme", "https://www.example.com/company/acme/about/"},
	}
	for _, tt := range tests {
		if got := e.CandidateURL(tt.key); got != tt.want {
			t.Errorf("CandidateURL(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestUnavailableAndLoginWalled(t *testing.T) {
	e := DefaultEndpoints("https://www.example.com")

	if !e.Unavailable("https://www.example.com/company/unavailable") {
		t.Error("Unavailable should match the dead-entity path")
	}
	if e.Unavailable("https://www.example.com/company/acme/about/") {
		t.Error("Unavailable should not match a live entity path")
	}
	if !e.LoginWalled("https://www.example.com/login?redirect=x") {
		t.Error("LoginWalled should match the login path")
	}
	if !e.LoginWalled("https://www.example.com/authwall?target=y") {
		t.Error("LoginWalled should match the authwall path")
	}
	if e.LoginWalled("https://www.example.com/company/acme/about/") {
		t.Error("LoginWalled should not match a normal page")
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(DefaultEndpoints(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNavigateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body>Acme Global</body></html>")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	page, err := c.Navigate(context.Background(), srv.URL+"/company/acme/about/")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if page.Body == "" {
		t.Error("Navigate returned empty body")
	}
	if page.URL != srv.URL+"/company/acme/about/" {
		t.Errorf("page URL = %q", page.URL)
	}
}

func TestNavigateNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(t, srv)
	if _, err := c.Navigate(context.Background(), srv.URL+"/company/ghost/about/"); !errors.Is(err, record.ErrUnavailable) {
		t.Errorf("Navigate 404 = %v, want ErrUnavailable", err)
	}
}

func TestNavigateRateLimited(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, 999} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		c := newTestClient(t, srv)
		if _, err := c.Navigate(context.Background(), srv.URL+"/company/acme/about/"); !errors.Is(err, record.ErrRateLimited) {
			t.Errorf("Navigate status %d = %v, want ErrRateLimited", status, err)
		}
		srv.Close()
	}
}

func TestNavigateUnavailableRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/company/ghost/about/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/company/unavailable", http.StatusFound)
	})
	mux.HandleFunc("/company/unavailable", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("this page is not available")) //nolint:errcheck // test handler
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	if _, err := c.Navigate(context.Background(), srv.URL+"/company/ghost/about/"); !errors.Is(err, record.ErrUnavailable) {
		t.Errorf("Navigate = %v, want ErrUnavailable", err)
	}
}

func TestNavigateLoginWall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/company/acme/about/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login?redirect=back", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>sign in</html>")) //nolint:errcheck // test handler
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	if _, err := c.Navigate(context.Background(), srv.URL+"/company/acme/about/"); !errors.Is(err, record.ErrAuthRequired) {
		t.Errorf("Navigate = %v, want ErrAuthRequired", err)
	}
}

func TestNavigateChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>Please complete this CAPTCHA to continue</html>")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if _, err := c.Navigate(context.Background(), srv.URL+"/company/acme/about/"); !errors.Is(err, record.ErrChallengeRequired) {
		t.Errorf("Navigate = %v, want ErrChallengeRequired", err)
	}
}

func TestAuthenticateWithCookies(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("li_at"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte("ok")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	creds := session.Credentials{Cookies: map[string]string{"li_at": "tok123"}}
	if err := c.Authenticate(context.Background(), creds); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := c.Navigate(context.Background(), srv.URL+"/feed"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if gotCookie != "tok123" {
		t.Errorf("server saw cookie %q, want tok123", gotCookie)
	}
}

func TestAuthenticateFormLogin(t *testing.T) {
	var gotKey, gotPassword string
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			r.ParseForm() //nolint:errcheck // test handler
			gotKey = r.PostFormValue("session_key")
			gotPassword = r.PostFormValue("session_password")
			http.Redirect(w, r, "/feed", http.StatusFound)
			return
		}
		w.Write([]byte("login form")) //nolint:errcheck // test handler
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("welcome back")) //nolint:errcheck // test handler
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := c.Authenticate(context.Background(), creds); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if gotKey != "a@b.c" || gotPassword != "pw" {
		t.Errorf("server saw %q/%q", gotKey, gotPassword)
	}
}

func TestAuthenticateRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		// Failed login lands back on the login form.
		if r.Method == http.MethodPost {
			w.Write([]byte("wrong password")) //nolint:errcheck // test handler
			return
		}
		w.Write([]byte("login form")) //nolint:errcheck // test handler
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	creds := session.Credentials{Email: "a@b.c", Password: "bad"}
	if err := c.Authenticate(context.Background(), creds); err == nil {
		t.Fatal("Authenticate should fail when landing back on the login page")
	}
}

func TestAuthenticateNoCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck // test handler
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.Authenticate(context.Background(), session.Credentials{}); !errors.Is(err, record.ErrNoCredentials) {
		t.Errorf("Authenticate = %v, want ErrNoCredentials", err)
	}
}
