package session

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
)

// Credentials hold everything a session can present to the upstream service.
// Cookies, when present, let a session skip the interactive login flow.
type Credentials struct {
	Email    string
	Password string
	Cookies  map[string]string
}

// Empty reports whether the credentials carry neither a login pair nor cookies.
func (c Credentials) Empty() bool {
	return c.Email == "" && c.Password == "" && len(c.Cookies) == 0
}

// Source represents a source of session credentials.
type Source interface {
	// Credentials returns credentials, or zero credentials if unavailable.
	Credentials(ctx context.Context) (Credentials, error)
}

// ChainSources returns credentials from the first source that provides them.
func ChainSources(ctx context.Context, sources ...Source) (Credentials, error) {
	for _, src := range sources {
		creds, err := src.Credentials(ctx)
		if err != nil {
			return Credentials{}, err
		}
		if !creds.Empty() {
			return creds, nil
		}
	}
	return Credentials{}, nil
}

// StaticSource provides credentials from a fixed value.
// This is useful for testing or when credentials are provided via options.
type StaticSource struct {
	creds Credentials
}

// NewStaticSource creates a credential source from a fixed value.
func NewStaticSource(creds Credentials) *StaticSource {
	return &StaticSource{creds: creds}
}

// Credentials returns the static credentials.
func (s *StaticSource) Credentials(context.Context) (Credentials, error) {
	return s.creds, nil
}

// envVars maps environment variable names to cookie names for cookie-based
// resumption. The login pair comes from FIRMFINDER_EMAIL / FIRMFINDER_PASSWORD.
var envVars = map[string]string{
	"FIRMFINDER_SESSION_COOKIE": "li_at",
	"FIRMFINDER_JSESSIONID":     "JSESSIONID",
	"FIRMFINDER_LIDC":           "lidc",
	"FIRMFINDER_BCOOKIE":        "bcookie",
}

// EnvSource reads credentials from environment variables.
type EnvSource struct{}

// Credentials returns credentials assembled from environment variables.
func (EnvSource) Credentials(context.Context) (Credentials, error) {
	creds := Credentials{
		Email:    os.Getenv("FIRMFINDER_EMAIL"),
		Password: os.Getenv("FIRMFINDER_PASSWORD"),
	}

	cookies := make(map[string]string)
	for envVar, cookieName := range envVars {
		if value := os.Getenv(envVar); value != "" {
			cookies[cookieName] = value
		}
	}
	if len(cookies) > 0 {
		creds.Cookies = cookies
	}
	return creds, nil
}

// EnvVarNames returns the environment variable names EnvSource reads.
// This is useful for generating help messages.
func EnvVarNames() []string {
	vars := []string{"FIRMFINDER_EMAIL", "FIRMFINDER_PASSWORD"}
	for envVar := range envVars {
		vars = append(vars, envVar)
	}
	return vars
}

// NewCookieJar creates an http.CookieJar populated with the given cookies for a domain.
func NewCookieJar(domain string, cookies map[string]string) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse("https://" + domain)
	if err != nil {
		return nil, err
	}

	var httpCookies []*http.Cookie
	for name, value := range cookies {
		if value != "" {
			httpCookies = append(httpCookies, &http.Cookie{
				Name:   name,
				Value:  value,
				Domain: "." + domain,
				Path:   "/",
			})
		}
	}

	jar.SetCookies(u, httpCookies)
	return jar, nil
}
