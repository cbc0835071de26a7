package session

import (
	"fmt"
	"net/url"
)

// ProxyIdentity is a sticky upstream proxy assignment. The session token is
// embedded in the proxy username so every request through this identity exits
// from the same address for the provider's sticky window.
type ProxyIdentity struct {
	Host     string // host:port of the proxy gateway, empty means direct
	Username string
	Password string
	Token    string // sticky session token appended to the username
}

// NewProxyIdentity derives a sticky identity from gateway credentials and a
// session token. An empty host yields a direct (proxyless) identity.
func NewProxyIdentity(host, username, password, token string) ProxyIdentity {
	return ProxyIdentity{Host: host, Username: username, Password: password, Token: token}
}

// Direct reports whether this identity bypasses any proxy.
func (p ProxyIdentity) Direct() bool { return p.Host == "" }

// URL returns the proxy URL with sticky-session credentials, or nil for a
// direct identity.
func (p ProxyIdentity) URL() *url.URL {
	if p.Direct() {
		return nil
	}
	u := &url.URL{Scheme: "http", Host: p.Host}
	if p.Username != "" {
		user := p.Username
		if p.Token != "" {
			user = fmt.Sprintf("%s-session-%s", p.Username, p.Token)
		}
		u.User = url.UserPassword(user, p.Password)
	}
	return u
}

// Redacted returns a loggable form of the identity without the password.
func (p ProxyIdentity) Redacted() string {
	if p.Direct() {
		return "direct"
	}
	if p.Token != "" {
		return fmt.Sprintf("%s (session %s)", p.Host, p.Token)
	}
	return p.Host
}
