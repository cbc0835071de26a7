// Package webnav drives HTTP navigation against the upstream directory
// service: URL construction, browser-shaped requests, proxy transport, and
// classification of the service's hostility signals into typed errors.
package webnav

import (
	"net/url"
	"strings"

	"github.com/leadgroove/firmfinder/match"
)

// Endpoints describes the URL layout of the upstream directory service.
type Endpoints struct {
	// BaseURL is the service origin, e.g. "https://www.example.com".
	BaseURL string
	// EntityPath is the path template for a direct entity page; the slug
	// replaces the {slug} placeholder.
	EntityPath string
	// SearchPath is the path template for an entity search; the query
	// replaces the {query} placeholder.
	SearchPath string
	// LoginPath is the path of the interactive login form.
	LoginPath string
	// UnavailablePath is the path the service redirects to for entities
	// that do not exist.
	UnavailablePath string
}

// DefaultEndpoints returns the layout of the primary upstream service.
func DefaultEndpoints(baseURL string) Endpoints {
	return Endpoints{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		EntityPath:      "/company/{slug}/about/",
		SearchPath:      "/search/results/companies/?keywords={query}",
		LoginPath:       "/login",
		UnavailablePath: "/company/unavailable",
	}
}

// EntityURL returns the direct page URL for a raw business name.
func (e Endpoints) EntityURL(rawName string) string {
	return e.BaseURL + strings.Replace(e.EntityPath, "{slug}", match.Slugify(rawName), 1)
}

// SearchURL returns the search results URL for a query.
func (e Endpoints) SearchURL(query string) string {
	return e.BaseURL + strings.Replace(e.SearchPath, "{query}", url.QueryEscape(query), 1)
}

// LoginURL returns the login form URL.
func (e Endpoints) LoginURL() string {
	return e.BaseURL + e.LoginPath
}

// CandidateURL resolves a candidate's source key to an absolute page URL.
// Keys that are already absolute pass through unchanged.
func (e Endpoints) CandidateURL(sourceKey string) string {
	if strings.HasPrefix(sourceKey, "http://") || strings.HasPrefix(sourceKey, "https://") {
		return sourceKey
	}
	if strings.HasPrefix(sourceKey, "/") {
		return e.BaseURL + sourceKey
	}
	return e.BaseURL + strings.Replace(e.EntityPath, "{slug}", sourceKey, 1)
}

// Unavailable reports whether a final URL landed on the dead-entity page.
func (e Endpoints) Unavailable(finalURL string) bool {
	if e.UnavailablePath == "" {
		return false
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, e.UnavailablePath)
}

// LoginWalled reports whether a final URL was redirected to the login flow.
func (e Endpoints) LoginWalled(finalURL string) bool {
	u, err := url.Parse(finalURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, e.LoginPath) || strings.Contains(u.Path, "/authwall")
}
