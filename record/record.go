// Package record defines the common types for business-record enrichment.
package record

import (
	"errors"
	"strings"
)

// Common errors surfaced by navigation and authentication primitives.
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrNoCredentials     = errors.New("no credentials available")
	ErrUnavailable       = errors.New("entity not available")
	ErrRateLimited       = errors.New("rate limited")
	ErrChallengeRequired = errors.New("verification challenge required")
)

// Target is one business record to resolve and enrich. It is immutable input:
// hints narrow or qualify a match but never change the name being resolved.
type Target struct {
	RawName    string `json:"raw_name"`
	HintCity   string `json:"hint_city,omitempty"`
	HintState  string `json:"hint_state,omitempty"`
	HintDomain string `json:"hint_domain,omitempty"`
}

// Key returns a stable identity string for the target, used to map results
// back to their originating input and to skip checkpointed targets on resume.
func (t Target) Key() string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(t.RawName)),
		strings.ToLower(strings.TrimSpace(t.HintCity)),
		strings.ToLower(strings.TrimSpace(t.HintState)),
		strings.ToLower(strings.TrimSpace(t.HintDomain)),
	}
	return strings.Join(parts, "|")
}

// Candidate is one entity surfaced by a search query. Candidates are
// transient: they live only long enough to pick the best match.
type Candidate struct {
	SourceKey  string  // slug or id on the remote source
	Label      string  // display text of the search hit
	Similarity float64 // filled in by the resolution engine
}

// Tier records which strategy produced a result.
type Tier string

const (
	TierDirect     Tier = "direct"
	TierFallback   Tier = "fallback"
	TierUnresolved Tier = "unresolved"
)

// DomainMatch qualifies an extracted website against the target's domain
// hint. Advisory metadata only; never a gate on success.
type DomainMatch string

const (
	DomainMatched       DomainMatch = "matched"
	DomainMismatch      DomainMatch = "mismatch"
	DomainNotApplicable DomainMatch = "n/a"
)

// Attribute keys produced by extraction adapters. Adapters must return the
// full key set with empty strings for anything they cannot find.
const (
	AttrWebsite      = "website"
	AttrSize         = "size"
	AttrHeadquarters = "headquarters"
	AttrCity         = "city"
	AttrState        = "state"
	AttrIndustry     = "industry"
	AttrFounded      = "founded"
	AttrSpecialties  = "specialties"
	AttrRevenue      = "revenue"

	AttrDeciderName     = "decider_name"
	AttrDeciderTitle    = "decider_title"
	AttrDeciderEmail    = "decider_email"
	AttrDeciderPhone    = "decider_phone"
	AttrDeciderLinkedIn = "decider_linkedin"
)

// CoreAttrs are the attributes that distinguish a real entity page from a
// stub or placeholder. A direct hit with all of these empty falls back to
// search.
func CoreAttrs() []string {
	return []string{AttrWebsite, AttrSize, AttrHeadquarters, AttrIndustry, AttrFounded}
}

// EmptyAttrs returns an attribute map with the full key set and empty values.
func EmptyAttrs() map[string]string {
	attrs := make(map[string]string, 14)
	for _, k := range []string{
		AttrWebsite, AttrSize, AttrHeadquarters, AttrCity, AttrState,
		AttrIndustry, AttrFounded, AttrSpecialties, AttrRevenue,
		AttrDeciderName, AttrDeciderTitle, AttrDeciderEmail, AttrDeciderPhone, AttrDeciderLinkedIn,
	} {
		attrs[k] = ""
	}
	return attrs
}

// Result is the single output record for one target. It is immutable once
// produced; a retry replaces it wholesale rather than patching fields.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Result struct {
	Target        Target            `json:"target"`
	Tier          Tier              `json:"tier"`
	FallbackQuery string            `json:"fallback_query,omitempty"` // the narrowed query that matched, when Tier == TierFallback
	SourceURL     string            `json:"source_url,omitempty"`
	Attrs         map[string]string `json:"attrs"`
	DomainMatch   DomainMatch       `json:"domain_match"`
	Reason        string            `json:"reason,omitempty"` // why a target ended Unresolved
	Error         string            `json:"error,omitempty"`  // session/auth/adapter fault, if any
}

// Page is an opaque handle to a navigated document: the final location after
// redirects plus the raw content handed to extraction adapters.
type Page struct {
	URL  string
	Body string
}
