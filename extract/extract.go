// Package extract parses entity, search, and person pages into structured
// records. Parsing is pattern based rather than DOM based: the upstream
// markup is obfuscated and shifts often, so anchoring on stable fragments
// (labels, href shapes, link schemes) survives longer than CSS paths.
package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/leadgroove/firmfinder/people"
	"github.com/leadgroove/firmfinder/record"
)

// Adapter turns fetched pages into structured data. Implementations must not
// perform network access; they see only the page they are given.
type Adapter interface {
	// Attributes parses an entity page into attribute key/value pairs.
	Attributes(page *record.Page) map[string]string
	// Candidates parses a search results page into entity candidates.
	// Similarity is left zero; ranking belongs to the caller.
	Candidates(page *record.Page) []record.Candidate
	// People parses an entity page's personnel section in display order.
	People(page *record.Page) []people.Candidate
	// Contact parses a person page for revealed contact details.
	Contact(page *record.Page) map[string]string
}

// labelAttrs maps definition-list labels on an entity page to attribute keys.
var labelAttrs = map[string]string{
	"website":      record.AttrWebsite,
	"company size": record.AttrSize,
	"size":         record.AttrSize,
	"headquarters": record.AttrHeadquarters,
	"industry":     record.AttrIndustry,
	"founded":      record.AttrFounded,
	"specialties":  record.AttrSpecialties,
	"revenue":      record.AttrRevenue,
}

var (
	// dt/dd pairs on the entity about page.
	definitionPattern = regexp.MustCompile(`(?si)<dt[^>]*>\s*(?:<[^>]+>\s*)*([^<]+?)\s*(?:</[^>]+>\s*)*</dt>\s*<dd[^>]*>(.*?)</dd>`)
	// Entity links on a search results page.
	candidatePattern = regexp.MustCompile(`(?si)<a[^>]+href="([^"]*/company/[^"?#]+)[^"]*"[^>]*>\s*(?:<[^>]+>\s*)*([^<]+?)\s*(?:</[^>]+>\s*)*</a>`)
	// Personnel cards on the entity page.
	personCardPattern = regexp.MustCompile(`(?si)<li[^>]*data-person[^>]*>(.*?)</li>`)
	personLinkPattern = regexp.MustCompile(`(?si)<a[^>]+href="([^"]*/in/[^"?#]+)[^"]*"`)
	personNamePattern = regexp.MustCompile(`(?si)<span[^>]*class="[^"]*name[^"]*"[^>]*>([^<]+)</span>`)
	personRolePattern = regexp.MustCompile(`(?si)<(?:span|div)[^>]*class="[^"]*(?:title|headline)[^"]*"[^>]*>([^<]+)</(?:span|div)>`)
	// Revealed contact details on a person page.
	emailPattern   = regexp.MustCompile(`(?i)href="mailto:([^"?]+)`)
	phonePattern   = regexp.MustCompile(`(?i)href="tel:([^"]+)"`)
	profilePattern = regexp.MustCompile(`(?i)href="(https?://[^"]*linkedin\.com/in/[^"?#]+)`)
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
)

// HTMLAdapter parses server-rendered HTML pages.
type HTMLAdapter struct{}

// Attributes parses the entity about page's definition list. Headquarters
// values of the form "City, State" additionally populate the city and state
// attributes.
func (HTMLAdapter) Attributes(page *record.Page) map[string]string {
	attrs := record.EmptyAttrs()
	for _, m := range definitionPattern.FindAllStringSubmatch(page.Body, -1) {
		label := strings.ToLower(strings.TrimSpace(html.UnescapeString(m[1])))
		key, ok := labelAttrs[label]
		if !ok {
			continue
		}
		attrs[key] = cleanText(m[2])
	}

	if hq := attrs[record.AttrHeadquarters]; hq != "" {
		if city, state, found := strings.Cut(hq, ","); found {
			attrs[record.AttrCity] = strings.TrimSpace(city)
			attrs[record.AttrState] = strings.TrimSpace(state)
		} else {
			attrs[record.AttrCity] = strings.TrimSpace(hq)
		}
	}
	return attrs
}

// Candidates parses entity links out of a search results page, preserving
// result order and dropping duplicates and unlabeled links.
func (HTMLAdapter) Candidates(page *record.Page) []record.Candidate {
	var out []record.Candidate
	seen := make(map[string]bool)
	for _, m := range candidatePattern.FindAllStringSubmatch(page.Body, -1) {
		key := strings.TrimSpace(m[1])
		label := cleanText(m[2])
		if key == "" || label == "" || seen[key] {
			continue
		}
		if strings.Contains(key, "/company/unavailable") {
			continue
		}
		seen[key] = true
		out = append(out, record.Candidate{SourceKey: key, Label: label})
	}
	return out
}

// People parses personnel cards in display order. Rank is computed from the
// title; cards without a name are dropped.
func (HTMLAdapter) People(page *record.Page) []people.Candidate {
	var out []people.Candidate
	for _, card := range personCardPattern.FindAllStringSubmatch(page.Body, -1) {
		block := card[1]

		var c people.Candidate
		if m := personNamePattern.FindStringSubmatch(block); len(m) > 1 {
			c.Name = cleanText(m[1])
		}
		if c.Name == "" {
			continue
		}
		if m := personRolePattern.FindStringSubmatch(block); len(m) > 1 {
			c.Title = cleanText(m[1])
		}
		if m := personLinkPattern.FindStringSubmatch(block); len(m) > 1 {
			c.ProfileRef = strings.TrimSpace(m[1])
		}
		c.Rank = people.Rank(c.Title)
		out = append(out, c)
	}
	return out
}

// Contact parses revealed contact details from a person page.
func (HTMLAdapter) Contact(page *record.Page) map[string]string {
	out := make(map[string]string)
	if m := emailPattern.FindStringSubmatch(page.Body); len(m) > 1 {
		out[record.AttrDeciderEmail] = strings.TrimSpace(html.UnescapeString(m[1]))
	}
	if m := phonePattern.FindStringSubmatch(page.Body); len(m) > 1 {
		out[record.AttrDeciderPhone] = strings.TrimSpace(html.UnescapeString(m[1]))
	}
	if m := profilePattern.FindStringSubmatch(page.Body); len(m) > 1 {
		out[record.AttrDeciderLinkedIn] = strings.TrimSpace(m[1])
	}
	return out
}

// cleanText strips tags, unescapes entities, and collapses whitespace.
func cleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
