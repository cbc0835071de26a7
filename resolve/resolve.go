// Package resolve implements the per-target resolution state machine: a
// direct page lookup first, then a search fallback over progressively
// narrowed queries, with a similarity gate on candidate acceptance.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leadgroove/firmfinder/extract"
	"github.com/leadgroove/firmfinder/match"
	"github.com/leadgroove/firmfinder/narrow"
	"github.com/leadgroove/firmfinder/people"
	"github.com/leadgroove/firmfinder/record"
	"github.com/leadgroove/firmfinder/session"
)

// DefaultThreshold is the minimum similarity a search candidate must score
// against the target name to be accepted.
const DefaultThreshold = 0.65

// Locator builds source URLs for targets, queries, and candidates.
type Locator interface {
	EntityURL(rawName string) string
	SearchURL(query string) string
	CandidateURL(sourceKey string) string
}

// Engine resolves one target at a time over a caller-supplied session.
type Engine struct {
	locator   Locator
	adapter   extract.Adapter
	threshold float64
	contacts  bool
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold overrides the candidate acceptance threshold.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) { e.threshold = threshold }
}

// WithContactReveal enables following a decision maker's profile page to
// collect revealed contact details.
func WithContactReveal() Option {
	return func(e *Engine) { e.contacts = true }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates a resolution engine.
func New(locator Locator, adapter extract.Adapter, opts ...Option) *Engine {
	e := &Engine{
		locator:   locator,
		adapter:   adapter,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve runs the state machine for one target. A Result is always returned.
// The error is non-nil only for session-level faults (rate limit, challenge,
// failed authentication, canceled context) that the caller must recover from
// before the session can serve another target.
func (e *Engine) Resolve(ctx context.Context, sess *session.Session, target record.Target) (record.Result, error) {
	res := record.Result{
		Target:      target,
		Tier:        record.TierUnresolved,
		Attrs:       record.EmptyAttrs(),
		DomainMatch: record.DomainNotApplicable,
	}
	if target.RawName == "" {
		res.Reason = "empty name"
		return res, nil
	}

	log := e.logger.With("target", target.RawName)

	page, err := e.direct(ctx, sess, target, log)
	switch {
	case err == nil:
		attrs, perr := e.attributes(page)
		if perr != nil {
			res.Reason = "entity page parse failed"
			res.Error = perr.Error()
			return res, nil
		}
		if !coreEmpty(attrs) {
			log.Info("resolved directly", "url", page.URL)
			return e.finish(ctx, sess, res, record.TierDirect, "", page, attrs, log)
		}
		log.Debug("direct page incomplete, falling back to search")
	case errors.Is(err, record.ErrUnavailable):
		log.Debug("direct page unavailable, falling back to search")
	case sessionFault(err):
		res.Reason = "session fault during direct lookup"
		res.Error = err.Error()
		return res, err
	default:
		res.Reason = "direct lookup failed"
		res.Error = err.Error()
		return res, nil
	}

	return e.fallback(ctx, sess, target, res, log)
}

// direct fetches the target's direct entity page, authenticating once and
// retrying once if the page sits behind a login wall.
func (e *Engine) direct(ctx context.Context, sess *session.Session, target record.Target, log *slog.Logger) (*record.Page, error) {
	url := e.locator.EntityURL(target.RawName)
	page, err := sess.Navigate(ctx, url)
	if !errors.Is(err, record.ErrAuthRequired) {
		return page, err
	}

	log.Debug("login wall on direct lookup, authenticating")
	if aerr := sess.Authenticate(ctx); aerr != nil {
		return nil, fmt.Errorf("%w: %w", record.ErrAuthRequired, aerr)
	}
	return sess.Navigate(ctx, url)
}

// fallback walks the narrowed query sequence until a candidate clears the
// similarity threshold.
func (e *Engine) fallback(ctx context.Context, sess *session.Session, target record.Target, res record.Result, log *slog.Logger) (record.Result, error) {
	for query := range narrow.Queries(target.RawName) {
		if ctx.Err() != nil {
			res.Reason = "canceled"
			res.Error = ctx.Err().Error()
			return res, ctx.Err()
		}

		page, err := sess.Navigate(ctx, e.locator.SearchURL(query))
		switch {
		case err == nil:
		case sessionFault(err):
			res.Reason = "session fault during search"
			res.Error = err.Error()
			return res, err
		default:
			log.Debug("search query failed", "query", query, "error", err)
			continue
		}

		best, perr := e.bestCandidate(page, target)
		if perr != nil {
			log.Warn("search page parse failed", "query", query, "error", perr)
			continue
		}
		if best == nil {
			log.Debug("no candidates", "query", query)
			continue
		}
		if best.Similarity < e.threshold {
			log.Debug("best candidate below threshold",
				"query", query, "label", best.Label, "similarity", best.Similarity)
			continue
		}

		entity, err := sess.Navigate(ctx, e.locator.CandidateURL(best.SourceKey))
		switch {
		case err == nil:
		case sessionFault(err):
			res.Reason = "session fault during candidate fetch"
			res.Error = err.Error()
			return res, err
		default:
			log.Debug("candidate fetch failed", "key", best.SourceKey, "error", err)
			continue
		}

		attrs, perr := e.attributes(entity)
		if perr != nil {
			log.Warn("candidate page parse failed", "key", best.SourceKey, "error", perr)
			continue
		}

		log.Info("resolved via fallback", "query", query, "label", best.Label, "similarity", best.Similarity)
		return e.finish(ctx, sess, res, record.TierFallback, query, entity, attrs, log)
	}

	res.Reason = "search exhausted without an acceptable candidate"
	log.Info("unresolved", "reason", res.Reason)
	return res, nil
}

// bestCandidate scores a search page's candidates against the target name
// and returns the top scorer. Ties keep result-page order.
func (e *Engine) bestCandidate(page *record.Page, target record.Target) (*record.Candidate, error) {
	candidates, err := e.candidates(page)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil //nolint:nilnil // an empty result page is not an error
	}
	for i := range candidates {
		candidates[i].Similarity = match.Similarity(target.RawName, candidates[i].Label)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	return &candidates[0], nil
}

// finish fills a successful result: attributes, domain qualification, and
// decision-maker enrichment.
func (e *Engine) finish(ctx context.Context, sess *session.Session, res record.Result, tier record.Tier, query string, page *record.Page, attrs map[string]string, log *slog.Logger) (record.Result, error) {
	res.Tier = tier
	res.FallbackQuery = query
	res.SourceURL = page.URL
	for k, v := range attrs {
		if v != "" {
			res.Attrs[k] = v
		}
	}
	res.DomainMatch = qualifyDomain(res.Target.HintDomain, res.Attrs[record.AttrWebsite])

	err := e.enrichDecider(ctx, sess, &res, page, log)
	if err != nil && sessionFault(err) {
		res.Error = err.Error()
		return res, err
	}
	return res, nil
}

// enrichDecider picks the best-ranked person on the entity page and, when
// enabled, follows their profile for revealed contact details. Best effort:
// only session faults propagate.
func (e *Engine) enrichDecider(ctx context.Context, sess *session.Session, res *record.Result, page *record.Page, log *slog.Logger) error {
	persons, err := e.people(page)
	if err != nil {
		log.Debug("people parse failed", "error", err)
		return nil
	}
	best := people.SelectBest(persons)
	if best == nil {
		return nil
	}
	res.Attrs[record.AttrDeciderName] = best.Name
	res.Attrs[record.AttrDeciderTitle] = best.Title

	if !e.contacts || best.ProfileRef == "" {
		return nil
	}

	profile, err := sess.Navigate(ctx, e.locator.CandidateURL(best.ProfileRef))
	if err != nil {
		log.Debug("decider profile fetch failed", "ref", best.ProfileRef, "error", err)
		return err
	}
	contact, err := e.contact(profile)
	if err != nil {
		log.Debug("contact parse failed", "error", err)
		return nil
	}
	for k, v := range contact {
		if v != "" {
			res.Attrs[k] = v
		}
	}
	return nil
}

// qualifyDomain compares an extracted website to the domain hint. Advisory
// only; a mismatch never demotes the result.
func qualifyDomain(hint, website string) record.DomainMatch {
	if hint == "" || website == "" {
		return record.DomainNotApplicable
	}
	if match.NormalizeDomain(hint) == match.NormalizeDomain(website) {
		return record.DomainMatched
	}
	return record.DomainMismatch
}

// coreEmpty reports whether every core attribute is empty, the signature of
// a stub page that should not count as a direct hit.
func coreEmpty(attrs map[string]string) bool {
	for _, key := range record.CoreAttrs() {
		if attrs[key] != "" {
			return false
		}
	}
	return true
}

// sessionFault reports whether an error must pause or end the session before
// another target can be served.
func sessionFault(err error) bool {
	return errors.Is(err, record.ErrRateLimited) ||
		errors.Is(err, record.ErrChallengeRequired) ||
		errors.Is(err, record.ErrAuthRequired) ||
		errors.Is(err, session.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Adapter calls run behind a panic guard: a malformed page must fail one
// target, not the batch.

func (e *Engine) attributes(page *record.Page) (attrs map[string]string, err error) {
	defer recoverParse(&err)
	return e.adapter.Attributes(page), nil
}

func (e *Engine) candidates(page *record.Page) (candidates []record.Candidate, err error) {
	defer recoverParse(&err)
	return e.adapter.Candidates(page), nil
}

func (e *Engine) people(page *record.Page) (persons []people.Candidate, err error) {
	defer recoverParse(&err)
	return e.adapter.People(page), nil
}

func (e *Engine) contact(page *record.Page) (contact map[string]string, err error) {
	defer recoverParse(&err)
	return e.adapter.Contact(page), nil
}

func recoverParse(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("adapter panic: %v", r)
	}
}
