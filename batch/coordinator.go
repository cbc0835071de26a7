// Package batch coordinates resolution of many targets across sessions:
// sub-batch splitting, checkpointing for resume, rate-limit cooldowns, and
// challenge handoff.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/leadgroove/firmfinder/record"
	"github.com/leadgroove/firmfinder/session"
)

// Defaults for coordinator tuning knobs.
const (
	DefaultSubBatchSize     = 10
	DefaultCheckpointEvery  = 5
	DefaultCooldownMin      = 2 * time.Minute
	DefaultCooldownMax      = 5 * time.Minute
	DefaultChallengeTimeout = 5 * time.Minute
	DefaultMaxCooldowns     = 2
)

// Resolver resolves one target over a session. resolve.Engine satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, sess *session.Session, target record.Target) (record.Result, error)
}

// SessionFactory creates a fresh session. The coordinator's session pool
// calls it whenever a sub-batch needs a session and no healthy idle one is
// available.
type SessionFactory func(ctx context.Context) (*session.Session, error)

// ChallengeResolver resolves an interactive verification gate, typically by
// handing the session to a human. It returns nil once the gate is cleared.
type ChallengeResolver interface {
	Resolve(ctx context.Context, sess *session.Session) error
}

// ChallengeResolverFunc adapts a function to the ChallengeResolver interface.
type ChallengeResolverFunc func(ctx context.Context, sess *session.Session) error

// Resolve calls f.
func (f ChallengeResolverFunc) Resolve(ctx context.Context, sess *session.Session) error {
	return f(ctx, sess)
}

// Coordinator runs a batch of targets to completion.
type Coordinator struct {
	resolver Resolver
	factory  SessionFactory
	store    Store

	subBatchSize     int
	checkpointEvery  int
	cooldownMin      time.Duration
	cooldownMax      time.Duration
	maxCooldowns     int
	challengeTimeout time.Duration
	concurrency      int
	challenge        ChallengeResolver
	sleep            func(time.Duration)
	logger           *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore sets the checkpoint store for resume support.
func WithStore(store Store) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithSubBatchSize sets how many targets share one session.
func WithSubBatchSize(n int) Option {
	return func(c *Coordinator) { c.subBatchSize = n }
}

// WithCheckpointEvery sets how many completions trigger a checkpoint write.
func WithCheckpointEvery(n int) Option {
	return func(c *Coordinator) { c.checkpointEvery = n }
}

// WithCooldown bounds the jittered pause taken after a rate-limit signal.
func WithCooldown(minDelay, maxDelay time.Duration) Option {
	return func(c *Coordinator) { c.cooldownMin, c.cooldownMax = minDelay, maxDelay }
}

// WithConcurrency sets how many sub-batches run in parallel.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) { c.concurrency = n }
}

// WithChallengeResolver installs a handler for verification gates.
func WithChallengeResolver(r ChallengeResolver) Option {
	return func(c *Coordinator) { c.challenge = r }
}

// WithChallengeTimeout bounds how long a challenge handler may run.
func WithChallengeTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.challengeTimeout = d }
}

// WithSleep overrides the cooldown sleep function.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a Coordinator.
func New(resolver Resolver, factory SessionFactory, opts ...Option) *Coordinator {
	c := &Coordinator{
		resolver:         resolver,
		factory:          factory,
		subBatchSize:     DefaultSubBatchSize,
		checkpointEvery:  DefaultCheckpointEvery,
		cooldownMin:      DefaultCooldownMin,
		cooldownMax:      DefaultCooldownMax,
		maxCooldowns:     DefaultMaxCooldowns,
		challengeTimeout: DefaultChallengeTimeout,
		concurrency:      1,
		sleep:            time.Sleep,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.subBatchSize < 1 {
		c.subBatchSize = 1
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// runState guards shared result and checkpoint bookkeeping for one run.
type runState struct {
	mu      sync.Mutex
	targets []record.Target
	results []record.Result
	pending []int // completed but not yet checkpointed
}

// Run resolves every target and returns results in input order. Targets with
// a checkpointed result are skipped. A canceled context stops the run between
// targets; completed work is returned alongside the context error.
func (c *Coordinator) Run(ctx context.Context, targets []record.Target) ([]record.Result, error) {
	state := &runState{
		targets: targets,
		results: make([]record.Result, len(targets)),
	}

	var fresh []int
	for i, t := range targets {
		if c.store != nil {
			if res, ok, err := c.store.Get(ctx, t.Key()); err == nil && ok {
				c.logger.Debug("skipping checkpointed target", "target", t.RawName)
				state.results[i] = res
				continue
			}
		}
		fresh = append(fresh, i)
	}
	c.logger.Info("batch started",
		"targets", len(targets), "resumed", len(targets)-len(fresh), "sub_batch_size", c.subBatchSize)

	pool := session.NewPool(session.Factory(c.factory), c.concurrency)
	defer pool.Close()

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for start := 0; start < len(fresh); start += c.subBatchSize {
		end := min(start+c.subBatchSize, len(fresh))
		indices := fresh[start:end]

		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				c.markAll(state, indices, "canceled", ctx.Err())
				return
			}
			c.runSubBatch(ctx, pool, state, indices)
		}()
	}
	wg.Wait()

	state.mu.Lock()
	c.flushLocked(context.WithoutCancel(ctx), state)
	results := state.results
	state.mu.Unlock()

	return results, ctx.Err()
}

// runSubBatch serves one slice of targets over a pooled session. A healthy
// session returns to the pool for the next sub-batch; a terminated one is
// released so the pool drops it and builds a replacement.
func (c *Coordinator) runSubBatch(ctx context.Context, pool *session.Pool, state *runState, indices []int) {
	sess, err := pool.Checkout(ctx)
	if err != nil {
		reason := "session unavailable"
		if ctx.Err() != nil {
			reason = "canceled"
		} else {
			c.logger.Error("session acquisition failed", "error", err)
		}
		c.markAll(state, indices, reason, err)
		return
	}
	defer pool.Checkin(sess)

	for pos, idx := range indices {
		if ctx.Err() != nil {
			c.markAll(state, indices[pos:], "canceled", ctx.Err())
			return
		}

		target := state.targets[idx]
		res, fault := c.resolveOne(ctx, sess, target)
		c.record(ctx, state, idx, res)

		if fault != nil {
			sess.Release()
			if ctx.Err() != nil {
				c.markAll(state, indices[pos+1:], "canceled", ctx.Err())
				return
			}
			c.logger.Warn("session terminated early",
				"session", sess.ID(), "served", sess.TargetsServed(), "remaining", len(indices)-pos-1)
			c.markAll(state, indices[pos+1:], "session terminated", fault)
			return
		}
		sess.MarkServed()
	}
}

// resolveOne resolves a single target, absorbing rate-limit cooldowns and
// challenge handoffs. A non-nil fault means the session cannot keep serving.
func (c *Coordinator) resolveOne(ctx context.Context, sess *session.Session, target record.Target) (record.Result, error) {
	cooldowns := 0
	for {
		res, err := c.resolver.Resolve(ctx, sess, target)
		switch {
		case err == nil:
			return res, nil

		case errors.Is(err, record.ErrRateLimited):
			if cooldowns >= c.maxCooldowns {
				c.logger.Warn("rate limit persists, giving up on target", "target", target.RawName)
				return res, nil
			}
			cooldowns++
			c.cooldown(cooldowns)
			sess.Resume()

		case errors.Is(err, record.ErrChallengeRequired):
			if !c.resolveChallenge(ctx, sess) {
				return res, err
			}
			sess.Resume()

		case ctx.Err() != nil:
			return res, ctx.Err()

		default:
			// Auth failure or closed session: nothing more this session can do.
			return res, err
		}
	}
}

// resolveChallenge runs the challenge handler under its timeout.
func (c *Coordinator) resolveChallenge(ctx context.Context, sess *session.Session) bool {
	if c.challenge == nil {
		c.logger.Warn("challenge required but no resolver installed", "session", sess.ID())
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, c.challengeTimeout)
	defer cancel()

	c.logger.Info("waiting for challenge resolution", "session", sess.ID(), "timeout", c.challengeTimeout)
	if err := c.challenge.Resolve(cctx, sess); err != nil {
		c.logger.Warn("challenge unresolved", "session", sess.ID(), "error", err)
		return false
	}
	return true
}

// cooldown pauses for a jittered duration between the configured bounds.
func (c *Coordinator) cooldown(attempt int) {
	d := c.cooldownMin
	if spread := c.cooldownMax - c.cooldownMin; spread > 0 {
		d += time.Duration(rand.Int64N(int64(spread)))
	}
	c.logger.Info("rate limit cooldown", "attempt", attempt, "duration", d)
	c.sleep(d)
}

// record stores one completed result and checkpoints when due.
func (c *Coordinator) record(ctx context.Context, state *runState, idx int, res record.Result) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.results[idx] = res
	state.pending = append(state.pending, idx)
	if len(state.pending) >= c.checkpointEvery {
		c.flushLocked(ctx, state)
	}
}

// markAll fills a slice of targets with a terminal failure result.
func (c *Coordinator) markAll(state *runState, indices []int, reason string, err error) {
	for _, idx := range indices {
		res := record.Result{
			Target:      state.targets[idx],
			Tier:        record.TierUnresolved,
			Attrs:       record.EmptyAttrs(),
			DomainMatch: record.DomainNotApplicable,
			Reason:      reason,
		}
		if err != nil {
			res.Error = err.Error()
		}
		state.mu.Lock()
		state.results[idx] = res
		state.pending = append(state.pending, idx)
		state.mu.Unlock()
	}
}

// flushLocked writes pending results to the checkpoint store. Caller holds
// state.mu. Store failures are logged, never fatal: losing a checkpoint costs
// re-resolution, not correctness.
func (c *Coordinator) flushLocked(ctx context.Context, state *runState) {
	if c.store == nil {
		state.pending = state.pending[:0]
		return
	}
	for _, idx := range state.pending {
		key := state.targets[idx].Key()
		if err := c.store.Put(ctx, key, state.results[idx]); err != nil {
			c.logger.Warn("checkpoint write failed", "key", key, "error", err)
		}
	}
	if len(state.pending) > 0 {
		c.logger.Debug("checkpoint flushed", "results", len(state.pending))
	}
	state.pending = state.pending[:0]
}

// Describe returns a one-line summary of the coordinator's tuning, for logs.
func (c *Coordinator) Describe() string {
	return fmt.Sprintf("sub_batch=%d checkpoint_every=%d cooldown=[%s,%s] concurrency=%d",
		c.subBatchSize, c.checkpointEvery, c.cooldownMin, c.cooldownMax, c.concurrency)
}
