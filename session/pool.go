package session

import (
	"context"
	"sync"
)

// Factory creates a session on demand. The pool calls it lazily, so no
// network identity is spent before a worker actually needs one.
type Factory func(ctx context.Context) (*Session, error)

// Pool hands out sessions to workers with single-ownership semantics: a
// session is held by at most one worker between Checkout and Checkin. Idle
// sessions are reused across sub-batches; closed ones are dropped on Checkin
// and replaced on the next Checkout, up to the pool's capacity.
type Pool struct {
	factory Factory
	idle    chan *Session
	permits chan struct{}

	mu   sync.Mutex
	all  []*Session
	done bool
}

// NewPool creates a pool that lazily builds up to capacity sessions.
func NewPool(factory Factory, capacity int) *Pool {
	capacity = max(capacity, 1)
	p := &Pool{
		factory: factory,
		idle:    make(chan *Session, capacity),
		permits: make(chan struct{}, capacity),
	}
	for range capacity {
		p.permits <- struct{}{}
	}
	return p
}

// Checkout returns an idle session, creating one while the pool is under
// capacity. It blocks until a session or a creation permit is available or
// the context is done.
func (p *Pool) Checkout(ctx context.Context) (*Session, error) {
	// Prefer reusing an idle session over spending a creation permit.
	select {
	case s := <-p.idle:
		return s, nil
	default:
	}

	select {
	case s := <-p.idle:
		return s, nil
	case <-p.permits:
		s, err := p.factory(ctx)
		if err != nil {
			p.permits <- struct{}{}
			return nil, err
		}
		p.mu.Lock()
		p.all = append(p.all, s)
		p.mu.Unlock()
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Checkin returns a session to the pool. Closed sessions are dropped and
// their capacity slot freed, so the next Checkout builds a replacement.
func (p *Pool) Checkin(s *Session) {
	if s == nil {
		return
	}
	if s.State() == StateClosed {
		p.permits <- struct{}{}
		return
	}
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done {
		s.Release()
		return
	}
	p.idle <- s
}

// Close releases every session the pool has ever created.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	for _, s := range p.all {
		s.Release()
	}
}
