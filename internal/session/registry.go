package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
)

// AuthEvent is one sign in or sign out observed by the identity watcher.
// A nil Principal means the identity signed out.
type AuthEvent struct {
	UserID    string
	Principal *Principal
}

// AuthWatcher delivers auth events, replaying current identities at registration.
type AuthWatcher interface {
	OnAuthChange(fn func(AuthEvent)) (unsubscribe func())
}

// Registry owns one session per signed-in identity.
type Registry struct {
	deps *Deps
	ctx  context.Context

	mu       sync.Mutex
	sessions map[string]*Session
	// closing holds identities whose session is still flushing; the channel
	// closes once teardown finished.
	closing map[string]chan struct{}
	prices  models.MarketSnapshot
}

// NewRegistry binds every session's background work to ctx.
func NewRegistry(ctx context.Context, deps Deps) *Registry {
	return &Registry{
		deps:     &deps,
		ctx:      ctx,
		sessions: make(map[string]*Session),
		closing:  make(map[string]chan struct{}),
	}
}

// Establish returns the session for p, creating it on first use. Concurrent
// calls for one identity share a single establishment. A teardown of the same
// identity still in progress is waited for before the remote state is pulled.
func (r *Registry) Establish(ctx context.Context, p Principal) (*Session, error) {
	r.mu.Lock()
	for {
		closed, ok := r.closing[p.UserID]
		if !ok {
			break
		}
		r.mu.Unlock()
		select {
		case <-closed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r.mu.Lock()
	}
	if s, ok := r.sessions[p.UserID]; ok {
		r.mu.Unlock()
		if err := s.await(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	s := newSession(p.UserID, r.deps)
	r.sessions[p.UserID] = s
	prices := r.prices
	r.mu.Unlock()

	if err := s.establish(ctx, r.ctx, p, prices); err != nil {
		r.mu.Lock()
		if r.sessions[p.UserID] == s {
			delete(r.sessions, p.UserID)
		}
		r.mu.Unlock()
		r.deps.Log.Error("failed to establish session", "identity", p.UserID, slog.Any("error", err))
		return nil, err
	}
	return s, nil
}

// Get returns the active session of identity.
func (r *Registry) Get(ctx context.Context, identity string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	r.mu.Unlock()
	if !ok {
		return nil, errs.ErrNoSession
	}
	if err := s.await(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Teardown closes the session of identity. Repeated calls are no-ops.
func (r *Registry) Teardown(identity string) {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, identity)
	closed := make(chan struct{})
	r.closing[identity] = closed
	r.mu.Unlock()

	<-s.ready
	s.Close()

	r.mu.Lock()
	delete(r.closing, identity)
	r.mu.Unlock()
	close(closed)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ApplyPrices fans a market snapshot out to every session.
func (r *Registry) ApplyPrices(snapshot models.MarketSnapshot) {
	r.mu.Lock()
	r.prices = snapshot
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.ApplyPrices(snapshot)
	}
}

// Follow drives establish and teardown from w, in event order, until the
// returned func is called.
func (r *Registry) Follow(w AuthWatcher) func() {
	events := make(chan AuthEvent, 64)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case evt := <-events:
				r.handle(evt)
			}
		}
	}()

	unsubscribe := w.OnAuthChange(func(evt AuthEvent) {
		select {
		case events <- evt:
		case <-done:
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
}

func (r *Registry) handle(evt AuthEvent) {
	if evt.Principal == nil {
		r.Teardown(evt.UserID)
		return
	}
	if _, err := r.Establish(r.ctx, *evt.Principal); err != nil {
		r.deps.Log.Warn("sign in without session", "identity", evt.UserID, slog.Any("error", err))
	}
}

// Close tears every session down.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Teardown(id)
		}()
	}
	wg.Wait()
}
