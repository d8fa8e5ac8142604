package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/competition"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
)

type Options struct {
	BotPattern string
	Backoff    Backoff
	OpTimeout  time.Duration
}

type Gateway struct {
	store RemoteStore
	cache PoolCache
	log   *slog.Logger
	opts  Options

	mu      sync.Mutex
	watches map[string]*Watch
}

// New builds a gateway. cache may be nil.
func New(store RemoteStore, cache PoolCache, log *slog.Logger, opts Options) *Gateway {
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	return &Gateway{
		store:   store,
		cache:   cache,
		log:     log,
		opts:    opts,
		watches: make(map[string]*Watch),
	}
}

// Pull loads the remote state for identity. When none exists the fresh state
// is returned and written upstream so the remote copy exists from now on.
// Any other read failure is returned: starting from a fresh state would
// overwrite the real remote document on the next push.
func (g *Gateway) Pull(ctx context.Context, identity string, fresh func() models.UserState) (models.UserState, error) {
	const op = "gateway.Pull"

	state, err := g.store.GetUser(ctx, identity)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return models.UserState{}, fmt.Errorf("%s: %w", op, &errs.SyncFailure{Op: "get-user", Err: err})
	}

	state = fresh()
	if err := g.store.PutUser(ctx, identity, state); err != nil {
		g.log.Warn("failed to store fresh user state", "identity", identity,
			slog.Any("error", &errs.SyncFailure{Op: "put-user", Err: err}))
	}
	g.log.Info("initialized fresh user state", "identity", identity)
	return state, nil
}

// NewOutbox starts a write queue for identity bound to ctx.
func (g *Gateway) NewOutbox(ctx context.Context, identity string) *Outbox {
	o := newOutbox(identity, g.store, g.log, g.opts.Backoff, g.opts.OpTimeout)
	o.start(ctx)
	return o
}

// Watch maintains the standing pool subscription for identity. onPool receives
// the whole filtered pool on every delivery. Calling Watch again for the same
// identity returns the existing watch; ctx should outlive any single request.
func (g *Gateway) Watch(ctx context.Context, identity string, onPool func([]models.LeaderboardEntry)) (*Watch, error) {
	const op = "gateway.Watch"

	g.mu.Lock()
	defer g.mu.Unlock()

	if w, ok := g.watches[identity]; ok {
		return w, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := g.store.SubscribePool(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", op, &errs.SyncFailure{Op: "subscribe-pool", Err: err})
	}

	w := &Watch{
		identity: identity,
		sub:      sub,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	g.watches[identity] = w
	go g.runWatch(ctx, w, onPool)

	g.log.Info("pool subscription started", "identity", identity)
	return w, nil
}

// Unwatch tears down the pool subscription of identity, if any.
func (g *Gateway) Unwatch(identity string) {
	g.mu.Lock()
	w, ok := g.watches[identity]
	delete(g.watches, identity)
	g.mu.Unlock()

	if ok {
		w.Stop()
		g.log.Info("pool subscription stopped", "identity", identity)
	}
}

// Watching returns the number of live pool subscriptions.
func (g *Gateway) Watching() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.watches)
}

// CachedPool returns the last mirrored pool. It is a fallback for display only.
func (g *Gateway) CachedPool(ctx context.Context) []models.LeaderboardEntry {
	if g.cache == nil {
		return nil
	}
	entries, err := g.cache.LoadPool(ctx)
	if err != nil {
		g.log.Warn("failed to load cached pool", slog.Any("error", err))
		return nil
	}
	return entries
}

func (g *Gateway) runWatch(ctx context.Context, w *Watch, onPool func([]models.LeaderboardEntry)) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case entries, ok := <-w.sub.Updates():
			if !ok {
				g.log.Warn("pool subscription channel closed", "identity", w.identity)
				g.mu.Lock()
				if g.watches[w.identity] == w {
					delete(g.watches, w.identity)
				}
				g.mu.Unlock()
				return
			}

			pool := competition.FilterBots(entries, g.opts.BotPattern)
			onPool(pool)

			if g.cache != nil {
				if err := g.cache.SavePool(ctx, pool); err != nil {
					g.log.Warn("failed to mirror pool locally", slog.Any("error", err))
				}
			}
		}
	}
}

// Watch is one standing pool subscription.
type Watch struct {
	identity string
	sub      PoolSubscription
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// Stop tears the subscription down. Further calls are no-ops.
func (w *Watch) Stop() {
	w.once.Do(func() {
		w.cancel()
		_ = w.sub.Close()
		<-w.done
	})
}
