package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
)

type opKind int

const (
	opPutUser opKind = iota
	opUpsertEntry
	opDeleteEntry
)

func (k opKind) String() string {
	switch k {
	case opPutUser:
		return "put-user"
	case opUpsertEntry:
		return "upsert-entry"
	case opDeleteEntry:
		return "delete-entry"
	default:
		return "unknown"
	}
}

type op struct {
	kind      opKind
	state     models.UserState
	entry     models.LeaderboardEntry
	accountID string
}

// Outbox queues remote writes for one identity and drains them in order,
// retrying the head with backoff until it succeeds. Local state is never
// rolled back on failure.
type Outbox struct {
	identity  string
	store     RemoteStore
	log       *slog.Logger
	backoff   Backoff
	opTimeout time.Duration

	mu       sync.Mutex
	queue    []op
	inflight bool
	drained  chan struct{}
	wake     chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newOutbox(identity string, store RemoteStore, log *slog.Logger, backoff Backoff, opTimeout time.Duration) *Outbox {
	drained := make(chan struct{})
	close(drained)
	return &Outbox{
		identity:  identity,
		store:     store,
		log:       log.With("identity", identity),
		backoff:   backoff,
		opTimeout: opTimeout,
		drained:   drained,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (o *Outbox) start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	go o.run(ctx)
}

// PushUser queues a full snapshot write. Consecutive pending snapshots collapse
// into the newest one.
func (o *Outbox) PushUser(state models.UserState) {
	o.enqueue(op{kind: opPutUser, state: state.Clone()}, func(last op) bool {
		return last.kind == opPutUser
	})
}

// UpsertEntry queues a pool entry write, collapsing onto a pending write of the
// same key.
func (o *Outbox) UpsertEntry(entry models.LeaderboardEntry) {
	o.enqueue(op{kind: opUpsertEntry, entry: entry}, func(last op) bool {
		return last.kind == opUpsertEntry && last.entry.AccountID == entry.AccountID
	})
}

func (o *Outbox) DeleteEntry(accountID string) {
	o.enqueue(op{kind: opDeleteEntry, accountID: accountID}, nil)
}

// Dirty reports whether local changes have not reached the remote store yet.
func (o *Outbox) Dirty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue) > 0
}

// Pending returns the number of queued operations.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// WaitSynced blocks until the queue is empty or ctx is done.
func (o *Outbox) WaitSynced(ctx context.Context) error {
	o.mu.Lock()
	ch := o.drained
	o.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker. Operations still queued are dropped.
func (o *Outbox) Close() {
	o.once.Do(func() {
		if o.cancel == nil {
			close(o.done)
			return
		}
		o.cancel()
		<-o.done
		if n := o.Pending(); n > 0 {
			o.log.Warn("outbox closed with unsynced operations", "pending", n)
		}
	})
}

func (o *Outbox) enqueue(next op, collapses func(last op) bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.queue) == 0 {
		o.drained = make(chan struct{})
	}

	// The head is never replaced while it is being written.
	if n := len(o.queue); n > 0 && collapses != nil && !(n == 1 && o.inflight) && collapses(o.queue[n-1]) {
		o.queue[n-1] = next
	} else {
		o.queue = append(o.queue, next)
	}

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Outbox) run(ctx context.Context) {
	defer close(o.done)

	attempt := 0
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.inflight = false
			o.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-o.wake:
				continue
			}
		}
		head := o.queue[0]
		o.inflight = true
		o.mu.Unlock()

		if err := o.apply(ctx, head); err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			wait := o.backoff.Next(attempt)
			o.log.Warn("remote write failed, will retry",
				slog.Any("error", &errs.SyncFailure{Op: head.kind.String(), Err: err}),
				"attempt", attempt,
				"retryIn", wait,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		attempt = 0
		o.mu.Lock()
		o.queue = o.queue[1:]
		o.inflight = false
		if len(o.queue) == 0 {
			close(o.drained)
		}
		o.mu.Unlock()
	}
}

func (o *Outbox) apply(ctx context.Context, next op) error {
	if o.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opTimeout)
		defer cancel()
	}

	switch next.kind {
	case opPutUser:
		return o.store.PutUser(ctx, o.identity, next.state)
	case opUpsertEntry:
		return o.store.UpsertEntry(ctx, next.entry)
	case opDeleteEntry:
		return o.store.DeleteEntry(ctx, next.accountID)
	default:
		return errs.ErrInternal
	}
}
