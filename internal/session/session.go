// Package session holds the explicit per-identity context that every ledger
// and competition operation runs against. A session is established when an
// identity signs in and torn down exactly once when it signs out.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/competition"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/gateway"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/ledger"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/shopspring/decimal"
)

type Status int

const (
	StatusEstablishing Status = iota
	StatusActive
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusEstablishing:
		return "establishing"
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Notifier receives views after every change. Implementations must not block.
type Notifier interface {
	NotifyPortfolio(identity string, view models.PortfolioView)
	NotifyPool(identity string, pool []models.LeaderboardEntry)
}

// EventSink receives every appended transaction. Implementations must not block.
type EventSink interface {
	Publish(evt models.TransactionEvent)
}

type Deps struct {
	Gateway         *gateway.Gateway
	Rules           competition.Rules
	StartingBalance decimal.Decimal
	FlushTimeout    time.Duration
	Notifier        Notifier
	Events          EventSink
	Now             func() time.Time
	Log             *slog.Logger
}

// Principal is the identity the provider vouched for.
type Principal struct {
	UserID string
	Name   string
}

type Session struct {
	identity string
	deps     *Deps
	log      *slog.Logger
	ready    chan struct{}

	mu       sync.Mutex
	status   Status
	user     models.UserState
	book     ledger.PriceBook
	pool     []models.LeaderboardEntry
	poolLive bool
	outbox   *gateway.Outbox
	notes    []func()
}

func newSession(identity string, deps *Deps) *Session {
	return &Session{
		identity: identity,
		deps:     deps,
		log:      deps.Log.With("identity", identity),
		ready:    make(chan struct{}),
		book:     ledger.PriceBook{},
	}
}

func (s *Session) Identity() string {
	return s.identity
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// establish pulls the remote state and starts the outbox. bg outlives the
// request that triggered the sign in.
func (s *Session) establish(ctx, bg context.Context, p Principal, prices models.MarketSnapshot) error {
	const op = "session.establish"
	defer close(s.ready)

	state, err := s.deps.Gateway.Pull(ctx, s.identity, func() models.UserState {
		return models.NewUserState(p.Name, displayName(p.Name), s.deps.StartingBalance)
	})
	if err != nil {
		s.mu.Lock()
		s.status = StatusClosed
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	s.user = state
	s.book = ledger.NewPriceBook(prices)
	s.outbox = s.deps.Gateway.NewOutbox(bg, s.identity)
	s.status = StatusActive
	s.mu.Unlock()

	if _, err := s.deps.Gateway.Watch(bg, s.identity, s.applyPool); err != nil {
		s.log.Error("pool subscription unavailable, serving cached pool", slog.Any("error", err))
	}

	s.log.Info("session established", "accountID", state.AccountID)
	return nil
}

func (s *Session) await(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.Status() != StatusActive {
		return errs.ErrNoSession
	}
	return nil
}

// State returns the current snapshot. Callers get their own copy.
func (s *Session) State() (models.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return models.UserState{}, errs.ErrNoSession
	}
	return s.user.Clone(), nil
}

// Quote returns the latest feed price for symbol.
func (s *Session) Quote(symbol string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.book[ledger.NormalizeSymbol(symbol)]
	return p, ok
}

func (s *Session) Trade(kind models.TransactionType, symbol string, amount, price decimal.Decimal) (models.Transaction, error) {
	var tx models.Transaction
	err := s.locked(func() error {
		next, t, err := ledger.Trade(s.user, kind, symbol, amount, price, s.deps.Now())
		if err != nil {
			return err
		}
		tx = t
		s.commit(competition.Recompute(next, s.book, s.pool), t)
		return nil
	})
	return tx, err
}

func (s *Session) Deposit(amount decimal.Decimal) (models.Transaction, error) {
	var tx models.Transaction
	err := s.locked(func() error {
		next, t, err := ledger.Deposit(s.user, amount, s.deps.Now())
		if err != nil {
			return err
		}
		tx = t
		s.commit(competition.Recompute(next, s.book, s.pool), t)
		return nil
	})
	return tx, err
}

func (s *Session) EnterCompetition() (models.UserState, error) {
	var out models.UserState
	err := s.locked(func() error {
		next, txs, err := competition.Enter(s.user, s.book, s.deps.Rules, s.deps.Now())
		if err != nil {
			return err
		}
		s.commit(competition.Recompute(next, s.book, s.pool), txs...)
		out = s.user.Clone()
		return nil
	})
	return out, err
}

// ResetCompetition always ends up Idle and removes this user's pool entry.
func (s *Session) ResetCompetition() (models.UserState, error) {
	var out models.UserState
	err := s.locked(func() error {
		s.outbox.DeleteEntry(s.user.AccountID)
		s.commit(competition.Reset(s.user))
		out = s.user.Clone()
		return nil
	})
	return out, err
}

// ApplyPrices installs a new market snapshot and rescores an active round.
func (s *Session) ApplyPrices(snapshot models.MarketSnapshot) {
	err := s.locked(func() error {
		s.book = ledger.NewPriceBook(snapshot)
		if !s.commit(competition.Recompute(s.user, s.book, s.pool)) {
			s.notePortfolio()
		}
		return nil
	})
	if err != nil {
		s.log.Debug("price snapshot ignored", "error", err)
	}
}

// applyPool replaces the pool read-model wholesale.
func (s *Session) applyPool(entries []models.LeaderboardEntry) {
	err := s.locked(func() error {
		s.pool = competition.RankPool(entries, s.user.AccountID)
		s.poolLive = true
		s.commit(competition.Recompute(s.user, s.book, s.pool))
		pool := s.pool
		s.notes = append(s.notes, func() {
			if s.deps.Notifier != nil {
				s.deps.Notifier.NotifyPool(s.identity, pool)
			}
		})
		return nil
	})
	if err != nil {
		s.log.Debug("pool delivery ignored", "error", err)
	}
}

// Pool returns the ranked pool. Before the first live delivery the local
// mirror is served instead.
func (s *Session) Pool(ctx context.Context) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return nil, errs.ErrNoSession
	}
	if s.poolLive {
		pool := s.pool
		s.mu.Unlock()
		return pool, nil
	}
	accountID := s.user.AccountID
	s.mu.Unlock()

	return competition.RankPool(s.deps.Gateway.CachedPool(ctx), accountID), nil
}

func (s *Session) View() (models.PortfolioView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return models.PortfolioView{}, errs.ErrNoSession
	}
	return s.view(), nil
}

// Synced reports whether every local change reached the remote store.
func (s *Session) Synced() bool {
	s.mu.Lock()
	ob := s.outbox
	s.mu.Unlock()
	return ob == nil || !ob.Dirty()
}

func (s *Session) WaitSynced(ctx context.Context) error {
	s.mu.Lock()
	ob := s.outbox
	s.mu.Unlock()
	if ob == nil {
		return nil
	}
	return ob.WaitSynced(ctx)
}

// Close tears the session down once: stops the pool subscription, gives the
// outbox a bounded chance to drain and stops it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	s.status = StatusClosed
	ob := s.outbox
	s.mu.Unlock()

	s.deps.Gateway.Unwatch(s.identity)

	if ob != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.deps.FlushTimeout)
		if err := ob.WaitSynced(ctx); err != nil {
			s.log.Warn("session closed before sync completed", "pending", ob.Pending())
		}
		cancel()
		ob.Close()
	}
	s.log.Info("session closed")
}

// locked runs fn under the session lock and delivers queued notifications
// after releasing it.
func (s *Session) locked(fn func() error) error {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return errs.ErrNoSession
	}
	err := fn()
	notes := s.notes
	s.notes = nil
	s.mu.Unlock()

	for _, n := range notes {
		n()
	}
	return err
}

// commit swaps in next when it differs from the current snapshot and queues
// the remote writes. Must hold s.mu.
func (s *Session) commit(next models.UserState, txs ...models.Transaction) bool {
	if next.Equal(s.user) {
		return false
	}
	s.user = next

	s.outbox.PushUser(next)
	if next.Competition.IsCompeting() {
		entry := competition.ProjectLeaderboardEntry(next, ledger.NetWorth(next, s.book))
		s.outbox.UpsertEntry(entry)
	}

	if s.deps.Events != nil {
		for _, tx := range txs {
			s.deps.Events.Publish(models.TransactionEvent{AccountID: next.AccountID, Transaction: tx})
		}
	}
	s.notePortfolio()
	return true
}

func (s *Session) notePortfolio() {
	if s.deps.Notifier == nil {
		return
	}
	view := s.view()
	s.notes = append(s.notes, func() {
		s.deps.Notifier.NotifyPortfolio(s.identity, view)
	})
}

func (s *Session) view() models.PortfolioView {
	coins, netWorth := ledger.Portfolio(s.user, s.book)
	return models.PortfolioView{
		AccountID:   s.user.AccountID,
		UserName:    s.user.Name,
		Balance:     s.user.Balance,
		NetWorth:    netWorth,
		Coins:       coins,
		Competition: competition.View(s.user, s.deps.Now()),
	}
}

// displayName is the local part of an email address, or the whole name.
func displayName(name string) string {
	if i := strings.IndexByte(name, '@'); i > 0 {
		return name[:i]
	}
	return name
}
