package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/gateway"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/redis/go-redis/v9"
)

const (
	usersPrefix = "users/"
	// PoolKey is a hash of accountId -> LeaderboardEntry JSON.
	PoolKey = "competition/players"
	// PoolChannel carries one notification per pool write.
	PoolChannel = "competition/players"
)

// Store is the remote keyed store of the sync gateway.
type Store struct {
	client *redis.Client
	log    *slog.Logger
}

var _ gateway.RemoteStore = (*Store)(nil)

func New(cfg config.RedisConfig, log *slog.Logger) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), log)
}

func NewWithClient(client *redis.Client, log *slog.Logger) *Store {
	return &Store{client: client, log: log}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) GetUser(ctx context.Context, identity string) (models.UserState, error) {
	const op = "storage.redis.GetUser"

	data, err := s.client.Get(ctx, usersPrefix+identity).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.UserState{}, errs.ErrNotFound
		}
		return models.UserState{}, fmt.Errorf("%s: %w", op, err)
	}

	var state models.UserState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.UserState{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	if state.Assets == nil {
		state.Assets = []models.AssetHolding{}
	}
	if state.Transactions == nil {
		state.Transactions = []models.Transaction{}
	}
	return state, nil
}

// PutUser overwrites the whole document.
func (s *Store) PutUser(ctx context.Context, identity string, state models.UserState) error {
	const op = "storage.redis.PutUser"

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	if err := s.client.Set(ctx, usersPrefix+identity, data, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) UpsertEntry(ctx context.Context, entry models.LeaderboardEntry) error {
	const op = "storage.redis.UpsertEntry"

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, PoolKey, entry.AccountID, data)
		pipe.Publish(ctx, PoolChannel, entry.AccountID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, accountID string) error {
	const op = "storage.redis.DeleteEntry"

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, PoolKey, accountID)
		pipe.Publish(ctx, PoolChannel, accountID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Pool reads the whole pool, ordered by account id. Undecodable entries are skipped.
func (s *Store) Pool(ctx context.Context) ([]models.LeaderboardEntry, error) {
	const op = "storage.redis.Pool"

	raw, err := s.client.HGetAll(ctx, PoolKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(raw))
	for accountID, payload := range raw {
		var e models.LeaderboardEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			s.log.Warn("skipping malformed pool entry", "accountID", accountID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].AccountID < entries[j].AccountID })
	return entries, nil
}

// SubscribePool delivers the current pool immediately and again after every
// change notification. Notifications that arrive while a read is pending are
// folded into one read.
func (s *Store) SubscribePool(ctx context.Context) (gateway.PoolSubscription, error) {
	pubsub := s.client.Subscribe(ctx, PoolChannel)

	if _, err := pubsub.Receive(ctx); err != nil {
		s.log.Error("failed to subscribe to redis channel", "channel", PoolChannel, "error", err)
		_ = pubsub.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &poolSubscription{
		pubsub:  pubsub,
		updates: make(chan []models.LeaderboardEntry, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.listener(ctx, sub)

	s.log.Info("subscribed to redis channel", "channel", PoolChannel)
	return sub, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) listener(ctx context.Context, sub *poolSubscription) {
	defer close(sub.done)
	defer close(sub.updates)

	s.deliver(ctx, sub)

	ch := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				s.log.Warn("redis pubsub channel closed")
				return
			}
			drain(ch)
			s.deliver(ctx, sub)
		}
	}
}

func (s *Store) deliver(ctx context.Context, sub *poolSubscription) {
	entries, err := s.Pool(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("failed to read pool", "error", err)
		}
		return
	}
	sub.offer(entries)
}

func drain(ch <-chan *redis.Message) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

type poolSubscription struct {
	pubsub  *redis.PubSub
	updates chan []models.LeaderboardEntry
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (p *poolSubscription) Updates() <-chan []models.LeaderboardEntry {
	return p.updates
}

// offer keeps only the newest undelivered pool.
func (p *poolSubscription) offer(entries []models.LeaderboardEntry) {
	select {
	case p.updates <- entries:
		return
	default:
	}
	select {
	case <-p.updates:
	default:
	}
	p.updates <- entries
}

func (p *poolSubscription) Close() error {
	var err error
	p.once.Do(func() {
		p.cancel()
		err = p.pubsub.Close()
		<-p.done
	})
	return err
}
