// Package gateway keeps one user's local state in step with the remote keyed
// store and maintains the standing subscription to the shared leaderboard pool.
//
// Writes are last-write-wins at the granularity of one push: two devices
// signed in with the same identity race, and the later completed write
// replaces the document wholesale. There is no field merge and no version
// vector; a single active session per identity is assumed.
package gateway

import (
	"context"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
)

// RemoteStore is the key-value store with subscribe behind the gateway.
// Logical layout: users/{identity} and competition/players/{accountId}.
type RemoteStore interface {
	// GetUser returns errs.ErrNotFound when no document exists.
	GetUser(ctx context.Context, identity string) (models.UserState, error)
	PutUser(ctx context.Context, identity string, state models.UserState) error
	UpsertEntry(ctx context.Context, entry models.LeaderboardEntry) error
	DeleteEntry(ctx context.Context, accountID string) error
	SubscribePool(ctx context.Context) (PoolSubscription, error)
}

// PoolSubscription delivers the full pool on every change. Deliveries may be
// coalesced; only the latest full state matters.
type PoolSubscription interface {
	Updates() <-chan []models.LeaderboardEntry
	Close() error
}

// PoolCache is the best-effort local mirror of the last delivered pool.
type PoolCache interface {
	SavePool(ctx context.Context, entries []models.LeaderboardEntry) error
	LoadPool(ctx context.Context) ([]models.LeaderboardEntry, error)
}
