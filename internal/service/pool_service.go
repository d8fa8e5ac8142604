package service

import (
	"context"
	"fmt"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/gateway"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/repository"
)

// PoolService mirrors the last delivered leaderboard pool to local storage.
// The mirror is a display fallback, never a source of truth.
type PoolService interface {
	gateway.PoolCache
}

type poolService struct {
	repo repository.PoolRepository
}

func NewPoolService(repo repository.PoolRepository) PoolService {
	return &poolService{repo: repo}
}

func (s *poolService) SavePool(_ context.Context, entries []models.LeaderboardEntry) error {
	rows := make([]models.PoolEntry, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, models.PoolEntry{
			AccountID: e.AccountID,
			Name:      e.Name,
			PnL:       e.PnL,
			Value:     e.Value,
			Position:  i,
		})
	}

	if err := s.repo.ReplacePool(rows); err != nil {
		return fmt.Errorf("failed to mirror pool: %w", err)
	}
	return nil
}

func (s *poolService) LoadPool(_ context.Context) ([]models.LeaderboardEntry, error) {
	rows, err := s.repo.ListPool()
	if err != nil {
		return nil, fmt.Errorf("failed to load mirrored pool: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.LeaderboardEntry{
			Name:      r.Name,
			AccountID: r.AccountID,
			PnL:       r.PnL,
			Value:     r.Value,
		})
	}
	return entries, nil
}
