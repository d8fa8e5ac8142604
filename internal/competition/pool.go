package competition

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
)

const DefaultBotPattern = "AlgoTrader"

// FilterBots drops synthetic players whose name contains pattern.
func FilterBots(entries []models.LeaderboardEntry, pattern string) []models.LeaderboardEntry {
	out := make([]models.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if pattern != "" && strings.Contains(e.Name, pattern) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// RankPool orders the pool by pnl, then value, then account id, and assigns
// ranks starting at 1. The input slice is not modified.
func RankPool(entries []models.LeaderboardEntry, selfAccountID string) []models.LeaderboardEntry {
	ranked := slices.Clone(entries)
	slices.SortStableFunc(ranked, func(a, b models.LeaderboardEntry) int {
		if c := b.PnL.Cmp(a.PnL); c != 0 {
			return c
		}
		if c := b.Value.Cmp(a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.AccountID, b.AccountID)
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].IsUser = ranked[i].AccountID == selfAccountID
	}
	return ranked
}

// RankOf returns the rank of accountID in a ranked pool, or 0 when absent.
func RankOf(ranked []models.LeaderboardEntry, accountID string) int {
	for _, e := range ranked {
		if e.AccountID == accountID {
			return e.Rank
		}
	}
	return 0
}
